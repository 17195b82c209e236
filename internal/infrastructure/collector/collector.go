package collector

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/apex/log"
	"github.com/tirewatch/backend/internal/domain"
)

// promoInfo marks banner cards that sit in the listing grid but are not products
const promoInfo = "PROMO"

// SiteSelectors locates listing text on a rendered result page.
//
// With Card set, Name, Info and Price are looked up inside each card. Without
// it they are page-wide lists paired by position: price i goes with name
// i*Stride+NameOffset and info i*Stride+InfoOffset.
type SiteSelectors struct {
	Card       string `json:"card,omitempty" yaml:"card,omitempty"`
	Name       string `json:"name" yaml:"name"`
	Info       string `json:"info" yaml:"info"`
	Price      string `json:"price" yaml:"price"`
	Stride     int    `json:"stride,omitempty" yaml:"stride,omitempty"`
	NameOffset int    `json:"nameOffset,omitempty" yaml:"name_offset,omitempty"`
	InfoOffset int    `json:"infoOffset,omitempty" yaml:"info_offset,omitempty"`
}

// DefaultSelectors holds the known layouts per source
var DefaultSelectors = map[domain.Source]SiteSelectors{
	// name and info share one anchor class, alternating
	"gulong": {
		Name:       "a.gulong-font",
		Info:       "a.gulong-font",
		Price:      "span.mr-3.font-bold",
		Stride:     2,
		NameOffset: 0,
		InfoOffset: 1,
	},
	"gogulong": {
		Name:  "div.row.subtitle-1.font-weight-bold",
		Info:  "div.row.subtitle-2",
		Price: "span.ele-price-per-tire",
	},
}

// SelectorsFor returns the default selectors of a source
func SelectorsFor(source domain.Source) (SiteSelectors, error) {
	sel, ok := DefaultSelectors[source]
	if !ok {
		return SiteSelectors{}, fmt.Errorf("%w: no selectors for source %q", domain.ErrInvalidRequest, source)
	}
	return sel, nil
}

// Extract reads one result page and returns a fragment per listing in page order.
// Cards with an empty name and promo banners are skipped.
func Extract(r io.Reader, source domain.Source, sel SiteSelectors) ([]domain.RawFragment, error) {
	if sel.Name == "" || sel.Price == "" {
		return nil, fmt.Errorf("%w: name and price selectors are required", domain.ErrInvalidRequest)
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	var candidates []domain.RawFragment
	if sel.Card != "" {
		candidates = extractCards(doc, source, sel)
	} else {
		candidates = extractLists(doc, source, sel)
	}

	fragments := make([]domain.RawFragment, 0, len(candidates))
	skipped := 0
	for _, f := range candidates {
		if f.Name == "" || strings.EqualFold(strings.TrimSpace(f.Info), promoInfo) {
			skipped++
			continue
		}
		fragments = append(fragments, f)
	}

	log.WithFields(log.Fields{
		"source":    source,
		"fragments": len(fragments),
		"skipped":   skipped,
	}).Debug("page extracted")

	return fragments, nil
}

func extractCards(doc *goquery.Document, source domain.Source, sel SiteSelectors) []domain.RawFragment {
	var out []domain.RawFragment
	doc.Find(sel.Card).Each(func(_ int, card *goquery.Selection) {
		f := domain.RawFragment{
			Source: source,
			Name:   flatText(card.Find(sel.Name).First()),
			Price:  flatText(card.Find(sel.Price).First()),
		}
		if sel.Info != "" {
			f.Info = blockText(card.Find(sel.Info).First())
		}
		out = append(out, f)
	})
	return out
}

func extractLists(doc *goquery.Document, source domain.Source, sel SiteSelectors) []domain.RawFragment {
	names := doc.Find(sel.Name)
	prices := doc.Find(sel.Price)
	var infos *goquery.Selection
	if sel.Info != "" {
		infos = doc.Find(sel.Info)
	}

	stride := sel.Stride
	if stride <= 0 {
		stride = 1
	}

	out := make([]domain.RawFragment, 0, prices.Length())
	for i := 0; i < prices.Length(); i++ {
		nameIdx := i*stride + sel.NameOffset
		if nameIdx >= names.Length() {
			break
		}
		f := domain.RawFragment{
			Source: source,
			Name:   flatText(names.Eq(nameIdx)),
			Price:  flatText(prices.Eq(i)),
		}
		if infos != nil {
			if infoIdx := i*stride + sel.InfoOffset; infoIdx < infos.Length() {
				f.Info = blockText(infos.Eq(infoIdx))
			}
		}
		out = append(out, f)
	}
	return out
}

// flatText collapses all whitespace to single spaces
func flatText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// blockText keeps line breaks between non-empty lines; spec and brand often sit on separate lines
func blockText(s *goquery.Selection) string {
	lines := strings.Split(s.Text(), "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}
