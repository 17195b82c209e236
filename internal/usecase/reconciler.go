package usecase

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/tirewatch/backend/internal/domain"
)

// joinKey identifies one listing across sources. Occurrence separates listings
// from the same source that share name and spec (e.g. different ply or price),
// so a plain (name, spec) join neither duplicates nor drops them.
type joinKey struct {
	name       string
	spec       string
	occurrence int
}

// assignOccurrences returns the join key of every product, counting repeats of
// (name, spec) in encounter order. Counters are local to the call.
func assignOccurrences(products []domain.CanonicalProduct) []joinKey {
	seen := make(map[[2]string]int, len(products))
	keys := make([]joinKey, len(products))
	for i := range products {
		group := [2]string{products[i].Name, products[i].SpecKey()}
		keys[i] = joinKey{name: group[0], spec: group[1], occurrence: seen[group]}
		seen[group]++
	}
	return keys
}

// indexCompetitor maps join keys to products. Products without a spec cannot be
// keyed and are left out.
func indexCompetitor(products []domain.CanonicalProduct) map[joinKey]*domain.CanonicalProduct {
	keyed := make([]domain.CanonicalProduct, 0, len(products))
	for _, p := range products {
		if p.Spec != nil {
			keyed = append(keyed, p)
		}
	}

	keys := assignOccurrences(keyed)
	index := make(map[joinKey]*domain.CanonicalProduct, len(keyed))
	for i := range keyed {
		index[keys[i]] = &keyed[i]
	}
	return index
}

// CompetitorSources returns the competitor source names in the order columns are reduced
func CompetitorSources(competitors map[domain.Source][]domain.CanonicalProduct) []domain.Source {
	sources := make([]domain.Source, 0, len(competitors))
	for s := range competitors {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	return sources
}

// Reconcile joins reference products against every competitor on (name, spec, occurrence).
//
// Each reference product yields at most one row, with one price column per
// competitor (null when the competitor has no matching listing). Rows with no
// competitor price are dropped and the rest are sorted by SKU name. No fuzzy
// matching happens here: if two competitors order repeated (name, spec)
// listings differently their prices can attach to different reference rows.
func Reconcile(reference []domain.CanonicalProduct, competitors map[domain.Source][]domain.CanonicalProduct) []domain.ComparisonRow {
	sources := CompetitorSources(competitors)
	indexes := make(map[domain.Source]map[joinKey]*domain.CanonicalProduct, len(sources))
	for _, s := range sources {
		indexes[s] = indexCompetitor(competitors[s])
	}

	refKeys := assignOccurrences(reference)
	rows := make([]domain.ComparisonRow, 0, len(reference))

	for i := range reference {
		ref := &reference[i]
		key := refKeys[i]

		row := domain.ComparisonRow{
			SKUName:        ref.SKUName,
			Name:           ref.Name,
			Brand:          ref.Brand,
			RawSpecs:       ref.RawSpecs,
			Spec:           key.spec,
			Occurrence:     key.occurrence,
			ReferencePrice: ref.Price,
			Prices:         make(map[domain.Source]decimal.NullDecimal, len(sources)),
		}

		for _, s := range sources {
			var match *domain.CanonicalProduct
			if ref.Spec != nil {
				match = indexes[s][key]
			}
			if match == nil {
				row.Prices[s] = decimal.NullDecimal{}
				continue
			}
			row.Prices[s] = match.Price
			if match.Ply != "" {
				if row.Ply == nil {
					row.Ply = make(map[domain.Source]string)
				}
				row.Ply[s] = match.Ply
			}
		}

		if row.HasCompetitorPrice() {
			rows = append(rows, row)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].SKUName < rows[j].SKUName
	})

	return rows
}
