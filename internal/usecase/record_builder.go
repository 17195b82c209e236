package usecase

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tirewatch/backend/internal/domain"
)

// Compiled regex patterns for listing text
var (
	// a size token: "265/65/R17", "LT265/75R16", "31X10.5R15", "195R14C"
	specTokenPattern = regexp.MustCompile(`^(?:LT|P)?\d{2,3}(?:\.\d+)?(?:[/X]|R\d)`)

	parentheticalPattern = regexp.MustCompile(`\([^)]*\)`)

	// "8PR", "10 PR"
	plyPattern = regexp.MustCompile(`\b(\d{1,2})\s*PR\b`)

	// "SET OF 4", "4 PCS", "2 TIRES"
	quantityPattern = regexp.MustCompile(`\bSET\s+OF\s+(\d+)\b|\b(\d+)\s*(?:PCS|PC|PIECES|TIRES)\b`)

	brandTokenPattern = regexp.MustCompile(`^[A-Z][A-Z&.\-]*$`)

	// load index and speed rating: "112S", "121/118Q"
	serviceDescPattern = regexp.MustCompile(`^\d{2,3}(?:/\d{2,3})?[A-Z]$`)
)

// RecordBuilder turns raw listing text into canonical products
type RecordBuilder struct {
	tables      *RuleTables
	normalizer  *NameNormalizer
	knownBrands map[string]bool
	badgeWords  map[string]bool
}

// NewRecordBuilder creates a record builder over the given rule tables
func NewRecordBuilder(tables *RuleTables, enableDebugLogging bool) *RecordBuilder {
	if tables == nil {
		tables = DefaultRuleTables()
	}

	known := make(map[string]bool, 2*len(tables.BrandAliases)+len(tables.KnownBrands))
	for abbr, full := range tables.BrandAliases {
		known[abbr] = true
		known[full] = true
	}
	for _, brand := range tables.KnownBrands {
		known[brand] = true
	}
	badges := make(map[string]bool, len(tables.BadgeWords))
	for _, w := range tables.BadgeWords {
		badges[w] = true
	}

	return &RecordBuilder{
		tables:      tables,
		normalizer:  NewNameNormalizer(tables.NameRules, enableDebugLogging),
		knownBrands: known,
		badgeWords:  badges,
	}
}

// Normalizer exposes the builder's name normalizer
func (b *RecordBuilder) Normalizer() *NameNormalizer {
	return b.normalizer
}

// RulesVersion returns the version of the tables in use
func (b *RecordBuilder) RulesVersion() string {
	return b.tables.Version
}

// BuildRecord composes spec, price and name parsing into one canonical product.
//
// Field failures do not abort: the product is returned with a nil Spec or an
// invalid Price together with the joined field errors, and the caller decides
// whether to keep it. Only a missing name is fatal to the record; it returns
// ErrUnparsableFragment and no product.
func (b *RecordBuilder) BuildRecord(fragment domain.RawFragment, referenceNames domain.NameSet) (*domain.CanonicalProduct, error) {
	rawName := strings.Join(strings.Fields(fragment.Name), " ")
	if rawName == "" {
		return nil, fmt.Errorf("%w: empty name from %s", domain.ErrUnparsableFragment, fragment.Source)
	}

	var fieldErrs []error
	info := b.cleanInfo(fragment.Info)
	nameText := closeUpSizes(cleanName(rawName))

	// Size: the info blob first, then the name
	specToken := findSpecToken(info)
	if specToken == "" {
		specToken = findSpecToken(nameText)
	}

	product := &domain.CanonicalProduct{Source: fragment.Source}

	switch {
	case specToken != "":
		product.RawSpecs = specToken
		spec, err := parseSpec(specToken, b.tables.AspectRatioFixes)
		if err != nil {
			fieldErrs = append(fieldErrs, err)
		} else {
			product.Spec = &spec
		}
	case info == "":
		fieldErrs = append(fieldErrs, fmt.Errorf("%w: no size text", domain.ErrIncompleteSpec))
	default:
		product.RawSpecs = info
		fieldErrs = append(fieldErrs, fmt.Errorf("%w: no size in %q", domain.ErrSpecFormat, info))
	}

	price, err := ParsePrice(fragment.Price)
	if err != nil {
		fieldErrs = append(fieldErrs, err)
	} else {
		product.Price = decimal.NewNullDecimal(price)
	}

	product.Ply = firstSubmatch(plyPattern, info, nameText)
	product.Quantity = firstSubmatch(quantityPattern, info, nameText)

	brand := b.extractBrand(info, specToken)
	modelText := nameText
	if brand == "" {
		if first, rest, _ := strings.Cut(nameText, " "); b.knownBrands[first] && rest != "" {
			brand, modelText = first, rest
		}
	} else {
		modelText = strings.TrimPrefix(modelText, brand+" ")
	}
	product.Brand = b.brandAlias(brand)

	modelText = b.stripSizeNoise(modelText)
	if modelText == "" {
		modelText = cleanName(rawName)
	}
	product.Name = b.normalizer.Normalize(modelText, referenceNames)

	product.SKUName = joinNonEmpty(product.Brand, product.RawSpecs, cleanName(rawName))

	return product, errors.Join(fieldErrs...)
}

// BuildCatalogRecord maps a pre-parsed reference catalog row to a canonical product
func (b *RecordBuilder) BuildCatalogRecord(row domain.CatalogRow) (*domain.CanonicalProduct, error) {
	pattern := cleanName(row.Pattern)
	if pattern == "" {
		return nil, fmt.Errorf("%w: catalog row without pattern", domain.ErrUnparsableFragment)
	}

	var fieldErrs []error
	product := &domain.CanonicalProduct{
		Brand:  b.brandAlias(cleanName(row.Make)),
		Ply:    strings.TrimSpace(row.Ply),
		Source: domain.SourceReference,
	}

	rawAspect := strings.TrimSpace(row.AspectRatio)
	if strings.EqualFold(rawAspect, "nan") {
		rawAspect = ""
	}
	product.RawSpecs = strings.Join([]string{
		strings.TrimSpace(row.SectionWidth), rawAspect, strings.TrimSpace(row.RimSize),
	}, "/")

	width := catalogWidth(row.SectionWidth)
	diameter, err := NormalizeDiameter(row.RimSize)
	switch {
	case err != nil:
		fieldErrs = append(fieldErrs, err)
	case width == "":
		fieldErrs = append(fieldErrs, fmt.Errorf("%w: no width in %q", domain.ErrIncompleteSpec, product.RawSpecs))
	default:
		product.Spec = &domain.TireSpec{
			Width:       width,
			AspectRatio: normalizeAspectRatio(rawAspect, b.tables.AspectRatioFixes),
			Diameter:    diameter,
		}
	}

	price, err := ParsePrice(row.Price)
	if err != nil {
		fieldErrs = append(fieldErrs, err)
	} else {
		product.Price = decimal.NewNullDecimal(price)
	}

	product.Name = b.normalizer.Normalize(pattern, nil)
	product.SKUName = joinNonEmpty(product.Brand, product.RawSpecs, product.Name)

	return product, errors.Join(fieldErrs...)
}

// cleanInfo flattens a multi-line info blob and removes prefixes, parentheticals and badges
func (b *RecordBuilder) cleanInfo(info string) string {
	s := cleanName(info)
	for _, prefix := range b.tables.SpecPrefixes {
		s = strings.ReplaceAll(s, prefix, " ")
	}
	s = parentheticalPattern.ReplaceAllString(s, " ")

	words := strings.Fields(closeUpSizes(s))
	kept := words[:0]
	for _, w := range words {
		if !b.badgeWords[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// extractBrand returns the first word-like token of the info blob that is not the size
func (b *RecordBuilder) extractBrand(info, specToken string) string {
	for _, tok := range strings.Fields(info) {
		if tok == specToken {
			continue
		}
		if brandTokenPattern.MatchString(tok) {
			return tok
		}
	}
	return ""
}

func (b *RecordBuilder) brandAlias(brand string) string {
	if full, ok := b.tables.BrandAliases[brand]; ok {
		return full
	}
	return brand
}

// stripSizeNoise removes size, ply and quantity text that some sites print inside the name
func (b *RecordBuilder) stripSizeNoise(name string) string {
	name = quantityPattern.ReplaceAllString(name, " ")
	name = plyPattern.ReplaceAllString(name, " ")
	words := strings.Fields(name)
	kept := words[:0]
	for _, w := range words {
		if !specTokenPattern.MatchString(w) && !serviceDescPattern.MatchString(w) && !b.badgeWords[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// closeUpSizes rewrites spaced sizes ("265/65 R17") into single tokens
func closeUpSizes(s string) string {
	s = spacedSlashPattern.ReplaceAllString(s, "/")
	s = spacedInchPattern.ReplaceAllString(s, "${1}X${2}")
	return spacedRadialPattern.ReplaceAllString(s, "${1}/R${2}")
}

func findSpecToken(s string) string {
	for _, tok := range strings.Fields(s) {
		if specTokenPattern.MatchString(tok) {
			return tok
		}
	}
	return ""
}

func firstSubmatch(re *regexp.Regexp, texts ...string) string {
	for _, t := range texts {
		m := re.FindStringSubmatch(t)
		if m == nil {
			continue
		}
		for _, g := range m[1:] {
			if g != "" {
				return g
			}
		}
	}
	return ""
}

// catalogWidth reads "31X10.5" as 31 and "265.0" as 265
func catalogWidth(w string) string {
	w, _, _ = strings.Cut(strings.ToUpper(strings.TrimSpace(w)), "X")
	if d, err := decimal.NewFromString(w); err == nil {
		return d.String()
	}
	return trailingNumber(w)
}

func joinNonEmpty(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
