package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Source identifies the site a listing was collected from
type Source string

// SourceReference is the primary catalog every competitor is compared against
const SourceReference Source = "reference"

// RawFragment is the unstructured text scraped for one listing
type RawFragment struct {
	Source Source `json:"source"`
	Name   string `json:"name"`
	Info   string `json:"info"`  // size/brand/badge blob, may span several lines
	Price  string `json:"price"` // as displayed, currency symbol included
}

// TireSpec is the width/aspect-ratio/diameter triple of a tire size
type TireSpec struct {
	Width       string `json:"width"`
	AspectRatio string `json:"aspectRatio"` // numeric, single decimal, or "R"
	Diameter    string `json:"diameter"`    // always two digits
}

// String returns the canonical join form used as the matching key
func (s TireSpec) String() string {
	return strings.Join([]string{s.Width, s.AspectRatio, s.Diameter}, "/")
}

// CanonicalProduct is one normalized listing from a single source
type CanonicalProduct struct {
	SKUName  string              `json:"skuName"`
	Name     string              `json:"name"`
	Brand    string              `json:"brand"`
	RawSpecs string              `json:"rawSpecs"`
	Spec     *TireSpec           `json:"spec"`
	Price    decimal.NullDecimal `json:"price"`
	Ply      string              `json:"ply,omitempty"`
	Quantity string              `json:"quantity,omitempty"`
	Source   Source              `json:"source"`
}

// SpecKey returns the canonical spec string, or "" when the spec is unknown
func (p *CanonicalProduct) SpecKey() string {
	if p.Spec == nil {
		return ""
	}
	return p.Spec.String()
}

// CatalogRow is one pre-parsed row of the reference catalog export
type CatalogRow struct {
	Pattern      string `json:"pattern"`
	Make         string `json:"make"`
	SectionWidth string `json:"sectionWidth"`
	AspectRatio  string `json:"aspectRatio"`
	RimSize      string `json:"rimSize"`
	Price        string `json:"price"`
	Ply          string `json:"ply,omitempty"`
	Active       bool   `json:"active"`
}

// NameRule maps a name pattern to a canonical model name
type NameRule struct {
	Pattern     string `yaml:"pattern" json:"pattern"`
	Replacement string `yaml:"replacement" json:"replacement"`
	Wildcard    bool   `yaml:"wildcard,omitempty" json:"wildcard,omitempty"`
}

// NameSet is a set of canonical reference names
type NameSet map[string]struct{}

// NewNameSet builds a NameSet from the given names
func NewNameSet(names ...string) NameSet {
	set := make(NameSet, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}
	return set
}

// Contains reports whether name is in the set
func (s NameSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}
