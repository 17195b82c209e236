package usecase

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/tirewatch/backend/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var embeddedTables []byte

// RuleTables holds the hand-maintained equivalence tables used during normalization
type RuleTables struct {
	Version          string            `yaml:"version"`
	NameRules        []domain.NameRule `yaml:"name_rules"`
	BrandAliases     map[string]string `yaml:"brand_aliases"`
	KnownBrands      []string          `yaml:"known_brands"`
	SpecPrefixes     []string          `yaml:"spec_prefixes"`
	BadgeWords       []string          `yaml:"badge_words"`
	AspectRatioFixes map[string]string `yaml:"aspect_ratio_fixes"`
}

var (
	defaultTablesOnce sync.Once
	defaultTables     *RuleTables
)

// DefaultRuleTables returns the embedded tables. They are parsed once and must be treated as read-only.
func DefaultRuleTables() *RuleTables {
	defaultTablesOnce.Do(func() {
		t, err := LoadRuleTables(bytes.NewReader(embeddedTables))
		if err != nil {
			panic(fmt.Sprintf("embedded rule tables: %v", err))
		}
		defaultTables = t
	})
	return defaultTables
}

// LoadRuleTables parses a rule table document
func LoadRuleTables(r io.Reader) (*RuleTables, error) {
	var t RuleTables
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("decoding rule tables: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	t.normalize()
	return &t, nil
}

// LoadRuleTablesFile reads a rule table document from disk
func LoadRuleTablesFile(path string) (*RuleTables, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rule tables: %w", err)
	}
	defer f.Close()
	return LoadRuleTables(f)
}

func (t *RuleTables) validate() error {
	if t.Version == "" {
		return fmt.Errorf("rule tables: version is required")
	}
	for i, r := range t.NameRules {
		if strings.TrimSpace(r.Pattern) == "" || strings.TrimSpace(r.Replacement) == "" {
			return fmt.Errorf("rule tables: name rule %d needs pattern and replacement", i)
		}
		if r.Wildcard {
			if _, err := compileWildcard(r.Pattern); err != nil {
				return fmt.Errorf("rule tables: name rule %d: %w", i, err)
			}
		}
	}
	return nil
}

// normalize upper-cases every key so lookups can run on cleaned text
func (t *RuleTables) normalize() {
	for i := range t.NameRules {
		t.NameRules[i].Pattern = cleanName(t.NameRules[i].Pattern)
		t.NameRules[i].Replacement = cleanName(t.NameRules[i].Replacement)
	}
	aliases := make(map[string]string, len(t.BrandAliases))
	for k, v := range t.BrandAliases {
		aliases[cleanName(k)] = cleanName(v)
	}
	t.BrandAliases = aliases
	for i, b := range t.KnownBrands {
		t.KnownBrands[i] = cleanName(b)
	}
	for i, p := range t.SpecPrefixes {
		t.SpecPrefixes[i] = strings.ToUpper(strings.TrimSpace(p))
	}
	for i, w := range t.BadgeWords {
		t.BadgeWords[i] = strings.ToUpper(strings.TrimSpace(w))
	}
	if t.AspectRatioFixes == nil {
		t.AspectRatioFixes = map[string]string{}
	}
}

// compileWildcard turns "A*B?C" into the unanchored regexp A.*B.?C
func compileWildcard(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".?")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return regexp.Compile(b.String())
}
