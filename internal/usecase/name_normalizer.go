package usecase

import (
	"regexp"
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/tirewatch/backend/internal/domain"
)

// Resolution tells how a name was mapped to its canonical form
type Resolution int

const (
	ResolvedByRule Resolution = iota
	ResolvedByReference
	Unresolved
)

func (r Resolution) String() string {
	switch r {
	case ResolvedByRule:
		return "rule"
	case ResolvedByReference:
		return "reference"
	default:
		return "unresolved"
	}
}

type compiledRule struct {
	domain.NameRule
	re *regexp.Regexp // nil for plain substring rules
}

func (r compiledRule) matches(cleaned string) bool {
	if r.re != nil {
		return r.re.MatchString(cleaned)
	}
	return strings.Contains(cleaned, r.Pattern)
}

// NameNormalizer maps raw product names to canonical model names.
// Matching is substring containment, never edit distance: listings truncate or
// extend model names with qualifiers ("PLUS", "2", roman numerals) far more
// often than they misspell them.
type NameNormalizer struct {
	rules              []compiledRule
	enableDebugLogging bool
}

// NewNameNormalizer compiles an ordered rule table. Wildcard rules that fail to compile are skipped.
func NewNameNormalizer(rules []domain.NameRule, enableDebugLogging bool) *NameNormalizer {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		cr := compiledRule{NameRule: domain.NameRule{
			Pattern:     cleanName(r.Pattern),
			Replacement: cleanName(r.Replacement),
			Wildcard:    r.Wildcard,
		}}
		if r.Wildcard {
			re, err := compileWildcard(cr.Pattern)
			if err != nil {
				log.WithError(err).WithField("pattern", r.Pattern).Warn("skipping name rule")
				continue
			}
			cr.re = re
		}
		compiled = append(compiled, cr)
	}
	return &NameNormalizer{rules: compiled, enableDebugLogging: enableDebugLogging}
}

var (
	defaultNormalizerOnce sync.Once
	defaultNormalizer     *NameNormalizer
)

// NormalizeName normalizes a name with the embedded rule table
func NormalizeName(rawName string, referenceNames domain.NameSet) string {
	defaultNormalizerOnce.Do(func() {
		defaultNormalizer = NewNameNormalizer(DefaultRuleTables().NameRules, false)
	})
	return defaultNormalizer.Normalize(rawName, referenceNames)
}

// Normalize returns the canonical upper-case model name for rawName
func (n *NameNormalizer) Normalize(rawName string, referenceNames domain.NameSet) string {
	name, _ := n.Resolve(rawName, referenceNames)
	return name
}

// Resolve is Normalize that also reports which step produced the name
func (n *NameNormalizer) Resolve(rawName string, referenceNames domain.NameSet) (string, Resolution) {
	cleaned := cleanName(rawName)
	if cleaned == "" {
		return "", Unresolved
	}

	for _, rule := range n.rules {
		if rule.matches(cleaned) {
			if n.enableDebugLogging {
				log.WithFields(log.Fields{
					"input":   rawName,
					"pattern": rule.Pattern,
					"output":  rule.Replacement,
				}).Debug("name rule hit")
			}
			return rule.Replacement, ResolvedByRule
		}
	}

	if best := longestContainedName(cleaned, referenceNames); best != "" {
		if n.enableDebugLogging {
			log.WithFields(log.Fields{"input": rawName, "output": best}).Debug("reference name hit")
		}
		return best, ResolvedByReference
	}

	return cleaned, Unresolved
}

// longestContainedName returns the longest reference name occurring in cleaned.
// Equal lengths break lexicographically so the result does not depend on map order.
func longestContainedName(cleaned string, referenceNames domain.NameSet) string {
	best := ""
	for ref := range referenceNames {
		candidate := cleanName(ref)
		if candidate == "" || !strings.Contains(cleaned, candidate) {
			continue
		}
		if len(candidate) > len(best) || (len(candidate) == len(best) && candidate < best) {
			best = candidate
		}
	}
	return best
}

// cleanName collapses interior whitespace and upper-cases
func cleanName(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}
