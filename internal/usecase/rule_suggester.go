package usecase

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/apex/log"
	"github.com/tirewatch/backend/internal/domain"
)

// Package-level compiled regex pattern for performance
var nonAlphanumericRegex = regexp.MustCompile(`[^A-Z0-9]+`)

// Scoring weights
const (
	nameCoverageWeight      = 0.60 // share of the competitor tokens found in the reference name
	referenceCoverageWeight = 0.20 // share of the reference tokens found in the competitor name
	jaccardWeight           = 0.20
	fuzzyWeightFactor       = 0.8  // fuzzy token matches count 80% of an exact match
	substringMatchBonus     = 10.0 // one name contains the other
)

// nameStopWords are listing words that never tell two models apart
var nameStopWords = map[string]bool{
	"TIRE": true, "TIRES": true, "TYRE": true, "TYRES": true,
	"THE": true, "AND": true, "WITH": true, "FOR": true,
	"SET": true, "OF": true, "PCS": true,
}

// SuggestConfig holds configuration for the rule suggester
type SuggestConfig struct {
	MinScore           float64
	FuzzyEditDistance  int
	EnableDebugLogging bool
}

// RuleSuggester proposes name rules for competitor names the normalizer could not resolve.
// Suggestions are for review only; the rule table stays the single source of name equivalence.
type RuleSuggester struct {
	minScore           float64
	fuzzyEditDistance  int
	enableDebugLogging bool
}

// NewRuleSuggester creates a new rule suggester with the given configuration
func NewRuleSuggester(config SuggestConfig) *RuleSuggester {
	minScore := config.MinScore
	if minScore <= 0 {
		minScore = 50.0
	}

	fuzzyDist := config.FuzzyEditDistance
	if fuzzyDist <= 0 {
		fuzzyDist = 1
	}

	return &RuleSuggester{
		minScore:           minScore,
		fuzzyEditDistance:  fuzzyDist,
		enableDebugLogging: config.EnableDebugLogging,
	}
}

// Suggest scores each unresolved name against every reference name and keeps the
// best candidate at or above the minimum score. Results are ordered by score, then name.
func (s *RuleSuggester) Suggest(
	ctx context.Context,
	source domain.Source,
	unresolved []string,
	referenceNames domain.NameSet,
) ([]domain.RuleSuggestion, error) {
	if len(unresolved) == 0 || len(referenceNames) == 0 {
		return nil, nil
	}

	refs := make([]string, 0, len(referenceNames))
	for n := range referenceNames {
		refs = append(refs, n)
	}
	sort.Strings(refs)

	var suggestions []domain.RuleSuggestion
	seen := make(map[string]bool, len(unresolved))

	for _, raw := range unresolved {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		name := cleanName(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		var best *domain.RuleSuggestion
		for _, ref := range refs {
			score, matched := s.score(name, ref)
			if best == nil || score > best.Score {
				best = &domain.RuleSuggestion{
					Source:        source,
					RawName:       name,
					Candidate:     ref,
					Score:         score,
					MatchedTokens: matched,
				}
			}
		}

		if s.enableDebugLogging && best != nil {
			log.WithFields(log.Fields{
				"source":    source,
				"name":      name,
				"candidate": best.Candidate,
				"score":     best.Score,
			}).Debug("rule suggestion")
		}

		if best != nil && best.Score >= s.minScore {
			suggestions = append(suggestions, *best)
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].RawName < suggestions[j].RawName
	})

	return suggestions, nil
}

// score computes a 0-100 similarity between a competitor name and a reference name
func (s *RuleSuggester) score(name, reference string) (float64, []string) {
	nameTokens := tokenize(name)
	refTokens := tokenize(reference)
	if len(nameTokens) == 0 || len(refTokens) == 0 {
		return 0, nil
	}

	nameMatched, matchedTokens := s.matchTokens(nameTokens, refTokens)
	refMatched, _ := s.matchTokens(refTokens, nameTokens)

	nameCoverage := nameMatched / float64(len(nameTokens))
	refCoverage := refMatched / float64(len(refTokens))
	jaccard := nameMatched / float64(findUnion(nameTokens, refTokens))

	score := (nameCoverage*nameCoverageWeight + refCoverage*referenceCoverageWeight + jaccard*jaccardWeight) * 100

	if strings.Contains(name, reference) || strings.Contains(reference, name) {
		score += substringMatchBonus
	}

	if score > 100 {
		score = 100
	}
	return score, matchedTokens
}

// matchTokens counts tokens of a found in b; fuzzy hits count fuzzyWeightFactor
func (s *RuleSuggester) matchTokens(a, b []string) (float64, []string) {
	set := make(map[string]bool, len(b))
	for _, t := range b {
		set[t] = true
	}

	var count float64
	var matched []string
	seen := make(map[string]bool, len(a))
	for _, t := range a {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			count++
			matched = append(matched, t)
			continue
		}
		for _, other := range b {
			if fuzzyTokenMatch(t, other, s.fuzzyEditDistance) {
				count += fuzzyWeightFactor
				matched = append(matched, t)
				break
			}
		}
	}
	return count, matched
}

// tokenize splits a cleaned name into alphanumeric tokens, dropping stop words
func tokenize(s string) []string {
	words := strings.Fields(nonAlphanumericRegex.ReplaceAllString(strings.ToUpper(s), " "))
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if nameStopWords[w] {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// fuzzyTokenMatch checks if two tokens are similar within the edit distance threshold
func fuzzyTokenMatch(token1, token2 string, threshold int) bool {
	if token1 == token2 {
		return true
	}

	// Only tokens of 4+ chars; "AT" vs "MT" must stay distinct
	if len(token1) < 4 || len(token2) < 4 {
		return false
	}

	lenDiff := len(token1) - len(token2)
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}
	if lenDiff > threshold {
		return false
	}

	return matchr.Levenshtein(token1, token2) <= threshold
}

// findUnion returns the count of unique tokens across both sets
func findUnion(tokens1, tokens2 []string) int {
	set := make(map[string]bool, len(tokens1)+len(tokens2))
	for _, t := range tokens1 {
		set[t] = true
	}
	for _, t := range tokens2 {
		set[t] = true
	}
	return len(set)
}
