package usecase

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tirewatch/backend/internal/domain"
)

// radialMarker is the aspect ratio of sizes written without one (flotation and light-truck sizes)
const radialMarker = "R"

// Compiled regex patterns for size strings
var (
	// "265/ 65", "265 /65"
	spacedSlashPattern = regexp.MustCompile(`\s*/\s*`)

	// "31 X 10.5"
	spacedInchPattern = regexp.MustCompile(`(\d)\s*X\s*(\d)`)

	// "265/65 R17", "195 R14C", "31X10.5 R15"
	spacedRadialPattern = regexp.MustCompile(`(\d)\s+R\s*(\d)`)

	// trailing number of the width segment, dropping "LT" / "P" prefixes
	widthPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)$`)

	// numeric head of an aspect-ratio segment, dropping speed-rating letters: "65Z" -> "65", "0." -> "0."
	aspectHeadPattern = regexp.MustCompile(`^\d*\.?\d*`)
)

// ParseSpec parses a raw size string into a TireSpec using the default exception table.
//
// Accepted forms: "265/65/R17", "265/65R17", "265/65 R17", "31/R15", "195/R14C",
// "31X10.5R15" and the canonical join form "265/65/17". A string with a single
// segment yields ErrIncompleteSpec with the whole string kept as the width. A string with no
// R-delimited diameter yields ErrSpecFormat.
func ParseSpec(raw string) (domain.TireSpec, error) {
	return parseSpec(raw, DefaultRuleTables().AspectRatioFixes)
}

func parseSpec(raw string, fixes map[string]string) (domain.TireSpec, error) {
	s := canonicalSpecText(raw)
	if s == "" {
		return domain.TireSpec{}, fmt.Errorf("%w: empty size", domain.ErrIncompleteSpec)
	}

	// Inch notation is checked before slash splitting
	if idx := strings.IndexByte(s, 'X'); idx > 0 && strings.IndexAny(s[:idx], "/R") < 0 {
		return parseInchSpec(raw, s, idx, fixes)
	}

	parts := strings.Split(s, "/")
	if len(parts) == 1 {
		return domain.TireSpec{Width: s}, fmt.Errorf("%w: %q", domain.ErrIncompleteSpec, raw)
	}

	width := trailingNumber(parts[0])
	if width == "" {
		return domain.TireSpec{}, fmt.Errorf("%w: no width in %q", domain.ErrSpecFormat, raw)
	}

	spec := domain.TireSpec{Width: width}
	var ok bool

	if len(parts) == 2 {
		second := parts[1]
		rIdx := strings.IndexByte(second, 'R')
		if rIdx < 0 {
			return domain.TireSpec{}, fmt.Errorf("%w: no R in %q", domain.ErrSpecFormat, raw)
		}
		spec.AspectRatio = normalizeAspectRatio(aspectHead(second[:rIdx]), fixes)
		spec.Diameter, ok = diameterAfterR(second[rIdx:])
	} else {
		spec.AspectRatio = normalizeAspectRatio(aspectHead(parts[1]), fixes)
		third := parts[2]
		if strings.IndexByte(third, 'R') >= 0 {
			spec.Diameter, ok = diameterAfterR(third)
		} else {
			// already in canonical join form
			spec.Diameter, ok = twoDigits(third)
		}
	}

	if !ok {
		return domain.TireSpec{}, fmt.Errorf("%w: no diameter in %q", domain.ErrSpecFormat, raw)
	}
	return spec, nil
}

// parseInchSpec handles "31X10.5R15" style sizes
func parseInchSpec(raw, s string, xIdx int, fixes map[string]string) (domain.TireSpec, error) {
	width := trailingNumber(s[:xIdx])
	if width == "" {
		return domain.TireSpec{}, fmt.Errorf("%w: no width in %q", domain.ErrSpecFormat, raw)
	}

	rest := strings.TrimPrefix(s[xIdx+1:], "/")
	end := strings.IndexAny(rest, "/R")
	if end < 0 {
		return domain.TireSpec{}, fmt.Errorf("%w: no R in %q", domain.ErrSpecFormat, raw)
	}

	diameter, ok := diameterAfterR(rest[end:])
	if !ok {
		return domain.TireSpec{}, fmt.Errorf("%w: no diameter in %q", domain.ErrSpecFormat, raw)
	}

	aspect := normalizeAspectRatio(aspectHead(rest[:end]), fixes)

	return domain.TireSpec{Width: width, AspectRatio: aspect, Diameter: diameter}, nil
}

// canonicalSpecText upper-cases the size, closes up spaced separators and keeps the first token
func canonicalSpecText(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = spacedSlashPattern.ReplaceAllString(s, "/")
	s = spacedInchPattern.ReplaceAllString(s, "${1}X${2}")
	s = spacedRadialPattern.ReplaceAllString(s, "${1}/R${2}")
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// NormalizeAspectRatio applies the default exception table to a raw aspect ratio
func NormalizeAspectRatio(ar string) string {
	return normalizeAspectRatio(ar, DefaultRuleTables().AspectRatioFixes)
}

func normalizeAspectRatio(ar string, fixes map[string]string) string {
	ar = strings.ToUpper(strings.TrimSpace(ar))
	switch ar {
	case "", "0", "R", "R1", "NAN":
		return radialMarker
	}
	if fixed, ok := fixes[ar]; ok {
		return fixed
	}
	if isNumeric(ar) {
		return ar
	}
	if d, err := decimal.NewFromString(ar); err == nil {
		if d.IsZero() {
			return radialMarker
		}
		return d.String()
	}
	// unmapped truncation: best effort
	if ar = strings.TrimSuffix(ar, "."); ar == "" {
		return radialMarker
	}
	return ar
}

// NormalizeDiameter reduces rim-size text such as "R15C", "15C" or "15.0" to two digits
func NormalizeDiameter(d string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(d))
	if idx := strings.IndexByte(s, 'R'); idx >= 0 {
		s = s[idx+1:]
	}
	out, ok := twoDigits(s)
	if !ok {
		return "", fmt.Errorf("%w: diameter %q", domain.ErrSpecFormat, d)
	}
	return out, nil
}

// diameterAfterR reads the digits following the first R, stopping at the next non-digit
func diameterAfterR(seg string) (string, bool) {
	idx := strings.IndexByte(seg, 'R')
	if idx < 0 {
		return "", false
	}
	return twoDigits(seg[idx+1:])
}

// twoDigits returns the first two characters of the leading digit run
func twoDigits(s string) (string, bool) {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	if n < 2 {
		return "", false
	}
	return s[:2], true
}

// aspectHead keeps the numeric part of an aspect ratio; words like "NAN" pass through
func aspectHead(s string) string {
	if head := aspectHeadPattern.FindString(s); head != "" {
		return head
	}
	return s
}

func trailingNumber(s string) string {
	return widthPattern.FindString(s)
}

// isNumeric checks if a string contains only digits
func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
