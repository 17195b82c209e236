package usecase

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tirewatch/backend/internal/domain"
)

var (
	// first number on the line, thousands commas allowed
	priceNumberPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

	millionPattern = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s*million`)

	million = decimal.NewFromInt(1_000_000)
)

// ParsePrice extracts a price from text such as "₱12,345.00", "P 5,200" or "1.5 Million".
// The result is rounded to two decimal places.
func ParsePrice(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)

	// currency symbol or code before the first digit
	start := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
	if start < 0 {
		return decimal.Zero, fmt.Errorf("%w: %q", domain.ErrPriceFormat, raw)
	}
	s = s[start:]

	if m := millionPattern.FindStringSubmatch(s); m != nil {
		d, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q", domain.ErrPriceFormat, raw)
		}
		return d.Mul(million).Round(2), nil
	}

	num := priceNumberPattern.FindString(s)
	d, err := decimal.NewFromString(strings.ReplaceAll(num, ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", domain.ErrPriceFormat, raw)
	}
	return d.Round(2), nil
}
