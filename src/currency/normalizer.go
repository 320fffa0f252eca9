// Package currency turns broker decimal text into exact scaled integers and back.
package currency

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Scales used across the ledger.
const (
	ScaleMinor    int32 = 2  // cents
	ScalePrice    int32 = 4  // unit prices
	ScaleQuantity int32 = 10 // fractional share quantities
)

var (
	ErrAbsent         = errors.New("value is absent")
	ErrInvalidDecimal = errors.New("invalid decimal value")
	ErrOutOfRange     = errors.New("value out of range")
)

var (
	decimalPattern = regexp.MustCompile(`^-?\d+(?:[.,]\d+)?$`)
	maxInt64       = decimal.NewFromInt(math.MaxInt64)
	minInt64       = decimal.NewFromInt(math.MinInt64)
)

// Clean strips surrounding whitespace and one layer of double quotes.
func Clean(text string) string {
	cleaned := strings.TrimSpace(text)
	if len(cleaned) >= 2 && strings.HasPrefix(cleaned, `"`) && strings.HasSuffix(cleaned, `"`) {
		cleaned = strings.TrimSpace(cleaned[1 : len(cleaned)-1])
	}
	return cleaned
}

// ParseDecimal reads a comma or dot separated decimal without losing precision.
func ParseDecimal(text string) (decimal.Decimal, error) {
	cleaned := Clean(text)
	if cleaned == "" {
		return decimal.Zero, ErrAbsent
	}
	if !decimalPattern.MatchString(cleaned) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidDecimal, cleaned)
	}
	d, err := decimal.NewFromString(strings.Replace(cleaned, ",", ".", 1))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q: %v", ErrInvalidDecimal, cleaned, err)
	}
	return d, nil
}

// Normalize returns round(value * 10^scale), rounding half away from zero.
// Blank input yields ErrAbsent so that absence never reads as zero.
func Normalize(text string, scale int32) (int64, error) {
	d, err := ParseDecimal(text)
	if err != nil {
		return 0, err
	}
	return ToScaled(d, scale)
}

// ToScaled converts an exact decimal to an integer at scale.
func ToScaled(d decimal.Decimal, scale int32) (int64, error) {
	scaled := d.Shift(scale).Round(0)
	if scaled.GreaterThan(maxInt64) || scaled.LessThan(minInt64) {
		return 0, fmt.Errorf("%w: %s at scale %d", ErrOutOfRange, d.String(), scale)
	}
	return scaled.IntPart(), nil
}

// Format renders a scaled integer with a comma separator and exactly scale decimals.
func Format(value int64, scale int32) string {
	return strings.Replace(decimal.New(value, -scale).StringFixed(scale), ".", ",", 1)
}

// Display renders an amount in cents for people, e.g. "€125.23".
// Currencies unknown to go-money fall back to "125,23 XYZ".
func Display(minor int64, code string) string {
	cur := money.GetCurrency(code)
	if cur == nil {
		return Format(minor, ScaleMinor) + " " + code
	}
	amount := decimal.New(minor, -ScaleMinor).Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(amount, cur.Code).Display()
}
