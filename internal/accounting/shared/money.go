package shared

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Epsilon is the tolerance used for amount comparisons.
var Epsilon = decimal.New(1, -2)

// DefaultCurrency applies when a document does not carry one.
const DefaultCurrency = "IDR"

// Round2 rounds to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// NormalizeCurrency upper-cases and validates an ISO 4217 code.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency, nil
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("%w: currency %q", ErrInvalidDocument, code)
	}
	return unit.String(), nil
}

// NormalizeRate defaults a zero rate to one and rejects negatives.
func NormalizeRate(rate decimal.Decimal) (decimal.Decimal, error) {
	if rate.IsZero() {
		return decimal.NewFromInt(1), nil
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: exchange rate must be positive", ErrInvalidDocument)
	}
	return rate, nil
}
