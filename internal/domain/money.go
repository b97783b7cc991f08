package domain

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places every amount and balance carries.
const AmountScale = 2

// maxAmountLength bounds the raw AMOUNT parameter before it is parsed.
const maxAmountLength = 32

// MaxAmount is the largest amount a NUMERIC(15,2) column can hold.
var MaxAmount = decimal.RequireFromString("9999999999999.99")

var (
	errAmountFormat = errors.New("amount must be a plain decimal number")
	errAmountRange  = errors.New("amount out of range")
)

// ParseAmount parses a caller-supplied amount and rounds it half away from zero
// to two decimal places. The rounded value is the one that is compared, applied
// and recorded, so "10.005" becomes 10.01 everywhere.
//
// Exponent notation is rejected: rounding "1e20000000" would expand it to a
// twenty-million digit integer.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, newError(ErrorKindInvalidAmount, nil)
	}
	if len(raw) > maxAmountLength || strings.ContainsAny(raw, "eE") {
		return decimal.Zero, newError(ErrorKindInvalidAmount, errAmountFormat)
	}

	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, newError(ErrorKindInvalidAmount, err)
	}

	rounded := value.Round(AmountScale)
	if !rounded.IsPositive() {
		return decimal.Zero, newError(ErrorKindInvalidAmount, nil)
	}
	if rounded.GreaterThan(MaxAmount) {
		return decimal.Zero, newError(ErrorKindInvalidAmount, errAmountRange)
	}
	return rounded, nil
}

// FormatAmount renders an amount with exactly two decimal places.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountScale)
}
