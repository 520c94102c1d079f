package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Amount is a currency value read from a source cell. A cell that could
// not be read as a number keeps its raw text and is marked invalid so it
// can be excluded from sums and reported, never silently zeroed.
type Amount struct {
	Value decimal.Decimal
	Valid bool
	Raw   string
}

// NewAmount wraps a known-good decimal
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Value: d, Valid: true, Raw: d.String()}
}

// InvalidAmount records a cell that could not be coerced
func InvalidAmount(raw string) Amount {
	return Amount{Raw: raw}
}

// ParseAmount coerces a raw cell into an Amount. Blank cells are invalid.
func ParseAmount(v interface{}) Amount {
	s, err := cast.ToStringE(v)
	if err != nil {
		return InvalidAmount(fmt.Sprint(v))
	}
	d, err := ParseDecimalFromString(s)
	if err != nil {
		return InvalidAmount(strings.TrimSpace(s))
	}
	return Amount{Value: d, Valid: true, Raw: strings.TrimSpace(s)}
}

// ParseOptionalAmount is ParseAmount except that a blank cell is zero.
func ParseOptionalAmount(v interface{}) Amount {
	if v == nil {
		return NewAmount(decimal.Zero)
	}
	if s, err := cast.ToStringE(v); err == nil && strings.TrimSpace(s) == "" {
		return NewAmount(decimal.Zero)
	}
	return ParseAmount(v)
}

// OrZero returns the value for valid amounts and zero otherwise
func (a Amount) OrZero() decimal.Decimal {
	if !a.Valid {
		return decimal.Zero
	}
	return a.Value
}

// String returns the decimal text, or the raw text for invalid amounts
func (a Amount) String() string {
	if !a.Valid {
		return a.Raw
	}
	return a.Value.String()
}

// MarshalJSON encodes valid amounts as decimal strings and invalid ones as null
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(a.Value.String())
}

// ParseDecimalFromString parses a decimal value from string with validation.
// Thousands separators and common currency markers are ignored; a value in
// parentheses is negative.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	for _, prefix := range []string{"KSH", "KES", "$"} {
		if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	if negative {
		d = d.Neg()
	}
	return d, nil
}
