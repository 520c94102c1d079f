package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/cast"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeReference reduces a reference number to its comparable form:
// digits only, without leading zeros. The result may be empty.
func NormalizeReference(ref string) string {
	var b strings.Builder
	for _, r := range ref {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "0")
}

// NormalizeName folds a store or branch name for lookup: compatibility
// normalization, upper case, trimmed, with internal whitespace collapsed.
func NormalizeName(name string) string {
	folded := cases.Upper(language.Und).String(norm.NFKC.String(name))
	return strings.Join(strings.Fields(folded), " ")
}

// StripWhitespace removes every whitespace rune from s
func StripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// CardCheck returns the first four and last four characters of the
// whitespace-stripped card number, or the whole number when shorter.
func CardCheck(card string) string {
	card = StripWhitespace(card)
	if len(card) < 8 {
		return card
	}
	return card[:4] + card[len(card)-4:]
}

// CellString coerces a raw cell to trimmed text. Nil is blank.
func CellString(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// CellReference coerces a raw reference cell. Numeric cells are formatted
// without exponent or fraction so large reference numbers survive.
func CellReference(v interface{}) (string, error) {
	switch n := v.(type) {
	case float64:
		return fmt.Sprintf("%.0f", n), nil
	case float32:
		return fmt.Sprintf("%.0f", n), nil
	}
	return CellString(v)
}

// ParseTimeWithFormats attempts to parse time from string using the given
// layouts first, then the common formats cast understands.
func ParseTimeWithFormats(s string, layouts ...string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	t, err := cast.ToTimeE(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, err)
	}
	return t, nil
}
