package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRecordKind_IsValid(t *testing.T) {
	tests := []struct {
		kind  RecordKind
		valid bool
	}{
		{KindSettlement, true},
		{KindLedger, true},
		{"bank", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.IsValid(); got != tt.valid {
				t.Errorf("RecordKind.IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		input     string
		expected  string
		wantError bool
	}{
		{"100.50", "100.5", false},
		{"  1,234.56 ", "1234.56", false},
		{"KES 2,000", "2000", false},
		{"ksh500", "500", false},
		{"$10", "10", false},
		{"-45.10", "-45.1", false},
		{"(45.10)", "-45.1", false},
		{"", "", true},
		{"N/A", "", true},
		{"12abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecimalFromString(tt.input)
			if (err != nil) != tt.wantError {
				t.Fatalf("ParseDecimalFromString(%q) error = %v, wantError %v", tt.input, err, tt.wantError)
			}
			if !tt.wantError && got.String() != tt.expected {
				t.Errorf("ParseDecimalFromString(%q) = %s, want %s", tt.input, got.String(), tt.expected)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		valid    bool
		expected string
	}{
		{"string", "100.00", true, "100"},
		{"float", 250.75, true, "250.75"},
		{"int", 42, true, "42"},
		{"not a number", "N/A", false, "N/A"},
		{"blank", "   ", false, ""},
		{"nil", nil, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAmount(tt.input)
			if got.Valid != tt.valid {
				t.Fatalf("ParseAmount(%v).Valid = %v, want %v", tt.input, got.Valid, tt.valid)
			}
			if got.String() != tt.expected {
				t.Errorf("ParseAmount(%v).String() = %q, want %q", tt.input, got.String(), tt.expected)
			}
		})
	}
}

func TestParseOptionalAmount(t *testing.T) {
	if a := ParseOptionalAmount(""); !a.Valid || !a.Value.IsZero() {
		t.Errorf("blank optional amount should be a valid zero, got %+v", a)
	}
	if a := ParseOptionalAmount(nil); !a.Valid || !a.Value.IsZero() {
		t.Errorf("nil optional amount should be a valid zero, got %+v", a)
	}
	if a := ParseOptionalAmount("x"); a.Valid {
		t.Errorf("non-numeric optional amount should be invalid, got %+v", a)
	}
}

func TestAmount_OrZeroAndJSON(t *testing.T) {
	valid := NewAmount(decimal.RequireFromString("12.30"))
	invalid := InvalidAmount("N/A")

	if !valid.OrZero().Equal(decimal.RequireFromString("12.3")) {
		t.Errorf("OrZero on valid amount = %s", valid.OrZero())
	}
	if !invalid.OrZero().IsZero() {
		t.Errorf("OrZero on invalid amount = %s", invalid.OrZero())
	}

	data, err := json.Marshal(struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
	}{valid, invalid})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"a":"12.3","b":null}` {
		t.Errorf("unexpected JSON: %s", data)
	}
}

func TestNormalizeReference(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"123", "123"},
		{"000123", "123"},
		{" RRN-00 45 6 ", "456"},
		{"000", ""},
		{"", ""},
		{"ABC", ""},
		{"1020", "1020"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeReference(tt.input); got != tt.expected {
				t.Errorf("NormalizeReference(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Westlands Mall", "WESTLANDS MALL"},
		{"  westlands   mall ", "WESTLANDS MALL"},
		{"WESTLANDS\tMALL", "WESTLANDS MALL"},
		{"Ｗｅｓｔ", "WEST"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeName(tt.input); got != tt.expected {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCardCheck(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"4111 11XX XXXX 1234", "41111234"},
		{"5399830000001111", "53991111"},
		{"1234567", "1234567"},
		{"  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := CardCheck(tt.input); got != tt.expected {
				t.Errorf("CardCheck(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCellReference(t *testing.T) {
	got, err := CellReference(float64(412345678901))
	if err != nil || got != "412345678901" {
		t.Errorf("CellReference(float) = %q, %v", got, err)
	}

	got, err = CellReference("  00123 ")
	if err != nil || got != "00123" {
		t.Errorf("CellReference(string) = %q, %v", got, err)
	}

	got, err = CellReference(nil)
	if err != nil || got != "" {
		t.Errorf("CellReference(nil) = %q, %v", got, err)
	}
}

func TestParseTimeWithFormats(t *testing.T) {
	got, err := ParseTimeWithFormats("15/01/2024 10:30", "02/01/2006 15:04")
	if err != nil {
		t.Fatalf("expected custom layout to parse: %v", err)
	}
	if got.Day() != 15 || got.Month() != 1 || got.Hour() != 10 {
		t.Errorf("unexpected time %v", got)
	}

	if _, err := ParseTimeWithFormats("2024-01-15"); err != nil {
		t.Errorf("expected fallback format to parse: %v", err)
	}

	if _, err := ParseTimeWithFormats(""); err == nil {
		t.Error("expected error for blank time")
	}

	if _, err := ParseTimeWithFormats("not a time"); err == nil {
		t.Error("expected error for garbage time")
	}
}

func TestRecordID(t *testing.T) {
	if got := RecordID("KCB", 7); got != "KCB:7" {
		t.Errorf("RecordID = %q", got)
	}
}
