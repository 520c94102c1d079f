package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestReconcilerError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
		},
		{
			name:       "schema error",
			category:   CategorySchema,
			code:       CodeMissingField,
			message:    "missing field",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "configuration error",
			category:   CategoryConfiguration,
			code:       CodeInvalidConfig,
			message:    "invalid config",
			cause:      errors.New("missing field"),
			expectCode: 4,
		},
		{
			name:       "internal error",
			category:   CategoryInternal,
			code:       CodeRecordLoss,
			message:    "lost records",
			cause:      nil,
			expectCode: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconcilerError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
			if len(err.StackTrace) == 0 {
				t.Error("expected a stack trace to be captured")
			}
		})
	}
}

func TestSchemaError(t *testing.T) {
	err := SchemaError(CodeMissingField, "KCB", "reference_number")

	if err.Category != CategorySchema {
		t.Errorf("expected schema category, got %s", err.Category)
	}
	if err.Context["channel"] != "KCB" {
		t.Errorf("expected channel context KCB, got %v", err.Context["channel"])
	}
	if err.Context["field"] != "reference_number" {
		t.Errorf("expected field context, got %v", err.Context["field"])
	}
	if !strings.Contains(err.Message, "KCB") || !strings.Contains(err.Message, "reference_number") {
		t.Errorf("message should name channel and field: %s", err.Message)
	}
	if !err.IsFatal() {
		t.Error("schema errors must be fatal")
	}
}

func TestWarningsAreNotFatal(t *testing.T) {
	warnings := []*ReconcilerError{
		ValueCoercionWarning("ASPIRE", 4, "amount", "N/A"),
		UnresolvedBranchWarning("KCB", 2, "UNKNOWN MALL"),
		MissingStoreWarning("ASPIRE", 9),
		RowDropped("EQUITY", 3, "blank card number"),
	}

	for _, w := range warnings {
		if w.IsFatal() {
			t.Errorf("%s should not be fatal", w.Code)
		}
		if w.Context["row"] == nil {
			t.Errorf("%s should carry the row index", w.Code)
		}
	}

	if !RecordLossViolation(3, 2, "results").IsFatal() {
		t.Error("record loss must be fatal")
	}
}

func TestAsReconcilerError(t *testing.T) {
	base := SchemaError(CodeUnknownChannel, "MPESA", "")
	wrapped := fmt.Errorf("normalize: %w", base)

	got, ok := AsReconcilerError(wrapped)
	if !ok {
		t.Fatal("expected to find ReconcilerError in chain")
	}
	if got != base {
		t.Error("expected the original error instance")
	}
	if !HasCode(wrapped, CodeUnknownChannel) {
		t.Error("expected HasCode to see through wrapping")
	}
	if HasCode(errors.New("plain"), CodeUnknownChannel) {
		t.Error("plain errors carry no code")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	if WrapIfNeeded(nil, CategoryInternal, CodeUnexpectedError, "x") != nil {
		t.Error("nil should stay nil")
	}

	plain := errors.New("boom")
	wrapped := WrapIfNeeded(plain, CategoryInternal, CodeUnexpectedError, "wrapped")
	if wrapped.Cause != plain {
		t.Error("expected plain error to be wrapped")
	}

	existing := ConfigurationError(CodeMissingConfig, "branch_key", nil, nil)
	if WrapIfNeeded(existing, CategoryInternal, CodeUnexpectedError, "x") != existing {
		t.Error("existing ReconcilerError should be returned unchanged")
	}
}

func TestErrorSummary(t *testing.T) {
	empty := NewErrorSummary(nil)
	if empty.Total != 0 || empty.Error() != "no errors" {
		t.Errorf("unexpected empty summary: %+v", empty)
	}

	errs := []*ReconcilerError{
		ValueCoercionWarning("ASPIRE", 1, "amount", "x"),
		ValueCoercionWarning("ASPIRE", 2, "amount", "y"),
		UnresolvedBranchWarning("KCB", 1, "Z"),
	}
	summary := NewErrorSummary(errs)

	if summary.Total != 3 {
		t.Errorf("expected 3 errors, got %d", summary.Total)
	}
	if summary.ByCode[CodeValueCoercion] != 2 {
		t.Errorf("expected 2 coercion warnings, got %d", summary.ByCode[CodeValueCoercion])
	}
	if !summary.HasCode(CodeUnresolvedBranch) {
		t.Error("expected unresolved branch code")
	}
	if !strings.Contains(summary.Error(), "3 errors occurred") {
		t.Errorf("unexpected summary message: %s", summary.Error())
	}
}

func TestContextKeysSorted(t *testing.T) {
	err := New(CategoryInternal, CodeUnexpectedError, "x").
		WithContext("zeta", 1).
		WithContext("alpha", 2)

	keys := err.ContextKeys()
	if len(keys) != 2 || keys[0] != "alpha" || keys[1] != "zeta" {
		t.Errorf("expected sorted keys, got %v", keys)
	}
}

func TestConstructorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  *ReconcilerError
		want string
	}{
		{"missing config drops value", ConfigurationError(CodeMissingConfig, "ledger", "x", nil), "missing required configuration: ledger"},
		{"invalid config", ConfigurationError(CodeInvalidConfig, "report.format", "xml", nil), "invalid configuration for 'report.format': xml"},
		{"unknown code falls back", ConfigurationError(CodeRecordLoss, "log", nil, nil), "configuration error: log"},
		{"parse with line", ParseError(CodeInvalidFormat, "kcb.csv", 7, nil), "invalid CSV structure in file kcb.csv at line 7"},
		{"parse without line", ParseError(CodeEncodingError, "kcb.csv", 0, nil), "encoding error in file kcb.csv"},
		{"unknown channel", SchemaError(CodeUnknownChannel, "MPESA", ""), "no schema configured for channel MPESA"},
		{"cancelled", ReconciliationError(CodeCancelled, "match", nil), "run cancelled before match"},
		{"internal", InternalError(CodeDuplicateRecordID, "match", nil), "duplicate record id during match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Message != tt.want {
				t.Errorf("expected message %q, got %q", tt.want, tt.err.Message)
			}
			if tt.err.Suggestion == "" {
				t.Error("expected a default suggestion")
			}
		})
	}
}
