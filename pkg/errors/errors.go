package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile           ErrorCategory = "file"
	CategoryParse          ErrorCategory = "parse"
	CategorySchema         ErrorCategory = "schema"
	CategoryValidation     ErrorCategory = "validation"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryReconciliation ErrorCategory = "reconciliation"
	CategoryInternal       ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileCorrupted  ErrorCode = "file_corrupted"
	CodeDirectoryError ErrorCode = "directory_error"

	// Parse errors
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeEncodingError ErrorCode = "encoding_error"

	// Schema errors
	CodeMissingField   ErrorCode = "missing_field"
	CodeUnknownField   ErrorCode = "unknown_field"
	CodeUnknownChannel ErrorCode = "unknown_channel"

	// Row-level anomalies, collected as diagnostics
	CodeValueCoercion    ErrorCode = "value_coercion"
	CodeUnresolvedBranch ErrorCode = "unresolved_branch"
	CodeMissingStore     ErrorCode = "missing_store"
	CodeRowDropped       ErrorCode = "row_dropped"

	// Configuration errors
	CodeInvalidConfig  ErrorCode = "invalid_config"
	CodeMissingConfig  ErrorCode = "missing_config"
	CodeConfigConflict ErrorCode = "config_conflict"

	// Reconciliation errors
	CodeCancelled       ErrorCode = "cancelled"
	CodeProcessingError ErrorCode = "processing_error"

	// Internal errors
	CodeRecordLoss        ErrorCode = "record_loss"
	CodeDuplicateRecordID ErrorCode = "duplicate_record_id"
	CodeUnexpectedError   ErrorCode = "unexpected_error"
)

// ReconcilerError is the base error type for all application errors
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconcilerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategorySchema, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryReconciliation, CategoryInternal:
		return 5
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// ContextKeys returns the context keys in sorted order, for stable printing.
func (e *ReconcilerError) ContextKeys() []string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// New creates a new ReconcilerError
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

func newOrWrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// template is the message and default suggestion of one error code. The
// format receives the constructor's subject (a path, channel or setting).
type template struct {
	format     string
	suggestion string
}

var templates = map[ErrorCode]template{
	CodeFileNotFound:   {"file not found: %s", "check if the file path is correct and the file exists"},
	CodeFilePermission: {"permission denied accessing file: %s", "check file permissions and ensure you have read access"},
	CodeFileCorrupted:  {"file appears to be corrupted: %s", "verify the file integrity and export it again"},
	CodeDirectoryError: {"directory error: %s", "ensure the directory exists and is accessible"},

	CodeInvalidFormat: {"invalid CSV structure in file %s", "check the export is a CSV file with a single header row"},
	CodeEncodingError: {"encoding error in file %s", "ensure the file is saved in UTF-8 encoding"},

	CodeMissingField:   {"channel %s: required field '%s' is missing", "check the channel's column mapping and the source file headers"},
	CodeUnknownField:   {"channel %s: '%s' is not a recognized canonical field", "use one of the canonical field names listed by 'reconciler schemas'"},
	CodeUnknownChannel: {"no schema configured for channel %s", "add the channel under 'schemas' in the configuration file"},

	CodeInvalidConfig:  {"invalid configuration for '%s': %v", "check the configuration documentation for valid values"},
	CodeMissingConfig:  {"missing required configuration: %s", "provide this configuration setting or use a config file"},
	CodeConfigConflict: {"configuration conflict with setting '%s': %v", "resolve the conflicting settings"},

	CodeCancelled:       {"run cancelled before %s", "re-run the reconciliation; no partial report was produced"},
	CodeProcessingError: {"processing error during %s", "check the input files and try again"},

	CodeDuplicateRecordID: {"duplicate record id during %s", "this is likely a bug - please report it with the error details"},
}

// describe renders the template of code, or fallback when code has none
func describe(code ErrorCode, fallback template, args ...interface{}) (string, string) {
	t, ok := templates[code]
	if !ok {
		t = fallback
	}
	// Templates name fewer verbs than some callers pass
	n := strings.Count(t.format, "%") - 2*strings.Count(t.format, "%%")
	if n < len(args) {
		args = args[:n]
	}
	return fmt.Sprintf(t.format, args...), t.suggestion
}

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *ReconcilerError {
	msg, hint := describe(code, template{"file error: %s", "check the file and try again"}, path)
	return newOrWrap(err, CategoryFile, code, msg).
		WithSuggestion(hint).
		WithContext("file_path", path)
}

// ParseError creates a parsing-related error for a source file. Line 0
// means the error is not tied to a line.
func ParseError(code ErrorCode, file string, line int, err error) *ReconcilerError {
	msg, hint := describe(code, template{"parse error in file %s", "check the file format and data integrity"}, file)
	if line > 0 {
		msg = fmt.Sprintf("%s at line %d", msg, line)
	}
	return newOrWrap(err, CategoryParse, code, msg).
		WithSuggestion(hint).
		WithContext("file", file).
		WithContext("line", line)
}

// SchemaError reports a canonical field that cannot be mapped for a channel.
// It rejects the whole channel batch.
func SchemaError(code ErrorCode, channel, field string) *ReconcilerError {
	msg, hint := describe(code, template{"channel %s: schema error on field '%s'", "check the channel schema"}, channel, field)
	return New(CategorySchema, code, msg).
		WithSuggestion(hint).
		WithContext("channel", channel).
		WithContext("field", field)
}

// ValueCoercionWarning flags a single cell that could not be coerced.
func ValueCoercionWarning(channel string, row int, field string, value interface{}) *ReconcilerError {
	return New(CategoryValidation, CodeValueCoercion,
		fmt.Sprintf("channel %s row %d: field '%s' value %q is not usable", channel, row, field, fmt.Sprint(value))).
		WithSuggestion("the row is kept but excluded from numeric totals").
		WithContext("channel", channel).
		WithContext("row", row).
		WithContext("field", field).
		WithContext("value", value)
}

// UnresolvedBranchWarning flags a settlement row whose store has no branch mapping.
func UnresolvedBranchWarning(channel string, row int, storeName string) *ReconcilerError {
	return New(CategoryValidation, CodeUnresolvedBranch,
		fmt.Sprintf("channel %s row %d: store %q has no branch mapping", channel, row, storeName)).
		WithSuggestion("add the store to the branch key file").
		WithContext("channel", channel).
		WithContext("row", row).
		WithContext("store_name", storeName)
}

// MissingStoreWarning flags a ledger row without a store name.
func MissingStoreWarning(channel string, row int) *ReconcilerError {
	return New(CategoryValidation, CodeMissingStore,
		fmt.Sprintf("channel %s row %d: store name is blank", channel, row)).
		WithSuggestion("the row is matched but excluded from branch totals").
		WithContext("channel", channel).
		WithContext("row", row)
}

// RowDropped records a source row that was dropped during normalization.
func RowDropped(channel string, row int, reason string) *ReconcilerError {
	return New(CategoryValidation, CodeRowDropped,
		fmt.Sprintf("channel %s row %d dropped: %s", channel, row, reason)).
		WithContext("channel", channel).
		WithContext("row", row).
		WithContext("reason", reason)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *ReconcilerError {
	return newOrWrap(err, CategoryValidation, code,
		fmt.Sprintf("validation error in field '%s': %v", field, value)).
		WithSuggestion("check the field value and format").
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ReconcilerError {
	msg, hint := describe(code, template{"configuration error: %s", "check your configuration and try again"}, setting, value)
	return newOrWrap(err, CategoryConfiguration, code, msg).
		WithSuggestion(hint).
		WithContext("setting", setting).
		WithContext("value", value)
}

// ReconciliationError reports a run that failed or was cancelled in phase
func ReconciliationError(code ErrorCode, phase string, err error) *ReconcilerError {
	msg, hint := describe(code, template{"reconciliation error during %s", "review the data and configuration"}, phase)
	return newOrWrap(err, CategoryReconciliation, code, msg).
		WithSuggestion(hint).
		WithContext("phase", phase)
}

// RecordLossViolation reports that the matcher lost or duplicated records.
func RecordLossViolation(expected, actual int, detail string) *ReconcilerError {
	return New(CategoryInternal, CodeRecordLoss,
		fmt.Sprintf("record loss invariant violated: expected %d, got %d (%s)", expected, actual, detail)).
		WithSuggestion("this is a bug in the matcher - please report it with the input files").
		WithContext("expected", expected).
		WithContext("actual", actual)
}

// InternalError reports a broken invariant inside operation
func InternalError(code ErrorCode, operation string, err error) *ReconcilerError {
	msg, hint := describe(code, template{"unexpected error during %s", "this is likely a bug - please report it with the error details"}, operation)
	return newOrWrap(err, CategoryInternal, code, msg).
		WithSuggestion(hint).
		WithContext("operation", operation)
}

// IsFatal reports whether an error of this code must abort a run.
func (e *ReconcilerError) IsFatal() bool {
	switch e.Code {
	case CodeValueCoercion, CodeUnresolvedBranch, CodeMissingStore, CodeRowDropped:
		return false
	default:
		return true
	}
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total        int                   `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code"`
	Errors       []*ReconcilerError    `json:"errors"`
	SampleErrors []*ReconcilerError    `json:"sample_errors,omitempty"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*ReconcilerError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	if len(errs) == 0 {
		summary.Errors = []*ReconcilerError{}
		return summary
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	maxSamples := 5
	if len(errs) > maxSamples {
		summary.SampleErrors = errs[:maxSamples]
	} else {
		summary.SampleErrors = errs
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var codes []string
	for code, count := range es.ByCode {
		codes = append(codes, fmt.Sprintf("%s: %d", code, count))
	}
	sort.Strings(codes)

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(codes, ", "))
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	return es.ByCode[code] > 0
}

// Utility functions

// AsReconcilerError extracts a ReconcilerError from an error chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// HasCode reports whether err carries a ReconcilerError with the given code.
func HasCode(err error, code ErrorCode) bool {
	re, ok := AsReconcilerError(err)
	return ok && re.Code == code
}

// WrapIfNeeded wraps an error if it's not already a ReconcilerError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return Wrap(err, category, code, message)
}
