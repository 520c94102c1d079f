package normalizer

import (
	"fmt"
	"sort"
	"strings"

	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/pkg/errors"
)

// Field is a canonical field name a source column can be mapped to
type Field string

const (
	// Shared
	FieldStoreName       Field = "store_name"
	FieldCardNumber      Field = "card_number"
	FieldReferenceNumber Field = "reference_number"
	FieldTransactionTime Field = "transaction_time"

	// Settlement only
	FieldTerminalID       Field = "terminal_id"
	FieldPurchaseAmount   Field = "purchase_amount"
	FieldCommission       Field = "commission"
	FieldSettlementAmount Field = "settlement_amount"

	// Ledger only
	FieldStoreCode    Field = "store_code"
	FieldZedDate      Field = "zed_date"
	FieldTillID       Field = "till_id"
	FieldSessionID    Field = "session_id"
	FieldReceiptID    Field = "receipt_id"
	FieldCustomerName Field = "customer_name"
	FieldCardType     Field = "card_type"
	FieldAmount       Field = "amount"
)

var settlementFields = []Field{
	FieldTerminalID, FieldStoreName, FieldCardNumber, FieldTransactionTime,
	FieldReferenceNumber, FieldPurchaseAmount, FieldCommission, FieldSettlementAmount,
}

var ledgerFields = []Field{
	FieldStoreCode, FieldStoreName, FieldZedDate, FieldTillID, FieldSessionID,
	FieldReceiptID, FieldCustomerName, FieldCardType, FieldCardNumber, FieldAmount,
	FieldReferenceNumber, FieldTransactionTime,
}

var requiredFields = map[models.RecordKind][]Field{
	models.KindSettlement: {FieldStoreName, FieldCardNumber, FieldReferenceNumber, FieldPurchaseAmount},
	models.KindLedger:     {FieldStoreName, FieldCardNumber, FieldAmount, FieldReferenceNumber},
}

// CanonicalFields lists the fields a schema of the given kind may map
func CanonicalFields(kind models.RecordKind) []Field {
	switch kind {
	case models.KindSettlement:
		return append([]Field(nil), settlementFields...)
	case models.KindLedger:
		return append([]Field(nil), ledgerFields...)
	default:
		return nil
	}
}

// RequiredFields lists the fields every schema of the given kind must map
func RequiredFields(kind models.RecordKind) []Field {
	return append([]Field(nil), requiredFields[kind]...)
}

// IsRequired reports whether field must be mapped for kind
func IsRequired(kind models.RecordKind, field Field) bool {
	for _, f := range requiredFields[kind] {
		if f == field {
			return true
		}
	}
	return false
}

func isCanonical(kind models.RecordKind, field Field) bool {
	for _, f := range CanonicalFields(kind) {
		if f == field {
			return true
		}
	}
	return false
}

// ChannelSchema declares how one channel's source columns map onto the
// canonical record and which row policies apply.
type ChannelSchema struct {
	Channel           string            `json:"channel" mapstructure:"channel" yaml:"channel"`
	Kind              models.RecordKind `json:"kind" mapstructure:"kind" yaml:"kind"`
	Fields            map[Field]string  `json:"fields" mapstructure:"fields" yaml:"fields"`
	RefundsAsNegative bool              `json:"refunds_as_negative" mapstructure:"refunds_as_negative" yaml:"refunds_as_negative"`
	TimeLayouts       []string          `json:"time_layouts,omitempty" mapstructure:"time_layouts" yaml:"time_layouts,omitempty"`
	RequireTerminalID bool              `json:"require_terminal_id" mapstructure:"require_terminal_id" yaml:"require_terminal_id"`
	DropDuplicates    bool              `json:"drop_duplicates" mapstructure:"drop_duplicates" yaml:"drop_duplicates"`
}

// Validate checks the schema against the canonical field list of its kind
func (s *ChannelSchema) Validate() error {
	if strings.TrimSpace(s.Channel) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "channels.<name>.channel", nil, nil)
	}

	if !s.Kind.IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			fmt.Sprintf("channels.%s.kind", s.Channel), s.Kind,
			fmt.Errorf("kind must be %q or %q", models.KindSettlement, models.KindLedger))
	}

	for _, field := range s.SortedFields() {
		if !isCanonical(s.Kind, field) {
			return errors.SchemaError(errors.CodeUnknownField, s.Channel, string(field))
		}
	}

	for _, field := range requiredFields[s.Kind] {
		if strings.TrimSpace(s.Fields[field]) == "" {
			return errors.SchemaError(errors.CodeMissingField, s.Channel, string(field))
		}
	}

	if s.RequireTerminalID && s.Kind == models.KindSettlement && strings.TrimSpace(s.Fields[FieldTerminalID]) == "" {
		return errors.SchemaError(errors.CodeMissingField, s.Channel, string(FieldTerminalID)).
			WithSuggestion("require_terminal_id needs a terminal_id column mapping")
	}

	return nil
}

// SortedFields returns the mapped canonical fields in name order
func (s *ChannelSchema) SortedFields() []Field {
	fields := make([]Field, 0, len(s.Fields))
	for f := range s.Fields {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

// Clone returns a deep copy of the schema
func (s *ChannelSchema) Clone() *ChannelSchema {
	c := *s
	c.Fields = make(map[Field]string, len(s.Fields))
	for k, v := range s.Fields {
		c.Fields[k] = v
	}
	c.TimeLayouts = append([]string(nil), s.TimeLayouts...)
	return &c
}

// Registry holds the schemas of every known channel, keyed by upper-cased name
type Registry struct {
	schemas map[string]*ChannelSchema
}

// NewRegistry validates and registers the given schemas
func NewRegistry(schemas ...*ChannelSchema) (*Registry, error) {
	r := &Registry{schemas: make(map[string]*ChannelSchema, len(schemas))}
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a schema; registering the same channel twice is a conflict
func (r *Registry) Register(s *ChannelSchema) error {
	if s == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "channels", nil, nil)
	}
	if err := s.Validate(); err != nil {
		return err
	}

	key := channelKey(s.Channel)
	if _, exists := r.schemas[key]; exists {
		return errors.ConfigurationError(errors.CodeConfigConflict, "channels", s.Channel,
			fmt.Errorf("channel %s is defined more than once", s.Channel))
	}

	c := s.Clone()
	c.Channel = key
	r.schemas[key] = c
	return nil
}

// Lookup returns the schema for channel or an unknown_channel SchemaError
func (r *Registry) Lookup(channel string) (*ChannelSchema, error) {
	s, ok := r.schemas[channelKey(channel)]
	if !ok {
		return nil, errors.SchemaError(errors.CodeUnknownChannel, channel, "")
	}
	return s, nil
}

// Channels returns the registered channel names in sorted order
func (r *Registry) Channels() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ChannelsOfKind returns the sorted channel names of one kind
func (r *Registry) ChannelsOfKind(kind models.RecordKind) []string {
	var names []string
	for _, name := range r.Channels() {
		if r.schemas[name].Kind == kind {
			names = append(names, name)
		}
	}
	return names
}

func channelKey(channel string) string {
	return strings.ToUpper(strings.TrimSpace(channel))
}

// DefaultSchemas returns the built-in schemas for the KCB and EQUITY
// settlement reports and the ASPIRE point-of-sale ledger export.
func DefaultSchemas() []*ChannelSchema {
	return []*ChannelSchema{
		{
			Channel: "KCB",
			Kind:    models.KindSettlement,
			Fields: map[Field]string{
				FieldTerminalID:       "TID",
				FieldStoreName:        "Merchant Name",
				FieldCardNumber:       "Card Number",
				FieldTransactionTime:  "Transaction Date",
				FieldReferenceNumber:  "RRN",
				FieldPurchaseAmount:   "Purchase Amount",
				FieldCommission:       "Commission",
				FieldSettlementAmount: "Settlement Amount",
			},
			RefundsAsNegative: true,
			TimeLayouts:       []string{"02/01/2006 15:04:05", "02/01/2006 15:04", "02/01/2006"},
			RequireTerminalID: true,
			DropDuplicates:    true,
		},
		{
			Channel: "EQUITY",
			Kind:    models.KindSettlement,
			Fields: map[Field]string{
				FieldTerminalID:       "Terminal ID",
				FieldStoreName:        "Outlet Name",
				FieldCardNumber:       "Card No",
				FieldTransactionTime:  "Trans Date",
				FieldReferenceNumber:  "Reference No",
				FieldPurchaseAmount:   "Amount",
				FieldCommission:       "Commission",
				FieldSettlementAmount: "Net Amount",
			},
			RefundsAsNegative: true,
			TimeLayouts:       []string{"2006-01-02 15:04:05", "02-01-2006 15:04", "02-01-2006"},
			RequireTerminalID: true,
			DropDuplicates:    true,
		},
		{
			Channel: "ASPIRE",
			Kind:    models.KindLedger,
			Fields: map[Field]string{
				FieldStoreCode:       "STORE_CODE",
				FieldStoreName:       "STORE_NAME",
				FieldZedDate:         "ZED_DATE",
				FieldTillID:          "TILL_NO",
				FieldSessionID:       "SESSION_ID",
				FieldReceiptID:       "RECEIPT_NO",
				FieldCustomerName:    "CUSTOMER_NAME",
				FieldCardType:        "CARD_TYPE",
				FieldCardNumber:      "Card_Number",
				FieldAmount:          "AMOUNT",
				FieldReferenceNumber: "RRN",
				FieldTransactionTime: "TRANS_TIME",
			},
			TimeLayouts: []string{"2006-01-02 15:04:05", "02/01/2006 15:04"},
		},
	}
}

// DefaultRegistry returns a registry holding the built-in schemas
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultSchemas()...)
	if err != nil {
		panic(fmt.Sprintf("built-in channel schemas are invalid: %v", err))
	}
	return r
}
