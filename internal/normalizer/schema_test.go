package normalizer

import (
	"testing"

	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, []string{"ASPIRE", "EQUITY", "KCB"}, r.Channels())
	assert.Equal(t, []string{"EQUITY", "KCB"}, r.ChannelsOfKind(models.KindSettlement))
	assert.Equal(t, []string{"ASPIRE"}, r.ChannelsOfKind(models.KindLedger))

	s, err := r.Lookup(" equity ")
	require.NoError(t, err)
	assert.Equal(t, "EQUITY", s.Channel)
}

func TestChannelSchema_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *ChannelSchema)
		code   errors.ErrorCode
	}{
		{"valid", func(s *ChannelSchema) {}, ""},
		{"blank channel", func(s *ChannelSchema) { s.Channel = " " }, errors.CodeMissingConfig},
		{"bad kind", func(s *ChannelSchema) { s.Kind = "bank" }, errors.CodeInvalidConfig},
		{"unknown field", func(s *ChannelSchema) { s.Fields["colour"] = "Colour" }, errors.CodeUnknownField},
		{"ledger field on settlement", func(s *ChannelSchema) { s.Fields[FieldTillID] = "Till" }, errors.CodeUnknownField},
		{"missing required", func(s *ChannelSchema) { delete(s.Fields, FieldReferenceNumber) }, errors.CodeMissingField},
		{"terminal policy without column", func(s *ChannelSchema) { delete(s.Fields, FieldTerminalID) }, errors.CodeMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSchemas()[0].Clone()
			tt.mutate(s)
			err := s.Validate()
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestRegistry_DuplicateChannel(t *testing.T) {
	a := DefaultSchemas()[0]
	b := a.Clone()
	b.Channel = "kcb"

	_, err := NewRegistry(a, b)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConfigConflict))
}

func TestRequiredFields(t *testing.T) {
	assert.True(t, IsRequired(models.KindLedger, FieldAmount))
	assert.False(t, IsRequired(models.KindLedger, FieldTillID))
	assert.False(t, IsRequired(models.KindSettlement, FieldCommission))
	assert.Len(t, RequiredFields(models.KindSettlement), 4)
	assert.Len(t, CanonicalFields(models.KindLedger), 12)
	assert.Nil(t, CanonicalFields("bank"))
}

func TestClone_IsDeep(t *testing.T) {
	s := DefaultSchemas()[0]
	c := s.Clone()
	c.Fields[FieldStoreName] = "Other"
	c.TimeLayouts[0] = "x"

	assert.Equal(t, "Merchant Name", s.Fields[FieldStoreName])
	assert.NotEqual(t, "x", s.TimeLayouts[0])
}
