package branch

import (
	"testing"

	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settlement(channel string, row int, store string) models.SettlementRecord {
	return models.SettlementRecord{
		ID:        models.RecordID(channel, row),
		Row:       row,
		Channel:   channel,
		StoreName: store,
	}
}

func TestResolver_Lookup(t *testing.T) {
	r, err := NewResolver(Key{
		"Westlands Mall":   "WESTLANDS",
		"SARIT  CENTRE":    "SARIT",
		"sarit centre pos": "SARIT",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())

	tests := []struct {
		store  string
		branch string
		found  bool
	}{
		{"Westlands Mall", "WESTLANDS", true},
		{"  westlands   MALL ", "WESTLANDS", true},
		{"Sarit Centre", "SARIT", true},
		{"SARIT CENTRE POS", "SARIT", true},
		{"Westlands Mall Annex", "", false},
		{"Westlands", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.store, func(t *testing.T) {
			branch, ok := r.Lookup(tt.store)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.branch, branch)
		})
	}
}

func TestNewResolver_Conflicts(t *testing.T) {
	_, err := NewResolver(Key{"Sarit": "SARIT", "SARIT ": "WESTLANDS"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConfigConflict))

	_, err = NewResolver(Key{"Sarit": "SARIT", "sarit": "sarit"})
	assert.NoError(t, err, "same branch in a different case is not a conflict")

	_, err = NewResolver(Key{"Sarit": " "})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))
}

func TestResolve(t *testing.T) {
	records := []models.SettlementRecord{
		settlement("KCB", 1, "Westlands Mall"),
		settlement("KCB", 2, "Unknown Mall"),
		settlement("EQUITY", 1, "westlands mall"),
	}

	res, err := ResolveBranches(records, Key{"WESTLANDS MALL": "Westlands"})
	require.NoError(t, err)

	require.Len(t, res.Records, 3)
	assert.Equal(t, []string{"KCB:1", "KCB:2", "EQUITY:1"},
		[]string{res.Records[0].ID, res.Records[1].ID, res.Records[2].ID})

	require.Len(t, res.Resolved, 2)
	assert.Equal(t, "Westlands", res.Resolved[0].Branch)
	assert.Equal(t, "Westlands", res.Resolved[1].Branch)

	require.Len(t, res.Unresolved, 1)
	assert.Equal(t, "KCB:2", res.Unresolved[0].ID)
	assert.Empty(t, res.Unresolved[0].Branch)

	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, errors.CodeUnresolvedBranch, d.Code)
	assert.Equal(t, "KCB", d.Context["channel"])
	assert.Equal(t, 2, d.Context["row"])
	assert.Equal(t, "Unknown Mall", d.Context["store_name"])

	assert.Empty(t, records[0].Branch, "input records are not modified")
}

func TestResolve_ClearsStaleBranch(t *testing.T) {
	rec := settlement("KCB", 1, "Gone")
	rec.Branch = "OLD"

	res, err := ResolveBranches([]models.SettlementRecord{rec}, Key{})
	require.NoError(t, err)
	require.Len(t, res.Unresolved, 1)
	assert.Empty(t, res.Unresolved[0].Branch)
}
