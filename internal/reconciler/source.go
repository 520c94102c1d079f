package reconciler

import (
	"context"

	"card-reconciliation-service/internal/branch"
	"card-reconciliation-service/internal/models"
)

//go:generate mockgen -destination=mocks/mock_source.go -package=mocks -source=source.go BatchSource

// BatchSource supplies the raw inputs of one run. Ingestion format and
// encoding are the source's concern.
type BatchSource interface {
	LoadLedger(ctx context.Context) (*models.RawBatch, error)
	LoadSettlements(ctx context.Context) ([]*models.RawBatch, error)
	LoadBranchKey(ctx context.Context) (branch.Key, error)
}

// Input is a fully loaded run
type Input struct {
	Ledger      *models.RawBatch
	Settlements []*models.RawBatch
	BranchKey   branch.Key
}
