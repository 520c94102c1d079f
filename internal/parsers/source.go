package parsers

import (
	"context"

	"card-reconciliation-service/internal/branch"
	"card-reconciliation-service/internal/models"
)

// FileSource loads a run's inputs from files
type FileSource struct {
	parser      *BaseParser
	ledger      ChannelFile
	settlements []ChannelFile
	branchKey   string
}

// NewFileSource creates a source reading the ledger export, every
// settlement export and the branch key file through parser
func NewFileSource(parser *BaseParser, ledger ChannelFile, settlements []ChannelFile, branchKey string) *FileSource {
	return &FileSource{
		parser:      parser,
		ledger:      ledger,
		settlements: settlements,
		branchKey:   branchKey,
	}
}

// LoadLedger reads the ledger export
func (s *FileSource) LoadLedger(ctx context.Context) (*models.RawBatch, error) {
	return s.parser.ReadBatch(ctx, s.ledger.Channel, s.ledger.Path)
}

// LoadSettlements reads the settlement exports concurrently
func (s *FileSource) LoadSettlements(ctx context.Context) ([]*models.RawBatch, error) {
	return s.parser.ReadAll(ctx, s.settlements)
}

// LoadBranchKey reads the branch key. Without a key file every settlement
// record is unresolved.
func (s *FileSource) LoadBranchKey(ctx context.Context) (branch.Key, error) {
	if s.branchKey == "" {
		return branch.Key{}, nil
	}
	return s.parser.LoadBranchKey(ctx, s.branchKey)
}
