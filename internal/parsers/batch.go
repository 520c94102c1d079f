package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"

	"github.com/sourcegraph/conc/pool"
)

// ChannelFile names the export of one channel
type ChannelFile struct {
	Channel string `mapstructure:"channel" json:"channel"`
	Path    string `mapstructure:"path" json:"path"`
}

// ParseChannelFile parses a "CHANNEL=path" argument
func ParseChannelFile(s string) (ChannelFile, error) {
	channel, path, ok := strings.Cut(s, "=")
	channel = strings.ToUpper(strings.TrimSpace(channel))
	path = strings.TrimSpace(path)
	if !ok || channel == "" || path == "" {
		return ChannelFile{}, errors.ValidationError(errors.CodeInvalidFormat, "settlement", s,
			fmt.Errorf("expected CHANNEL=path")).
			WithSuggestion("pass settlement files as --settlement KCB=kcb.csv")
	}
	return ChannelFile{Channel: channel, Path: path}, nil
}

// ReadBatch reads one export into a raw batch tagged with channel. Cells
// are kept as text keyed by header; missing trailing cells are absent.
func (bp *BaseParser) ReadBatch(ctx context.Context, channel, path string) (*models.RawBatch, error) {
	file, reader, err := bp.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	pc := NewParseContext(ctx, path)
	keep, err := bp.ReadHeaders(reader, pc)
	if err != nil {
		return nil, err
	}

	batch := &models.RawBatch{
		Channel: channel,
		Source:  path,
		Columns: pc.Headers,
	}

	short := 0
	for {
		record, err := bp.ReadRecord(reader, pc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		row := make(models.RawRow, len(keep))
		for j, idx := range keep {
			if idx < len(record) {
				row[pc.Headers[j]] = record[idx]
			}
		}
		if len(record) < len(keep) {
			short++
		}
		batch.Rows = append(batch.Rows, row)
	}

	fields := logger.Fields{
		"channel": channel,
		"file":    path,
		"columns": len(batch.Columns),
		"rows":    batch.Len(),
		"lines":   pc.LineNumber,
	}
	if short > 0 {
		fields["short_rows"] = short
	}
	bp.logger.WithFields(fields).Info("Read channel export")

	return batch, nil
}

// ReadAll reads every file concurrently, bounded by the configured
// concurrency. Batches come back in the order of files; on failure the
// first error is returned.
func (bp *BaseParser) ReadAll(ctx context.Context, files []ChannelFile) ([]*models.RawBatch, error) {
	batches := make([]*models.RawBatch, len(files))
	if len(files) == 0 {
		return batches, nil
	}

	workers := bp.config.Concurrency
	if workers < 1 {
		workers = 1
	}

	p := pool.New().
		WithMaxGoroutines(workers).
		WithErrors().
		WithContext(ctx).
		WithFirstError()

	for i, f := range files {
		i, f := i, f
		p.Go(func(ctx context.Context) error {
			b, err := bp.ReadBatch(ctx, f.Channel, f.Path)
			if err != nil {
				return err
			}
			batches[i] = b
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}
	return batches, nil
}
