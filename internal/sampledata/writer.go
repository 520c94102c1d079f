package sampledata

import (
	"encoding/csv"
	"path/filepath"
	"strings"

	"card-reconciliation-service/internal/parsers"
	"card-reconciliation-service/pkg/errors"

	"github.com/spf13/afero"
)

// BranchKeyFile is the name the branch key is written under
const BranchKeyFile = "card_key.csv"

// Files are the paths a dataset was written to
type Files struct {
	Ledger      parsers.ChannelFile
	Settlements []parsers.ChannelFile
	BranchKey   string
}

// Write saves every export of the dataset as CSV under dir, one file per
// channel named after it in lower case.
func (d *Dataset) Write(fs afero.Fs, dir string) (*Files, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.FileError(errors.CodeDirectoryError, dir, err)
	}

	files := &Files{
		Ledger:    parsers.ChannelFile{Channel: d.LedgerChannel, Path: filepath.Join(dir, fileName(d.LedgerChannel))},
		BranchKey: filepath.Join(dir, BranchKeyFile),
	}
	if err := writeTable(fs, files.Ledger.Path, d.Ledger); err != nil {
		return nil, err
	}
	for _, ch := range d.Channels {
		f := parsers.ChannelFile{Channel: ch, Path: filepath.Join(dir, fileName(ch))}
		if err := writeTable(fs, f.Path, d.Settlements[ch]); err != nil {
			return nil, err
		}
		files.Settlements = append(files.Settlements, f)
	}
	if err := writeTable(fs, files.BranchKey, d.BranchKey); err != nil {
		return nil, err
	}
	return files, nil
}

// SettlementArgs returns the settlement files as CHANNEL=path arguments
func (f *Files) SettlementArgs() []string {
	args := make([]string, 0, len(f.Settlements))
	for _, s := range f.Settlements {
		args = append(args, s.Channel+"="+s.Path)
	}
	return args
}

func fileName(channel string) string {
	return strings.ToLower(channel) + ".csv"
}

func writeTable(fs afero.Fs, path string, t *Table) error {
	file, err := fs.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(t.Header); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return nil
}
