package parsers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"card-reconciliation-service/internal/branch"
	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// BranchKeyColumns names the store and branch headers of a CSV branch key
type BranchKeyColumns struct {
	Store  string `mapstructure:"store_column" json:"store_column"`
	Branch string `mapstructure:"branch_column" json:"branch_column"`
}

// DefaultBranchKeyColumns returns the headers of the card key export
func DefaultBranchKeyColumns() BranchKeyColumns {
	return BranchKeyColumns{Store: "STORE_NAME", Branch: "BRANCH"}
}

// Validate checks that both headers are named and distinct
func (c BranchKeyColumns) Validate() error {
	if strings.TrimSpace(c.Store) == "" || strings.TrimSpace(c.Branch) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "parsing.branch_key", c, nil)
	}
	if models.NormalizeName(c.Store) == models.NormalizeName(c.Branch) {
		return errors.ConfigurationError(errors.CodeConfigConflict, "parsing.branch_key", c,
			fmt.Errorf("store and branch columns must differ"))
	}
	return nil
}

// branchKeyDocument is the YAML form of a branch key. Either section may
// be used; entries from both are merged.
//
//	stores:
//	  Westlands Mall: Westlands
//	branches:
//	  Karen:
//	    - Karen Hub
//	    - KAREN HUB 2
type branchKeyDocument struct {
	Stores   map[string]string   `yaml:"stores"`
	Branches map[string][]string `yaml:"branches"`
}

// LoadBranchKey reads a store to branch key. Files ending in .yaml or .yml
// are YAML documents; anything else is read as CSV.
func (bp *BaseParser) LoadBranchKey(ctx context.Context, path string) (branch.Key, error) {
	var (
		key branch.Key
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		key, err = bp.loadYAMLBranchKey(path)
	default:
		key, err = bp.loadCSVBranchKey(ctx, path)
	}
	if err != nil {
		return nil, err
	}

	bp.logger.WithFields(logger.Fields{
		"file":    path,
		"entries": len(key),
	}).Info("Loaded branch key")
	return key, nil
}

func (bp *BaseParser) loadCSVBranchKey(ctx context.Context, path string) (branch.Key, error) {
	batch, err := bp.ReadBatch(ctx, "BRANCH_KEY", path)
	if err != nil {
		return nil, err
	}

	storeCol, ok := findColumn(batch.Columns, bp.config.BranchKey.Store)
	if !ok {
		return nil, missingKeyColumn(path, bp.config.BranchKey.Store)
	}
	branchCol, ok := findColumn(batch.Columns, bp.config.BranchKey.Branch)
	if !ok {
		return nil, missingKeyColumn(path, bp.config.BranchKey.Branch)
	}

	key := make(branch.Key, batch.Len())
	for i, row := range batch.Rows {
		store, _ := models.CellString(row[storeCol])
		br, _ := models.CellString(row[branchCol])
		if store == "" && br == "" {
			continue
		}
		if err := addKeyEntry(key, store, br); err != nil {
			return nil, err.WithContext("file", path).WithContext("row", i+1)
		}
	}
	return key, nil
}

func (bp *BaseParser) loadYAMLBranchKey(path string) (branch.Key, error) {
	data, err := afero.ReadFile(bp.fs, path)
	if err != nil {
		return nil, openError(path, err)
	}

	var doc branchKeyDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, errors.CategoryParse, errors.CodeInvalidFormat,
			fmt.Sprintf("invalid branch key document %s", path)).
			WithContext("file", path).
			WithSuggestion("a branch key document has 'stores' and/or 'branches' sections")
	}

	key := make(branch.Key, len(doc.Stores))
	for store, br := range doc.Stores {
		if err := addKeyEntry(key, store, br); err != nil {
			return nil, err.WithContext("file", path)
		}
	}
	for br, stores := range doc.Branches {
		for _, store := range stores {
			if err := addKeyEntry(key, store, br); err != nil {
				return nil, err.WithContext("file", path)
			}
		}
	}
	return key, nil
}

func addKeyEntry(key branch.Key, store, br string) *errors.ReconcilerError {
	store = strings.TrimSpace(store)
	br = strings.TrimSpace(br)
	if store == "" || br == "" {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "branch_key", store,
			fmt.Errorf("entry needs both a store name and a branch"))
	}
	if existing, ok := key[store]; ok && models.NormalizeName(existing) != models.NormalizeName(br) {
		return errors.ConfigurationError(errors.CodeConfigConflict, "branch_key", store,
			fmt.Errorf("store %q maps to both %q and %q", store, existing, br))
	}
	key[store] = br
	return nil
}

func findColumn(columns []string, want string) (string, bool) {
	norm := models.NormalizeName(want)
	for _, c := range columns {
		if models.NormalizeName(c) == norm {
			return c, true
		}
	}
	return "", false
}

func missingKeyColumn(path, column string) error {
	return errors.SchemaError(errors.CodeMissingField, "BRANCH_KEY", column).
		WithContext("source", path).
		WithSuggestion("set parsing.branch_key.store_column and branch_column to the key's headers")
}
