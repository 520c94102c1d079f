// Package parsers loads channel exports into raw batches for the
// reconciler.
//
// Parsing stops at the raw row level: every cell is kept as the text the
// file holds, keyed by its header. Mapping headers to canonical fields and
// coercing values belongs to the normalizer, so a parser needs no
// per-channel knowledge beyond the channel name it tags a batch with.
//
// Files are read through an afero filesystem, which lets tests run against
// an in-memory tree:
//
//	parser := NewBaseParser(afero.NewOsFs(), DefaultParseConfig())
//	batch, err := parser.ReadBatch(ctx, "KCB", "exports/kcb_january.csv")
//
// Several exports are loaded concurrently with ReadAll, and the store to
// branch key is loaded from CSV or YAML with LoadBranchKey.
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"

	"github.com/spf13/afero"
)

const utf8BOM = "\ufeff"

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	Delimiter        string `mapstructure:"delimiter" json:"delimiter"`
	Comment          string `mapstructure:"comment" json:"comment,omitempty"`
	TrimLeadingSpace bool   `mapstructure:"trim_leading_space" json:"trim_leading_space"`
	SkipEmptyRows    bool   `mapstructure:"skip_empty_rows" json:"skip_empty_rows"`
	MaxFieldSize     int    `mapstructure:"max_field_size" json:"max_field_size"`
	ValidateEncoding bool   `mapstructure:"validate_encoding" json:"validate_encoding"`

	// Concurrency bounds how many files ReadAll reads at once
	Concurrency int `mapstructure:"concurrency" json:"concurrency"`

	BranchKey BranchKeyColumns `mapstructure:"branch_key" json:"branch_key"`
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:        ",",
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     1000000, // 1MB per field
		ValidateEncoding: true,
		Concurrency:      4,
		BranchKey:        DefaultBranchKeyColumns(),
	}
}

// Validate checks the parse configuration
func (c *ParseConfig) Validate() error {
	if utf8.RuneCountInString(c.Delimiter) != 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "parsing.delimiter", c.Delimiter,
			fmt.Errorf("delimiter must be a single character"))
	}
	if utf8.RuneCountInString(c.Comment) > 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "parsing.comment", c.Comment,
			fmt.Errorf("comment must be empty or a single character"))
	}
	if c.Comment != "" && c.Comment == c.Delimiter {
		return errors.ConfigurationError(errors.CodeConfigConflict, "parsing.comment", c.Comment,
			fmt.Errorf("comment and delimiter must differ"))
	}
	if c.MaxFieldSize < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "parsing.max_field_size", c.MaxFieldSize,
			fmt.Errorf("must not be negative"))
	}
	if c.Concurrency <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "parsing.concurrency", c.Concurrency,
			fmt.Errorf("must be positive"))
	}
	return c.BranchKey.Validate()
}

func (c *ParseConfig) delimiter() rune {
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}

func (c *ParseConfig) comment() rune {
	if c.Comment == "" {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(c.Comment)
	return r
}

// BaseParser reads CSV exports from a filesystem
type BaseParser struct {
	fs     afero.Fs
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a parser over fs. A nil fs means the OS
// filesystem and a nil config the defaults.
func NewBaseParser(fs afero.Fs, config *ParseConfig) *BaseParser {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.GetGlobalLogger().WithComponent("parser")
	log.WithFields(logger.Fields{
		"delimiter":         config.Delimiter,
		"validate_encoding": config.ValidateEncoding,
		"max_field_size":    config.MaxFieldSize,
		"concurrency":       config.Concurrency,
	}).Debug("Created parser")

	return &BaseParser{
		fs:     fs,
		config: config,
		logger: log,
	}
}

// Config returns the parse configuration
func (bp *BaseParser) Config() *ParseConfig {
	return bp.config
}

// ParseContext holds state while one file is read
type ParseContext struct {
	File       string
	LineNumber int
	Headers    []string
	ctx        context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context, file string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{File: file, ctx: ctx}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// OpenFile opens a CSV file and returns it with a configured csv.Reader
func (bp *BaseParser) OpenFile(filePath string) (afero.File, *csv.Reader, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening CSV file")

	file, err := bp.fs.Open(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")
		return nil, nil, openError(filePath, err)
	}

	if info, err := file.Stat(); err == nil && info.IsDir() {
		file.Close()
		return nil, nil, errors.FileError(errors.CodeDirectoryError, filePath,
			fmt.Errorf("%s is a directory", filePath))
	}

	if bp.config.ValidateEncoding {
		if err := bp.validateEncoding(file, filePath); err != nil {
			file.Close()
			bp.logger.WithError(err).WithField("file_path", filePath).Error("File encoding validation failed")
			return nil, nil, err
		}

		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
		}
	}

	reader := csv.NewReader(file)
	bp.configureReader(reader)

	return file, reader, nil
}

// openError classifies a failure to open path
func openError(path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return errors.FileError(errors.CodeFileNotFound, path, err)
	case os.IsPermission(err):
		return errors.FileError(errors.CodeFilePermission, path, err)
	default:
		return errors.FileError(errors.CodeDirectoryError, path, err)
	}
}

func (bp *BaseParser) configureReader(reader *csv.Reader) {
	reader.Comma = bp.config.delimiter()
	reader.Comment = bp.config.comment()
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
}

// validateEncoding checks that the first lines are valid UTF-8
func (bp *BaseParser) validateEncoding(file afero.File, filePath string) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), bp.config.MaxFieldSize+64*1024)
	lineNum := 0

	for scanner.Scan() && lineNum < 100 {
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(errors.CodeEncodingError, filePath, lineNum,
				fmt.Errorf("invalid UTF-8 encoding detected")).
				WithSuggestion("save the file in UTF-8 encoding and try again")
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}
	return nil
}

// ReadHeaders reads the header row. Header text is trimmed and a leading
// byte order mark is removed. A repeated header keeps its first column.
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, pc *ParseContext) ([]int, error) {
	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.ParseError(errors.CodeInvalidFormat, pc.File, 1,
				fmt.Errorf("file is empty")).
				WithSuggestion("ensure the file contains a header row")
		}
		return nil, errors.ParseError(errors.CodeInvalidFormat, pc.File, 1, err).
			WithSuggestion("check the file format and ensure it's a valid CSV")
	}
	pc.LineNumber++

	seen := make(map[string]bool, len(headers))
	var keep []int
	for i, h := range headers {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if seen[h] {
			bp.logger.WithFields(logger.Fields{
				"file":   pc.File,
				"header": h,
				"column": i + 1,
			}).Warn("Repeated header ignored")
			continue
		}
		seen[h] = true
		pc.Headers = append(pc.Headers, h)
		keep = append(keep, i)
	}

	if len(pc.Headers) == 0 {
		return nil, errors.ParseError(errors.CodeInvalidFormat, pc.File, 1,
			fmt.Errorf("header row has no column names"))
	}
	return keep, nil
}

// ReadRecord reads the next non-empty record
func (bp *BaseParser) ReadRecord(reader *csv.Reader, pc *ParseContext) ([]string, error) {
	for {
		if pc.IsCancelled() {
			return nil, errors.ReconciliationError(errors.CodeCancelled, "ingestion", pc.ctx.Err()).
				WithContext("file", pc.File)
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			return nil, errors.ParseError(errors.CodeInvalidFormat, pc.File, pc.LineNumber+1, err)
		}
		pc.LineNumber++

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		if bp.config.MaxFieldSize > 0 {
			for i, field := range record {
				if len(field) > bp.config.MaxFieldSize {
					return nil, errors.ParseError(errors.CodeInvalidFormat, pc.File, pc.LineNumber,
						fmt.Errorf("column %d is %d bytes, limit is %d", i+1, len(field), bp.config.MaxFieldSize))
				}
			}
		}

		return record, nil
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
