package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"card-reconciliation-service/internal/aggregator"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"

	"github.com/spf13/afero"
)

// Output writes a generated report to a file or to a fallback writer
type Output struct {
	generator *ReportGenerator
	fs        afero.Fs
	stdout    io.Writer
	logger    logger.Logger
}

// NewOutput creates an output over fs. Reports without a file path go to
// stdout.
func NewOutput(fs afero.Fs, config *ReportConfig, stdout io.Writer) (*Output, error) {
	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, err
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if stdout == nil {
		stdout = os.Stdout
	}

	return &Output{
		generator: generator,
		fs:        fs,
		stdout:    stdout,
		logger:    logger.GetGlobalLogger().WithComponent("reporter"),
	}, nil
}

// Write renders report to path, or to stdout when path is empty or "-".
// When path cannot be created the report is written next to it with a
// _backup suffix.
func (o *Output) Write(report *aggregator.ReconciliationReport, path string) error {
	if path == "" || path == "-" {
		return o.wrapGenerationError(o.generator.GenerateReport(report, o.stdout))
	}

	o.logger.WithFields(logger.Fields{
		"format": o.generator.config.Format,
		"output": path,
	}).Info("Writing report")

	file, err := o.create(path)
	if err != nil {
		if !isFileError(err) {
			return errors.FileError(errors.CodeDirectoryError, path, err)
		}
		return o.writeBackup(report, path, err)
	}

	if err := o.generator.GenerateReport(report, file); err != nil {
		file.Close()
		return o.wrapGenerationError(err)
	}
	if err := file.Close(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	return nil
}

func (o *Output) create(path string) (afero.File, error) {
	dir := filepath.Dir(path)
	if _, err := o.fs.Stat(dir); os.IsNotExist(err) {
		if err := o.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return o.fs.Create(path)
}

func (o *Output) writeBackup(report *aggregator.ReconciliationReport, path string, originalErr error) error {
	backupPath := backupPath(path)
	o.logger.WithError(originalErr).WithFields(logger.Fields{
		"original_file": path,
		"backup_file":   backupPath,
	}).Warn("Cannot write report, trying backup location")

	file, err := o.fs.Create(backupPath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, originalErr).
			WithSuggestion("check the output directory exists and is writable")
	}
	defer file.Close()

	if err := o.generator.GenerateReport(report, file); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "report_output_fallback",
			fmt.Errorf("both primary and backup output failed: primary=%v, backup=%v", originalErr, err))
	}

	o.logger.WithField("backup_file", backupPath).Warn("Report written to backup location")
	return nil
}

func (o *Output) wrapGenerationError(err error) error {
	if err == nil {
		return nil
	}
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}
	return errors.InternalError(errors.CodeProcessingError, "report_generation", err).
		WithSuggestion("check the output destination and report format settings")
}

func backupPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_backup" + ext
}

func isFileError(err error) bool {
	if os.IsPermission(err) || os.IsExist(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no space left") || strings.Contains(msg, "read-only")
}
