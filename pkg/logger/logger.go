// Package logger provides the structured logger shared by the reconciler's
// components: a small interface over logrus, configured from the run config.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the logging contract used across the reconciler
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger
	WithComponent(component string) Logger
}

// Fields are structured key-value pairs attached to a log line
type Fields map[string]interface{}

// Level is a log severity
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

var levels = map[Level]logrus.Level{
	DebugLevel: logrus.DebugLevel,
	InfoLevel:  logrus.InfoLevel,
	WarnLevel:  logrus.WarnLevel,
	ErrorLevel: logrus.ErrorLevel,
}

// Format is a log line layout
type Format string

const (
	JSONFormat Format = "json"
	TextFormat Format = "text"
)

// Output is where log lines go. Reports use stdout, so logs default to stderr.
type Output string

const (
	StdoutOutput  Output = "stdout"
	StderrOutput  Output = "stderr"
	FileOutput    Output = "file"
	DiscardOutput Output = "discard"
)

// Config is the log section of the run configuration
type Config struct {
	Level  Level  `json:"level" mapstructure:"level"`
	Format Format `json:"format" mapstructure:"format"`
	Output Output `json:"output" mapstructure:"output"`
	File   string `json:"file,omitempty" mapstructure:"file"`
}

// DefaultConfig logs info and above as text to stderr
func DefaultConfig() *Config {
	return &Config{
		Level:  InfoLevel,
		Format: TextFormat,
		Output: StderrOutput,
	}
}

// Validate checks the logger configuration
func (c *Config) Validate() error {
	if _, ok := levels[c.Level]; !ok {
		return fmt.Errorf("invalid log level %q, want one of %s", c.Level, strings.Join(levelNames(), ", "))
	}

	switch c.Format {
	case JSONFormat, TextFormat:
	default:
		return fmt.Errorf("invalid log format %q, want json or text", c.Format)
	}

	switch c.Output {
	case StdoutOutput, StderrOutput, DiscardOutput:
	case FileOutput:
		if strings.TrimSpace(c.File) == "" {
			return fmt.Errorf("log file path is required for file output")
		}
	default:
		return fmt.Errorf("invalid log output %q", c.Output)
	}
	return nil
}

func levelNames() []string {
	names := make([]string, 0, len(levels))
	for l := range levels {
		names = append(names, string(l))
	}
	sort.Strings(names)
	return names
}

func (c *Config) writer() (io.Writer, error) {
	switch c.Output {
	case StdoutOutput:
		return os.Stdout, nil
	case DiscardOutput:
		return io.Discard, nil
	case FileOutput:
		if err := os.MkdirAll(filepath.Dir(c.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return f, nil
	default:
		return os.Stderr, nil
	}
}

func formatter(format Format, timestamps, colors bool) logrus.Formatter {
	if format == JSONFormat {
		return &logrus.JSONFormatter{
			DisableTimestamp: !timestamps,
			TimestampFormat:  time.RFC3339,
		}
	}
	return &logrus.TextFormatter{
		DisableTimestamp: !timestamps,
		FullTimestamp:    timestamps,
		TimestampFormat:  "2006-01-02 15:04:05",
		DisableColors:    !colors,
	}
}

// entryLogger carries a logrus entry so fields accumulate across With* calls
type entryLogger struct {
	entry *logrus.Entry
}

func newEntryLogger(level Level, w io.Writer, f logrus.Formatter) *entryLogger {
	base := logrus.New()
	base.SetLevel(levels[level])
	base.SetOutput(w)
	base.SetFormatter(f)
	return &entryLogger{entry: logrus.NewEntry(base)}
}

// NewLogger builds a logger from config. A nil config means DefaultConfig.
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger configuration: %w", err)
	}

	w, err := config.writer()
	if err != nil {
		return nil, err
	}
	return newEntryLogger(config.Level, w, formatter(config.Format, true, config.Output != FileOutput)), nil
}

// NewWithWriter builds a logger writing untimestamped lines to w
func NewWithWriter(w io.Writer, level Level, format Format) (Logger, error) {
	if _, ok := levels[level]; !ok {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return newEntryLogger(level, w, formatter(format, false, false)), nil
}

func (l *entryLogger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *entryLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *entryLogger) Info(args ...interface{})                  { l.entry.Info(args...) }
func (l *entryLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *entryLogger) Warn(args ...interface{})                  { l.entry.Warn(args...) }
func (l *entryLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *entryLogger) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *entryLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *entryLogger) WithField(key string, value interface{}) Logger {
	return &entryLogger{entry: l.entry.WithField(key, value)}
}

func (l *entryLogger) WithFields(fields Fields) Logger {
	return &entryLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *entryLogger) WithError(err error) Logger {
	return &entryLogger{entry: l.entry.WithError(err)}
}

func (l *entryLogger) WithComponent(component string) Logger {
	return l.WithField("component", component)
}

var globalLogger Logger = newEntryLogger(InfoLevel, os.Stderr, formatter(TextFormat, true, true))

// SetGlobalLogger replaces the process-wide logger
func SetGlobalLogger(logger Logger) {
	globalLogger = logger
}

// GetGlobalLogger returns the process-wide logger
func GetGlobalLogger() Logger {
	return globalLogger
}

// WithComponent returns the global logger tagged with a component name
func WithComponent(component string) Logger {
	return globalLogger.WithComponent(component)
}
