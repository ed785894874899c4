// Package logger wraps logrus with the configuration shape used across the
// registry binaries.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls level, format and destination.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePrefix string `yaml:"file_prefix"`
}

// Logger is a component-scoped logrus entry.
type Logger struct {
	*logrus.Entry
}

// New builds a logger from cfg. Unknown levels fall back to info, unknown
// formats to text, and an unwritable log file to stderr.
func New(cfg LoggingConfig) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	out, err := openOutput(cfg)
	if err != nil {
		base.SetOutput(os.Stderr)
		base.WithError(err).Warn("falling back to stderr for logs")
	} else {
		base.SetOutput(out)
	}

	return &Logger{Entry: logrus.NewEntry(base)}
}

// NewDefault returns an info-level text logger tagged with component.
func NewDefault(component string) *Logger {
	l := New(LoggingConfig{Level: "info", Format: "text", Output: "stderr"})
	return l.Component(component)
}

// NewDiscard returns a logger that drops everything. Tests use it.
func NewDiscard() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{Entry: logrus.NewEntry(base)}
}

// Component returns a child logger carrying a component field.
func (l *Logger) Component(name string) *Logger {
	if name == "" {
		return l
	}
	return &Logger{Entry: l.Entry.WithField("component", name)}
}

func openOutput(cfg LoggingConfig) (io.Writer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "registry"
		}
		f, err := os.OpenFile(prefix+".log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}
}
