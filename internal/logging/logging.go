// Package logging builds the process logger.
//
// Lines go to stderr and are appended to <logDir>/progress-monitor.log so
// a monitor started in the background can still be inspected later.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// LogFile is the log filename inside the configured log directory.
const LogFile = "progress-monitor.log"

// Logger wraps a charm logger with the file handle it writes to.
type Logger struct {
	*log.Logger
	file *os.File
}

// New opens (or creates) the log file in dir and returns a logger writing
// to it and to stderr. An unwritable directory is an error: callers treat
// it as a fatal startup failure.
func New(dir, level string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(dir, LogFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}

	l := log.NewWithOptions(io.MultiWriter(os.Stderr, f), log.Options{
		Prefix:          "devpulse",
		ReportTimestamp: true,
	})
	l.SetLevel(ParseLevel(level))
	return &Logger{Logger: l, file: f}, nil
}

// Discard returns a logger that drops everything. Used by tests and by
// the one-shot hook, which must stay silent on soft failures.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Prefix: "devpulse"})
}

// ParseLevel maps a config string to a level, defaulting to info.
func ParseLevel(level string) log.Level {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
