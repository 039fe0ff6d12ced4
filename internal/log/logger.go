// Package log owns the process-wide JSON slog logger.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Attribute keys shared by every component, so log lines from the CLI, the
// orchestrator and the API can be joined on them.
const (
	KeyComponent = "component"
	KeyRunID     = "run_id"
	KeyDataset   = "dataset"
)

var (
	once   sync.Once
	logger *slog.Logger
)

// Setup logs JSON to stdout at level. Unknown levels mean INFO.
func Setup(level string) {
	SetupWriter(os.Stdout, level)
}

// SetupWriter is Setup with an explicit destination. The first call in a
// process wins; later calls are no-ops.
func SetupWriter(w io.Writer, level string) {
	once.Do(func() {
		logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
		slog.SetDefault(logger)
	})
}

var levels = map[string]slog.Level{
	"DEBUG":   slog.LevelDebug,
	"INFO":    slog.LevelInfo,
	"WARN":    slog.LevelWarn,
	"WARNING": slog.LevelWarn,
	"ERROR":   slog.LevelError,
}

// ParseLevel maps a config string to a slog level.
func ParseLevel(level string) slog.Level {
	if l, ok := levels[strings.ToUpper(strings.TrimSpace(level))]; ok {
		return l
	}
	return slog.LevelInfo
}

// Get returns the process logger, setting up an INFO logger on first use.
func Get() *slog.Logger {
	if logger == nil {
		Setup("INFO")
	}
	return logger
}

// WithComponent tags the process logger with a component name.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String(KeyComponent, name))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
