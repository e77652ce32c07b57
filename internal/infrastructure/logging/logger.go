// Package logging builds the process-wide structured logger.
//
// Every subsystem declares its own small Logger interface with
// Debug/Info/Warn/Error methods; this package produces the *Logger
// they all share. Records are line-delimited slog output, JSON by
// default so journald and log shippers can parse them, with the
// service name and build version stamped on every record.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Nileneb/growdash/internal/infrastructure/config"
)

// service tags every record so co-located processes can be told apart.
const service = "growdash"

// Logger is the concrete logger handed to every subsystem. Embedding
// slog.Logger satisfies the per-package Logger interfaces directly.
// Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the loaded configuration. Unrecognised
// settings fall back instead of failing: unknown level means info,
// unknown format means JSON, unknown output means stdout.
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, writerFor(cfg.Output))
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: levelFor(cfg.Level)}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	h = h.WithAttrs([]slog.Attr{
		slog.String("service", service),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(h)}
}

// Default is the bootstrap logger used before configuration is loaded:
// info-level JSON on stdout, version "dev".
func Default() *Logger {
	return New(config.LoggingConfig{}, "dev")
}

// Component returns a child logger whose records carry a component
// attribute naming the subsystem they came from.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// With returns a child logger with additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func levelFor(name string) slog.Level {
	if lv, ok := levels[strings.ToLower(name)]; ok {
		return lv
	}
	return slog.LevelInfo
}

func writerFor(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}
