package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type LoggerOption func(*loggerConfig)

type loggerConfig struct {
	json bool
	out  io.Writer
}

func WithJSON(json bool) LoggerOption {
	return func(cfg *loggerConfig) {
		cfg.json = json
	}
}

func WithWriter(w io.Writer) LoggerOption {
	return func(cfg *loggerConfig) {
		if w != nil {
			cfg.out = w
		}
	}
}

func NewLogger(level string, opts ...LoggerOption) *slog.Logger {
	cfg := loggerConfig{out: os.Stderr}
	for _, opt := range opts {
		opt(&cfg)
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if cfg.json {
		return slog.New(slog.NewJSONHandler(cfg.out, handlerOpts))
	}

	return slog.New(slog.NewTextHandler(cfg.out, handlerOpts))
}

func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel falls back to info for anything it does not know
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
