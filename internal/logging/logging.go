// Package logging builds the service's slog logger from configuration.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"auth-service/pkg/config"
)

// New returns a logger writing to stdout, configured by logging.level and logging.format.
func New(cfg *config.Config) *slog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.GetLogLevel(slog.LevelInfo),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.GetStringWithDefault("logging.format", "text")) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
