package infra

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Guizzs26/go-sync-bridge/internal/config"
)

// SetupLogger builds the process logger. The returned closer releases the
// optional log file and is safe to call when none was opened.
func SetupLogger(cfg *config.Config) (*slog.Logger, func() error) {
	var level slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	closer := func() error { return nil }

	if cfg.LogFile != "" {
		logFile, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			slog.Warn("Cannot open log file, logging to stdout only", "path", cfg.LogFile, "error", err)
		} else {
			out = io.MultiWriter(os.Stdout, logFile)
			closer = logFile.Close
		}
	}

	return NewLogger(out, level, cfg.LogFormat), closer
}

// NewLogger picks the slog handler for the configured format
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToUpper(format) == "JSON" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
