package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/botforge/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "botforge",
	Short: "Botforge is a conversational bot authoring engine",
	Long: `Botforge stores, validates and runs conversational bot scenarios:
typed node graphs compiled to a portable JSON document, executed through
a restart-safe suspend/resume protocol.`,
}

// newLogger builds the process logger with correlation ID injection.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
