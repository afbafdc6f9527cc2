package cli

import (
	"log/slog"
	"os"
	"strings"
)

// newLogger builds the process logger from DUBCLIP_LOG_LEVEL and
// DUBCLIP_LOG_FORMAT. Text on stderr is the default; "json" switches to
// machine-readable output.
func newLogger() *slog.Logger {
	options := &slog.HandlerOptions{Level: parseLogLevel(os.Getenv("DUBCLIP_LOG_LEVEL"))}

	var handler slog.Handler
	if strings.ToLower(strings.TrimSpace(os.Getenv("DUBCLIP_LOG_FORMAT"))) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, options)
	} else {
		handler = slog.NewTextHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

func parseLogLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
