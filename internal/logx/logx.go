// Package logx builds component-scoped zerolog loggers. Grounded on
// internal/log/progress.go's zerolog usage, generalized from a
// CLI-progress use case to request/event-scoped structured logging:
// every component receives its own zerolog.Logger at construction
// rather than reaching for a package-level global.
package logx

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds a root logger at the given level ("debug", "info",
// "warn", "error"), writing to w (os.Stdout if nil).
func New(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339
	l := zerolog.New(w).With().Timestamp().Logger()
	return l.Level(parseLevel(level))
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger tagged with the owning component
// name, e.g. logx.Component(root, "orchestrator").
func Component(root zerolog.Logger, name string) zerolog.Logger {
	return root.With().Str("component", name).Logger()
}

// ForVenue tags a logger with the venue it operates on.
func ForVenue(l zerolog.Logger, venue string) zerolog.Logger {
	return l.With().Str("venue", venue).Logger()
}
