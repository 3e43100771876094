package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Common field names shared by every component.
const (
	FieldSource = "source"
	FieldDomain = "domain"
	FieldError  = "error"
	FieldRunID  = "run_id"
	FieldCount  = "count"
	FieldStage  = "stage"
)

// New creates a logger writing to w with the given level and format.
// format is "json" or "text" (default text). A nil writer means stderr.
func New(level, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel converts a string log level to slog.Level.
// Unknown values map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// OrDefault returns l, or slog.Default() when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// Source returns a slog attribute for the signal provider.
func Source(name string) slog.Attr {
	return slog.String(FieldSource, name)
}

// Domain returns a slog attribute for a company domain.
func Domain(d string) slog.Attr {
	return slog.String(FieldDomain, d)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// RunID returns a slog attribute for the pipeline run identifier.
func RunID(id string) slog.Attr {
	return slog.String(FieldRunID, id)
}

// Count returns a slog attribute for a record count.
func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}

// Stage returns a slog attribute for the pipeline stage.
func Stage(name string) slog.Attr {
	return slog.String(FieldStage, name)
}
