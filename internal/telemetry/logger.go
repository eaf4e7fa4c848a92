// Package telemetry provides logging and metrics for the call center.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const callIDKey contextKey = "call_id"

// NewLogger creates a structured JSON logger.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewHandler(w, level))
}

// NewHandler returns the JSON handler used by NewLogger so callers can wrap it.
func NewHandler(w io.Writer, level slog.Level) slog.Handler {
	if w == nil {
		w = os.Stdout
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// WithCallID stores the call id in ctx.
func WithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callIDKey, id)
}

// CallID retrieves the call id from ctx.
func CallID(ctx context.Context) string {
	if id, ok := ctx.Value(callIDKey).(string); ok {
		return id
	}
	return ""
}

// CallLogger returns a logger carrying the call id from ctx, if any.
func CallLogger(logger *slog.Logger, ctx context.Context) *slog.Logger {
	if id := CallID(ctx); id != "" {
		return logger.With(slog.String("call_id", id))
	}
	return logger
}
