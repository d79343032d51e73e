// Package logging builds the slog logger used across the engagement engine
// and provides typed attribute constructors so log fields stay uniform.
// No external dependencies - uses only standard library.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config controls logger construction.
type Config struct {
	// Level is one of debug, info, warn, error. Default: info.
	Level string
	// Format is json or text. Default: json.
	Format string
	// Output defaults to stdout.
	Output io.Writer
}

// New builds a logger from config. Unknown levels fall back to info,
// unknown formats to JSON.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// Discard returns a logger that drops everything; handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Engagement-related attribute helpers.
func UserID(id string) slog.Attr        { return slog.String("user_id", id) }
func BadgeID(id string) slog.Attr       { return slog.String("badge_id", id) }
func TrackerID(id string) slog.Attr     { return slog.String("tracker_id", id) }
func JourneyType(t string) slog.Attr    { return slog.String("journey_type", t) }
func Key(k string) slog.Attr            { return slog.String("key", k) }
func Points(n int64) slog.Attr          { return slog.Int64("points", n) }
func Streak(n int) slog.Attr            { return slog.Int("streak", n) }
func Component(name string) slog.Attr   { return slog.String("component", name) }
func Operation(name string) slog.Attr   { return slog.String("operation", name) }
func Latency(d time.Duration) slog.Attr { return slog.Duration("latency", d) }
func TaskKind(kind string) slog.Attr    { return slog.String("task_kind", kind) }

// Err wraps an error for logging; nil-safe.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
