package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// ParseLevel maps "debug", "info", "warn" or "error" to a slog level (default info).
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initialises the global slog default logger.
// level may be "debug", "info", "warn", or "error" (default "info").
// format may be "json" or "text" (default "json").
// When file is set, records are also appended to it as JSON; the returned func closes it.
func Setup(level, format, file string) func() error {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	cleanup := func() error { return nil }
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			slog.New(handler).Error("failed to open log file, using stdout only", "error", err, "file", file)
		} else {
			handler = slogmulti.Fanout(handler, slog.NewJSONHandler(f, opts))
			cleanup = f.Close
		}
	}

	slog.SetDefault(slog.New(handler))
	return cleanup
}

// NewCLI builds the logger used by the overlapscan command: text on stderr so stdout
// stays clean for exported data, plus an optional JSON copy in w.
func NewCLI(stderr, w io.Writer, level slog.Level) *slog.Logger {
	textHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})
	if w == nil {
		return slog.New(textHandler)
	}
	return slog.New(slogmulti.Fanout(textHandler, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}
