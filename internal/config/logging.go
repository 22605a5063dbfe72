package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the slog.Logger described by c.
func NewLogger(c LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(orDefault(c.Level, DefaultLogLevel)))); err != nil {
		return nil, fmt.Errorf("config: log level %q: %w", c.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch orDefault(c.Format, DefaultLogFormat) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("config: unknown log format %q", c.Format)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
