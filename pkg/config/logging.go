package config

import (
	"io"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
)

// Logger returns a logger writing to w with the configured level and format.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := c.Logging.level()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	switch c.Logging.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, errors.Errorf("invalid log format %q: expected text or json", c.Logging.Format)
	}
}

func (l Logging) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(l.Level))); err != nil {
		return level, errors.Errorf("invalid log level %q: expected debug, info, warn or error", l.Level)
	}
	return level, nil
}
