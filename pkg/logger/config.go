package logger

import (
	"log/slog"
	"strings"
)

// Config holds logger settings read from the environment.
type Config struct {
	Env    string `env:"APP_ENV" envDefault:"development"`
	Level  string `env:"LOG_LEVEL" envDefault:""`
	Format string `env:"LOG_FORMAT" envDefault:""`
}

// FromConfig creates a logger using environment presets, then applies explicit
// level and format overrides from cfg. Extra options are applied last.
func FromConfig(cfg Config, service string, opts ...Option) *slog.Logger {
	all := []Option{WithEnvironment(cfg.Env, service)}
	if cfg.Level != "" {
		all = append(all, WithLevel(ParseLevel(cfg.Level)))
	}
	if cfg.Format != "" {
		all = append(all, WithFormat(Format(strings.ToLower(cfg.Format))))
	}
	all = append(all, opts...)
	return New(all...)
}

// ParseLevel converts a level name to slog.Level. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
