package queue

import (
	"log/slog"
	"time"
)

// EngineOption is a functional option for configuring an Engine
type EngineOption func(*engineOptions)

type engineOptions struct {
	now    func() time.Time
	logger *slog.Logger
}

// WithEngineClock replaces the wall clock used to turn scheduled instants
// into delays
func WithEngineClock(now func() time.Time) EngineOption {
	return func(o *engineOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithEngineLogger sets the logger for the engine
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
