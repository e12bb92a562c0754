package supervisor

import (
	"log/slog"
	"time"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/status"
)

type options struct {
	checkInterval   time.Duration
	shutdownTimeout time.Duration
	pollInterval    time.Duration
	records         status.Store
	alive           func(pid int) bool
	logger          *slog.Logger
}

// Option configures a Supervisor.
type Option func(*options)

// WithCheckInterval sets the health check period.
func WithCheckInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.checkInterval = d
		}
	}
}

// WithShutdownTimeout bounds how long a graceful stop waits for workers
// before forcing them.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithPollInterval is passed to every worker.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithStatusStore sets where supervisor and worker records live.
func WithStatusStore(store status.Store) Option {
	return func(o *options) {
		if store != nil {
			o.records = store
		}
	}
}

// WithProcessProbe replaces status.Alive.
func WithProcessProbe(alive func(pid int) bool) Option {
	return func(o *options) {
		if alive != nil {
			o.alive = alive
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithConfig applies the non-zero durations of cfg.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		WithCheckInterval(cfg.CheckInterval)(o)
		WithShutdownTimeout(cfg.ShutdownTimeout)(o)
	}
}
