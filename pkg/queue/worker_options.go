package queue

import (
	"log/slog"
	"time"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/status"
)

// WorkerOption is a functional option for configuring a worker
type WorkerOption func(*workerOptions)

type workerOptions struct {
	vhost        string
	group        string
	index        int
	records      status.Store
	pollInterval time.Duration
	logger       *slog.Logger
}

// WithWorkerVHost sets the virtual host the worker consumes from
func WithWorkerVHost(vhost string) WorkerOption {
	return func(o *workerOptions) {
		if vhost != "" {
			o.vhost = vhost
		}
	}
}

// WithWorkerGroup sets the queue group the worker consumes from
func WithWorkerGroup(group string) WorkerOption {
	return func(o *workerOptions) {
		if group != "" {
			o.group = group
		}
	}
}

// WithWorkerIndex sets the slot index the worker reports in its status record
func WithWorkerIndex(index int) WorkerOption {
	return func(o *workerOptions) {
		if index >= 0 {
			o.index = index
		}
	}
}

// WithStatusStore sets where the worker keeps its status record
func WithStatusStore(store status.Store) WorkerOption {
	return func(o *workerOptions) {
		if store != nil {
			o.records = store
		}
	}
}

// WithPollInterval sets how long an idle worker waits before claiming again.
// The actual sleep is jittered around it.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithWorkerLogger sets the logger for the worker
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
