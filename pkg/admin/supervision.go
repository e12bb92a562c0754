package admin

import (
	"context"
	"log/slog"
	"strings"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/supervisor"
)

// Supervision exposes the supervisor operations on their own. Unlike
// Service it needs no queue storage, only the status records behind the
// controller.
type Supervision struct {
	control Controller
	logger  *slog.Logger
}

// NewSupervision returns a Supervision over control. A nil control makes
// every operation fail with ErrNoControl.
func NewSupervision(control Controller, log *slog.Logger) *Supervision {
	if log == nil {
		log = slog.Default()
	}
	return &Supervision{control: control, logger: log.With(logger.Component("admin"))}
}

// Start launches the supervisor unless one is running.
func (s *Supervision) Start(ctx context.Context) Result {
	return s.controlled(ctx, func(c Controller) (supervisor.State, error) { return c.Start(ctx) })
}

// Stop stops the supervisor, gracefully or with force.
func (s *Supervision) Stop(ctx context.Context, force bool) Result {
	return s.controlled(ctx, func(c Controller) (supervisor.State, error) { return c.Stop(ctx, force) })
}

// Restart stops the supervisor gracefully and starts it again.
func (s *Supervision) Restart(ctx context.Context) Result {
	return s.controlled(ctx, func(c Controller) (supervisor.State, error) { return c.Restart(ctx) })
}

// Status reports the supervisor and all worker slots.
func (s *Supervision) Status(ctx context.Context) Result {
	if s.control == nil {
		return fail(ErrNoControl)
	}
	report, err := s.control.Status(ctx)
	if err != nil {
		return fail(err)
	}
	return ok(report)
}

// Workers reports the worker slots matching vhost and name. Empty values
// match everything.
func (s *Supervision) Workers(ctx context.Context, vhost, name string) Result {
	if s.control == nil {
		return fail(ErrNoControl)
	}
	report, err := s.control.Status(ctx)
	if err != nil {
		return fail(err)
	}
	out := make([]supervisor.WorkerReport, 0, len(report.Workers))
	for _, w := range report.Workers {
		if (vhost == "" || w.VHost == vhost) && (name == "" || w.Queue == name) {
			out = append(out, w)
		}
	}
	return ok(out)
}

func (s *Supervision) controlled(ctx context.Context, fn func(Controller) (supervisor.State, error)) Result {
	if s.control == nil {
		return fail(ErrNoControl)
	}
	state, err := fn(s.control)
	if err != nil {
		s.logger.ErrorContext(ctx, "supervisor control failed", logger.Error(err))
		return fail(err)
	}
	res := ok(map[string]supervisor.State{"state": state})
	res.Message = strings.ReplaceAll(string(state), "_", " ")
	return res
}
