package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/status"
)

// State is the outcome of a control operation.
type State string

const (
	StateRunning        State = "running"
	StateNotRunning     State = "not_running"
	StateAlreadyRunning State = "already_running"
	StateStarted        State = "started"
	StateStopping       State = "stopping"
	StateStopped        State = "stopped"
)

// Launcher starts a supervisor process in the background and returns its pid.
type Launcher func(ctx context.Context) (int, error)

// Signaler delivers a stop signal to a process.
type Signaler func(pid int, force bool) error

// Control starts, stops and inspects the supervisor from outside its process.
// It only talks to the supervisor through the status store and signals.
type Control struct {
	records      status.Store
	launch       Launcher
	signal       Signaler
	alive        func(pid int) bool
	waitTimeout  time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

// ControlOption configures a Control.
type ControlOption func(*Control)

// WithLauncher sets how Start spawns a supervisor.
func WithLauncher(l Launcher) ControlOption {
	return func(c *Control) { c.launch = l }
}

// WithSignaler replaces status.Signal.
func WithSignaler(s Signaler) ControlOption {
	return func(c *Control) {
		if s != nil {
			c.signal = s
		}
	}
}

// WithControlProbe replaces status.Alive.
func WithControlProbe(alive func(pid int) bool) ControlOption {
	return func(c *Control) {
		if alive != nil {
			c.alive = alive
		}
	}
}

// WithWaitTimeout bounds how long Start and Stop wait for the supervisor to
// come up or go away. It should exceed the supervisor shutdown timeout.
func WithWaitTimeout(d time.Duration) ControlOption {
	return func(c *Control) {
		if d > 0 {
			c.waitTimeout = d
		}
	}
}

// WithControlLogger sets the logger.
func WithControlLogger(l *slog.Logger) ControlOption {
	return func(c *Control) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewControl returns a Control reading records.
func NewControl(records status.Store, opts ...ControlOption) *Control {
	c := &Control{
		records:      records,
		signal:       status.Signal,
		alive:        status.Alive,
		waitTimeout:  35 * time.Second,
		pollInterval: 50 * time.Millisecond,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("supervisor-control"))
	return c
}

// WorkerReport describes one worker slot.
type WorkerReport struct {
	VHost     string    `json:"vhost"`
	Queue     string    `json:"queue"`
	Index     int       `json:"index"`
	PID       int       `json:"pid"`
	Running   bool      `json:"running"`
	Busy      bool      `json:"busy"`
	Stopping  bool      `json:"stopping"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Report is the supervisor status as seen from the status store.
type Report struct {
	State     State          `json:"state"`
	PID       int            `json:"pid,omitempty"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
	Stopping  bool           `json:"stopping"`
	Workers   []WorkerReport `json:"workers"`
}

// Start launches a supervisor unless a live one holds the record.
func (c *Control) Start(ctx context.Context) (State, error) {
	if _, running, err := c.current(ctx); err != nil {
		return "", err
	} else if running {
		return StateAlreadyRunning, nil
	}
	if c.launch == nil {
		return "", ErrLauncherMissing
	}

	pid, err := c.launch(ctx)
	if err != nil {
		return "", fmt.Errorf("launch supervisor: %w", err)
	}
	c.logger.InfoContext(ctx, "supervisor launched", logger.PID(pid))

	up := c.wait(ctx, func() bool {
		rec, running, err := c.current(ctx)
		return err == nil && running && rec.PID == pid
	})
	if !up {
		c.logger.WarnContext(ctx, "supervisor record did not appear in time", logger.PID(pid))
	}
	return StateStarted, nil
}

// Stop asks the live supervisor to stop: gracefully, or with force, which
// also kills its process. It waits for the process to go away and reports
// StateStopping when it did not in time.
func (c *Control) Stop(ctx context.Context, force bool) (State, error) {
	rec, running, err := c.current(ctx)
	if err != nil {
		return "", err
	}
	if !running {
		if rec != nil {
			c.cleanup(ctx, rec.PID)
		}
		return StateNotRunning, nil
	}

	if _, err := c.records.Update(ctx, status.SupervisorKey(), func(r *status.Record) {
		r.Stopping = true
		r.Force = r.Force || force
		r.UpdatedAt = time.Now()
	}); err != nil && !errors.Is(err, status.ErrNotFound) {
		return "", fmt.Errorf("flag supervisor for stop: %w", err)
	}

	if err := c.signal(rec.PID, force); err != nil && c.alive(rec.PID) {
		return "", fmt.Errorf("signal supervisor %d: %w", rec.PID, err)
	}

	gone := c.wait(ctx, func() bool { return !c.alive(rec.PID) })
	if !gone {
		return StateStopping, nil
	}
	c.cleanup(ctx, rec.PID)
	return StateStopped, nil
}

// Restart stops the supervisor gracefully and starts a new one.
func (c *Control) Restart(ctx context.Context) (State, error) {
	state, err := c.Stop(ctx, false)
	if err != nil {
		return "", err
	}
	if state == StateStopping {
		return StateStopping, nil
	}
	return c.Start(ctx)
}

// Status reports the supervisor and every worker record.
func (c *Control) Status(ctx context.Context) (*Report, error) {
	rec, running, err := c.current(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{State: StateNotRunning, Workers: []WorkerReport{}}
	if running {
		report.State = StateRunning
		report.PID = rec.PID
		report.StartedAt = &rec.StartedAt
		report.Stopping = rec.Stopping
	}

	workers, err := c.records.List(ctx, status.RoleWorker)
	if err != nil {
		return nil, fmt.Errorf("list worker records: %w", err)
	}
	for _, w := range workers {
		report.Workers = append(report.Workers, WorkerReport{
			VHost:     w.VHost,
			Queue:     w.Queue,
			Index:     w.Index,
			PID:       w.PID,
			Running:   c.alive(w.PID),
			Busy:      w.Busy,
			Stopping:  w.Stopping,
			StartedAt: w.StartedAt,
			UpdatedAt: w.UpdatedAt,
		})
	}
	return report, nil
}

// current returns the supervisor record, if any, and whether its process
// is alive.
func (c *Control) current(ctx context.Context) (*status.Record, bool, error) {
	rec, err := c.records.Get(ctx, status.SupervisorKey())
	if errors.Is(err, status.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read supervisor record: %w", err)
	}
	return rec, c.alive(rec.PID), nil
}

// cleanup removes records left behind by a dead supervisor process.
func (c *Control) cleanup(ctx context.Context, pid int) {
	if c.alive(pid) {
		return
	}
	if rec, err := c.records.Get(ctx, status.SupervisorKey()); err == nil && rec.PID == pid {
		_ = c.records.Delete(ctx, status.SupervisorKey())
	}

	workers, err := c.records.List(ctx, status.RoleWorker)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to list worker records", logger.Error(err))
		return
	}
	for _, w := range workers {
		if w.PID == pid {
			if err := c.records.Delete(ctx, w.Key()); err != nil {
				c.logger.WarnContext(ctx, "failed to delete stale worker record", logger.Error(err))
			}
		}
	}
}

// wait polls done until it holds, the wait timeout passes or ctx ends.
func (c *Control) wait(ctx context.Context, done func() bool) bool {
	deadline := time.NewTimer(c.waitTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(c.pollInterval)
	defer tick.Stop()

	for {
		if done() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-tick.C:
		}
	}
}
