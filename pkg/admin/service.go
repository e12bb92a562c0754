package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/supervisor"
)

// Engine is the part of queue.Engine the service drives.
type Engine interface {
	queue.Consumer
	queue.Producer
	Get(ctx context.Context, vhost, id string) (*queue.Message, error)
	LockByID(ctx context.Context, vhost, id string) (*queue.Message, error)
	UnlockByID(ctx context.Context, vhost, id, lease string) (*queue.Message, error)
	AckByID(ctx context.Context, vhost, id string) error
	ResetByID(ctx context.Context, vhost, id string) (*queue.Message, error)
	DeleteByID(ctx context.Context, vhost, id string) error
	Peek(ctx context.Context, vhost, group, queue string, n int) ([]*queue.Message, error)
	Length(ctx context.Context, vhost, group, queue string) (int, error)
	List(ctx context.Context, vhost string, filter queue.Filter) (*queue.Page, error)
}

// Controller is the out-of-process supervisor control.
type Controller interface {
	Start(ctx context.Context) (supervisor.State, error)
	Stop(ctx context.Context, force bool) (supervisor.State, error)
	Restart(ctx context.Context) (supervisor.State, error)
	Status(ctx context.Context) (*supervisor.Report, error)
}

// Service exposes the administrative operations. Every method returns a
// Result and never an error.
type Service struct {
	engine   Engine
	source   supervisor.Source
	registry *supervisor.Registry
	control  Controller
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithControl enables the supervisor operations.
func WithControl(c Controller) Option {
	return func(s *Service) { s.control = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService returns a Service. The topology source resolves queue names to
// their group and callback.
func NewService(engine Engine, source supervisor.Source, registry *supervisor.Registry, opts ...Option) (*Service, error) {
	switch {
	case engine == nil:
		return nil, ErrEngineNil
	case source == nil:
		return nil, ErrSourceNil
	case registry == nil:
		return nil, ErrRegistryNil
	}

	s := &Service{
		engine:   engine,
		source:   source,
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("admin"))
	return s, nil
}

// Length counts the messages of a configured queue.
func (s *Service) Length(ctx context.Context, vhost, name string) Result {
	spec, err := s.queueSpec(ctx, vhost, name)
	if err != nil {
		return fail(err)
	}
	n, err := s.engine.Length(ctx, vhost, spec.Group, name)
	if err != nil {
		return fail(err)
	}
	return ok(map[string]int{"length": n})
}

// Peek returns up to n claimable messages of a configured queue.
func (s *Service) Peek(ctx context.Context, vhost, name string, n int) Result {
	if n <= 0 {
		return fail(fmt.Errorf("%w: peek count must be positive", ErrInvalidArgument))
	}
	spec, err := s.queueSpec(ctx, vhost, name)
	if err != nil {
		return fail(err)
	}
	msgs, err := s.engine.Peek(ctx, vhost, spec.Group, name, n)
	if err != nil {
		return fail(err)
	}
	return ok(msgs)
}

// List pages through the messages of a vhost. A queue named in the filter
// must be configured; its group is filled in when the filter has none.
func (s *Service) List(ctx context.Context, vhost string, filter queue.Filter) Result {
	if !filter.Lock.Valid() {
		return fail(fmt.Errorf("%w: lock state %q", ErrInvalidArgument, filter.Lock))
	}
	if filter.Queue != "" {
		spec, err := s.queueSpec(ctx, vhost, filter.Queue)
		if err != nil {
			return fail(err)
		}
		if filter.Group == "" {
			filter.Group = spec.Group
		}
	}
	page, err := s.engine.List(ctx, vhost, filter)
	if err != nil {
		return fail(err)
	}
	return ok(page)
}

// Get returns one message.
func (s *Service) Get(ctx context.Context, vhost, id string) Result {
	return s.byID(ctx, id, func() (any, error) { return s.engine.Get(ctx, vhost, id) })
}

// Delete removes a message regardless of its claim.
func (s *Service) Delete(ctx context.Context, vhost, id string) Result {
	return s.byID(ctx, id, func() (any, error) {
		return map[string]string{"id": id}, s.engine.DeleteByID(ctx, vhost, id)
	})
}

// Reset clears the retry state and claim of a message.
func (s *Service) Reset(ctx context.Context, vhost, id string) Result {
	return s.byID(ctx, id, func() (any, error) { return s.engine.ResetByID(ctx, vhost, id) })
}

// Lock claims a message manually. The returned message carries the lease
// that Unlock needs.
func (s *Service) Lock(ctx context.Context, vhost, id string) Result {
	return s.byID(ctx, id, func() (any, error) { return s.engine.LockByID(ctx, vhost, id) })
}

// Unlock releases a claim. An empty lease releases whatever claim is held.
func (s *Service) Unlock(ctx context.Context, vhost, id, lease string) Result {
	return s.byID(ctx, id, func() (any, error) { return s.engine.UnlockByID(ctx, vhost, id, lease) })
}

// Ack acknowledges a message by id, deleting it.
func (s *Service) Ack(ctx context.Context, vhost, id string) Result {
	return s.byID(ctx, id, func() (any, error) {
		return map[string]string{"id": id}, s.engine.AckByID(ctx, vhost, id)
	})
}

// ExecResult describes a manual execution.
type ExecResult struct {
	ID       string `json:"id"`
	Callback string `json:"callback"`
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// Exec runs the queue's callback on one message in the calling goroutine:
// the message is locked, executed and resolved exactly as a worker would.
func (s *Service) Exec(ctx context.Context, vhost, id string) Result {
	if id == "" {
		return fail(fmt.Errorf("%w: message id required", ErrInvalidArgument))
	}

	msg, err := s.engine.Get(ctx, vhost, id)
	if err != nil {
		return fail(err)
	}
	spec, err := s.queueSpec(ctx, vhost, msg.Queue)
	if err != nil {
		return fail(err)
	}
	cb, err := s.registry.Lookup(spec.Callback)
	if err != nil {
		return fail(err)
	}

	locked, err := s.engine.LockByID(ctx, vhost, id)
	if err != nil {
		return fail(err)
	}

	log := s.logger.With(
		logger.VHost(vhost),
		logger.Queue(locked.Queue),
		logger.MessageID(locked.ID),
		logger.Callback(cb.Name()))

	start := time.Now()
	cbErr := queue.Execute(ctx, cb, locked)
	applied, err := queue.Resolve(ctx, s.engine, locked, cbErr)
	if err != nil {
		log.ErrorContext(ctx, "manual execution not resolved", logger.Error(err))
		return fail(err)
	}

	res := ExecResult{
		ID:       locked.ID,
		Callback: cb.Name(),
		Outcome:  "acked",
		Duration: time.Since(start).String(),
	}
	switch {
	case !applied:
		res.Outcome = "lease_lost"
	case cbErr != nil:
		res.Outcome = "retry_scheduled"
	}
	if cbErr != nil {
		res.Error = cbErr.Error()
	}
	log.InfoContext(ctx, "manual execution finished", slog.String("outcome", res.Outcome))
	return ok(res)
}

// Enqueue stores a JSON payload under target ("queue[:key[:delay]]").
func (s *Service) Enqueue(ctx context.Context, vhost, target string, payload json.RawMessage) Result {
	t, err := queue.ParseTarget(target)
	if err != nil {
		return fail(err)
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return fail(fmt.Errorf("%w: payload must be valid JSON", ErrInvalidArgument))
	}
	spec, err := s.queueSpec(ctx, vhost, t.Queue)
	if err != nil {
		return fail(err)
	}
	key, err := s.engine.Enqueue(ctx, vhost, t, payload, queue.WithGroup(spec.Group))
	if err != nil {
		return fail(err)
	}
	return ok(map[string]string{
		"key": key,
		"id":  queue.MessageID(orDefault(vhost, queue.DefaultVHost), spec.Group, t.Queue, key),
	})
}

// SupervisorStart launches the supervisor unless one is running.
func (s *Service) SupervisorStart(ctx context.Context) Result {
	return s.supervision().Start(ctx)
}

// SupervisorStop stops the supervisor, gracefully or with force.
func (s *Service) SupervisorStop(ctx context.Context, force bool) Result {
	return s.supervision().Stop(ctx, force)
}

// SupervisorRestart stops the supervisor gracefully and starts it again.
func (s *Service) SupervisorRestart(ctx context.Context) Result {
	return s.supervision().Restart(ctx)
}

// SupervisorStatus reports the supervisor and all worker slots.
func (s *Service) SupervisorStatus(ctx context.Context) Result {
	return s.supervision().Status(ctx)
}

// WorkerStatus reports the worker slots, optionally narrowed to one vhost
// and queue.
func (s *Service) WorkerStatus(ctx context.Context, vhost, name string) Result {
	return s.supervision().Workers(ctx, vhost, name)
}

func (s *Service) supervision() *Supervision {
	return &Supervision{control: s.control, logger: s.logger}
}

func (s *Service) byID(ctx context.Context, id string, fn func() (any, error)) Result {
	if id == "" {
		return fail(fmt.Errorf("%w: message id required", ErrInvalidArgument))
	}
	data, err := fn()
	if err != nil {
		s.logger.DebugContext(ctx, "administrative operation rejected",
			logger.MessageID(id), logger.Error(err))
		return fail(err)
	}
	return ok(data)
}

// queueSpec resolves vhost/name against the current topology.
func (s *Service) queueSpec(ctx context.Context, vhost, name string) (supervisor.QueueSpec, error) {
	if name == "" {
		return supervisor.QueueSpec{}, queue.ErrQueueNameRequired
	}
	t, err := s.source.Load(ctx)
	if err != nil {
		return supervisor.QueueSpec{}, err
	}
	vhost = orDefault(vhost, queue.DefaultVHost)
	if _, known := t.VHosts[vhost]; !known {
		return supervisor.QueueSpec{}, fmt.Errorf("%w: %s", queue.ErrUnknownVHost, vhost)
	}
	return t.Queue(vhost, name)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
