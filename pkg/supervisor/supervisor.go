package supervisor

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/status"
)

// forceGrace is how long a forced worker gets to return before its record
// is dropped and the goroutine abandoned.
const forceGrace = 2 * time.Second

// Engine is what the supervisor needs from the queue engine.
type Engine interface {
	queue.Consumer
	Storage(vhost string) (queue.Storage, error)
	ReleaseExpired(ctx context.Context) (int, error)
}

type slot struct {
	Slot
	spec   QueueSpec
	worker *queue.Worker
	cancel context.CancelFunc
}

func (s *slot) key() status.Key {
	return status.WorkerKey(s.VHost, s.Queue, s.Index)
}

// Supervisor keeps the running workers in line with the topology. Workers
// are goroutines; every one owns a status record that is also the channel
// used to ask it to stop.
type Supervisor struct {
	engine   Engine
	source   Source
	registry *Registry
	opts     *options
	logger   *slog.Logger
	instance string

	// mu serializes whole cycles: start, check and shutdown.
	mu        sync.Mutex
	started   bool
	topology  *Topology
	slots     map[Slot]*slot
	workerCtx context.Context
}

// New creates a supervisor. Nothing runs until Start or Run.
func New(engine Engine, source Source, registry *Registry, opts ...Option) (*Supervisor, error) {
	switch {
	case engine == nil:
		return nil, ErrEngineNil
	case source == nil:
		return nil, ErrSourceNil
	case registry == nil:
		return nil, ErrRegistryNil
	}

	o := &options{
		checkInterval:   5 * time.Second,
		shutdownTimeout: 30 * time.Second,
		alive:           status.Alive,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.records == nil {
		o.records = status.NewMemoryStore()
	}

	return &Supervisor{
		engine:   engine,
		source:   source,
		registry: registry,
		opts:     o,
		logger:   o.logger.With(logger.Component("supervisor")),
		instance: uuid.NewString(),
		slots:    make(map[Slot]*slot),
	}, nil
}

// Run starts the supervisor and checks health every check interval until
// ctx is cancelled or the supervisor record asks for a stop. Cancelling ctx
// stops the workers gracefully.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.opts.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "context cancelled, stopping workers")
			return s.Shutdown(context.WithoutCancel(ctx), false)
		case <-ticker.C:
			if stop, force := s.stopRequested(ctx); stop {
				return s.Shutdown(context.WithoutCancel(ctx), force)
			}
			if err := s.Check(ctx); err != nil {
				s.logger.ErrorContext(ctx, "health check failed", logger.Error(err))
			}
		}
	}
}

// Start takes the singleton supervisor record, loads the topology and starts
// every slot it asks for.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	t, err := s.source.Load(ctx)
	if err != nil {
		return err
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}

	s.workerCtx = context.WithoutCancel(ctx)
	s.topology = t
	s.started = true

	s.logger.InfoContext(ctx, "supervisor started",
		logger.PID(os.Getpid()),
		slog.Uint64("topology_version", t.Version))

	s.reconcile(ctx)
	return nil
}

// Check runs one health cycle: reload the topology, stop slots that are no
// longer wanted, restart dead or missing ones and sweep expired claims.
func (s *Supervisor) Check(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return ErrNotStarted
	}

	s.heartbeat(ctx)

	t, err := s.source.Load(ctx)
	switch {
	case err != nil:
		s.logger.ErrorContext(ctx, "failed to reload topology, keeping current", logger.Error(err))
	case t.Version != s.topology.Version:
		s.logger.InfoContext(ctx, "topology changed",
			slog.Uint64("from", s.topology.Version),
			slog.Uint64("to", t.Version))
		s.warnUnappliedChanges(ctx, s.topology, t)
		s.topology = t
	}

	s.reconcile(ctx)

	released, err := s.engine.ReleaseExpired(ctx)
	if err != nil {
		return fmt.Errorf("release expired claims: %w", err)
	}
	if released > 0 {
		s.logger.InfoContext(ctx, "released expired claims", slog.Int("count", released))
	}
	return nil
}

// Shutdown stops every worker and releases the supervisor record. A graceful
// stop waits up to the shutdown timeout and then forces stragglers; a forced
// stop cancels the workers at once.
func (s *Supervisor) Shutdown(ctx context.Context, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.InfoContext(ctx, "supervisor stopping", slog.Bool("force", force))

	s.stopSlots(ctx, slices.Collect(maps.Values(s.slots)), force)
	clear(s.slots)
	s.started = false

	if err := s.release(ctx); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "supervisor stopped")
	return nil
}

// Topology returns the topology currently applied, or nil before Start.
func (s *Supervisor) Topology() *Topology {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topology
}

// Slots returns the running slots, ordered by vhost, queue and index.
func (s *Supervisor) Slots() []Slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := slices.Collect(maps.Keys(s.slots))
	slices.SortFunc(out, compareSlots)
	return out
}

func (s *Supervisor) reconcile(ctx context.Context) {
	desired := s.topology.desired()

	var excess []*slot
	for key, sl := range s.slots {
		if _, ok := desired[key]; !ok {
			excess = append(excess, sl)
		}
	}
	if len(excess) > 0 {
		s.stopSlots(ctx, excess, false)
		for _, sl := range excess {
			delete(s.slots, sl.Slot)
		}
	}

	keys := slices.Collect(maps.Keys(desired))
	slices.SortFunc(keys, compareSlots)
	for _, key := range keys {
		if sl, ok := s.slots[key]; ok {
			if s.healthy(ctx, sl) {
				continue
			}
			delete(s.slots, key)
		}
		s.startSlot(ctx, key, desired[key])
	}
}

// healthy reports whether the slot's worker is still running and still owns
// a record held by a live process.
func (s *Supervisor) healthy(ctx context.Context, sl *slot) bool {
	log := s.logger.With(logger.VHost(sl.VHost), logger.Queue(sl.Queue), logger.WorkerIndex(sl.Index))

	select {
	case <-sl.worker.Done():
		log.WarnContext(ctx, "worker exited, restarting")
		return false
	default:
	}

	rec, err := s.opts.records.Get(ctx, sl.key())
	switch {
	case errors.Is(err, status.ErrNotFound):
		log.WarnContext(ctx, "worker status record missing, restarting")
		return false
	case err != nil:
		log.WarnContext(ctx, "failed to read worker status record", logger.Error(err))
		return true
	case rec.Instance != sl.worker.Instance():
		log.WarnContext(ctx, "worker status record taken over, restarting")
		return false
	case !s.opts.alive(rec.PID):
		log.WarnContext(ctx, "worker process not alive, restarting", logger.PID(rec.PID))
		return false
	}
	return true
}

func (s *Supervisor) startSlot(ctx context.Context, key Slot, spec QueueSpec) {
	log := s.logger.With(logger.VHost(key.VHost), logger.Queue(key.Queue), logger.WorkerIndex(key.Index))

	cb, err := s.registry.Lookup(spec.Callback)
	if err != nil {
		log.ErrorContext(ctx, "cannot start worker", logger.Error(err))
		return
	}
	if _, err := s.engine.Storage(key.VHost); err != nil {
		log.ErrorContext(ctx, "cannot start worker", logger.Error(err))
		return
	}

	opts := []queue.WorkerOption{
		queue.WithWorkerVHost(key.VHost),
		queue.WithWorkerGroup(spec.Group),
		queue.WithWorkerIndex(key.Index),
		queue.WithStatusStore(s.opts.records),
		queue.WithWorkerLogger(s.opts.logger),
	}
	if s.opts.pollInterval > 0 {
		opts = append(opts, queue.WithPollInterval(s.opts.pollInterval))
	}

	w, err := queue.NewWorker(s.engine, key.Queue, cb, opts...)
	if err != nil {
		log.ErrorContext(ctx, "cannot create worker", logger.Error(err))
		return
	}
	if err := w.Announce(ctx); err != nil {
		log.ErrorContext(ctx, "cannot announce worker", logger.Error(err))
		return
	}

	wctx, cancel := context.WithCancel(s.workerCtx)
	s.slots[key] = &slot{Slot: key, spec: spec, worker: w, cancel: cancel}

	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.ErrorContext(wctx, "worker panicked", slog.Any("panic", r))
			}
		}()
		if err := w.Run(wctx); err != nil {
			log.ErrorContext(wctx, "worker failed", logger.Error(err))
		}
	}()
}

// stopSlots asks every slot to stop, highest index first, and waits for
// them in parallel.
func (s *Supervisor) stopSlots(ctx context.Context, slots []*slot, force bool) {
	if len(slots) == 0 {
		return
	}
	slices.SortFunc(slots, func(a, b *slot) int {
		return cmp.Or(
			cmp.Compare(b.Index, a.Index),
			cmp.Compare(a.VHost, b.VHost),
			cmp.Compare(a.Queue, b.Queue),
		)
	})

	for _, sl := range slots {
		s.flag(ctx, sl, force)
		if force {
			sl.cancel()
		}
	}

	var g errgroup.Group
	for _, sl := range slots {
		g.Go(func() error {
			s.await(ctx, sl, force)
			return nil
		})
	}
	_ = g.Wait()
}

// flag sets Stopping, and Force when asked, on the slot's record.
func (s *Supervisor) flag(ctx context.Context, sl *slot, force bool) {
	_, err := s.opts.records.Update(ctx, sl.key(), func(r *status.Record) {
		if r.Instance != sl.worker.Instance() {
			return
		}
		r.Stopping = true
		r.Force = r.Force || force
		r.UpdatedAt = time.Now()
	})
	if err != nil && !errors.Is(err, status.ErrNotFound) {
		s.logger.WarnContext(ctx, "failed to flag worker for stop",
			logger.VHost(sl.VHost), logger.Queue(sl.Queue), logger.WorkerIndex(sl.Index),
			logger.Error(err))
	}
}

func (s *Supervisor) await(ctx context.Context, sl *slot, force bool) {
	log := s.logger.With(logger.VHost(sl.VHost), logger.Queue(sl.Queue), logger.WorkerIndex(sl.Index))

	if !force {
		timer := time.NewTimer(s.opts.shutdownTimeout)
		defer timer.Stop()

		select {
		case <-sl.worker.Done():
			return
		case <-timer.C:
		}
		log.WarnContext(ctx, "worker did not stop in time, forcing",
			logger.Duration(s.opts.shutdownTimeout))
		s.flag(ctx, sl, true)
		sl.cancel()
	}

	grace := time.NewTimer(forceGrace)
	defer grace.Stop()

	select {
	case <-sl.worker.Done():
	case <-grace.C:
		log.ErrorContext(ctx, "worker ignored cancellation, abandoning it")
		s.dropRecord(ctx, sl)
	}
}

func (s *Supervisor) dropRecord(ctx context.Context, sl *slot) {
	rec, err := s.opts.records.Get(ctx, sl.key())
	if err == nil && rec.Instance == sl.worker.Instance() {
		err = s.opts.records.Delete(ctx, sl.key())
	}
	if err != nil && !errors.Is(err, status.ErrNotFound) {
		s.logger.WarnContext(ctx, "failed to drop worker record", logger.Error(err))
	}
}

// warnUnappliedChanges logs queues whose callback or group changed while
// their worker count did not. Running workers keep the old settings until
// they are restarted for another reason.
func (s *Supervisor) warnUnappliedChanges(ctx context.Context, old, next *Topology) {
	for vhost, vh := range next.VHosts {
		for name, q := range vh.Queues {
			prev, err := old.Queue(vhost, name)
			if err != nil || prev.Workers != q.Workers || q.Workers == 0 {
				continue
			}
			if prev.Callback != q.Callback || prev.Group != q.Group {
				s.logger.WarnContext(ctx, "queue settings changed without a worker count change, running workers keep the old callback",
					logger.VHost(vhost),
					logger.Queue(name),
					slog.String("old_callback", prev.Callback),
					slog.String("new_callback", q.Callback))
			}
		}
	}
}

// acquire writes the supervisor record unless a live supervisor owns it.
func (s *Supervisor) acquire(ctx context.Context) error {
	rec, err := s.opts.records.Get(ctx, status.SupervisorKey())
	switch {
	case errors.Is(err, status.ErrNotFound):
	case err != nil:
		return fmt.Errorf("read supervisor record: %w", err)
	case rec.Instance != s.instance && s.opts.alive(rec.PID):
		return fmt.Errorf("%w: pid %d", ErrAlreadyRunning, rec.PID)
	}

	now := time.Now()
	return s.opts.records.Put(ctx, &status.Record{
		Role:      status.RoleSupervisor,
		PID:       os.Getpid(),
		Instance:  s.instance,
		StartedAt: now,
		UpdatedAt: now,
	})
}

func (s *Supervisor) release(ctx context.Context) error {
	rec, err := s.opts.records.Get(ctx, status.SupervisorKey())
	if errors.Is(err, status.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read supervisor record: %w", err)
	}
	if rec.Instance != s.instance {
		return nil
	}
	return s.opts.records.Delete(ctx, status.SupervisorKey())
}

func (s *Supervisor) heartbeat(ctx context.Context) {
	_, err := s.opts.records.Update(ctx, status.SupervisorKey(), func(r *status.Record) {
		if r.Instance == s.instance {
			r.UpdatedAt = time.Now()
		}
	})
	if err != nil && !errors.Is(err, status.ErrNotFound) {
		s.logger.WarnContext(ctx, "failed to refresh supervisor record", logger.Error(err))
	}
}

// stopRequested reads the supervisor record. A missing record or one owned
// by another instance is a graceful stop request.
func (s *Supervisor) stopRequested(ctx context.Context) (stop, force bool) {
	rec, err := s.opts.records.Get(ctx, status.SupervisorKey())
	switch {
	case errors.Is(err, status.ErrNotFound):
		s.logger.WarnContext(ctx, "supervisor record removed, stopping")
		return true, false
	case err != nil:
		s.logger.WarnContext(ctx, "failed to read supervisor record", logger.Error(err))
		return false, false
	case rec.Instance != s.instance:
		s.logger.WarnContext(ctx, "supervisor record taken over, stopping")
		return true, false
	}
	return rec.Stopping || rec.Force, rec.Force
}

func compareSlots(a, b Slot) int {
	return cmp.Or(
		cmp.Compare(a.VHost, b.VHost),
		cmp.Compare(a.Queue, b.Queue),
		cmp.Compare(a.Index, b.Index),
	)
}
