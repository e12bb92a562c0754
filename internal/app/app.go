// Package app wires the queue packages into the queued binary: it reads the
// configuration and topology, opens one storage per virtual host and builds
// the supervisor, scheduler, control and admin service on top.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/admin"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/status"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/supervisor"
)

// App holds the wired components. Storages are opened lazily by Engine so
// that commands which only touch status records never connect to a backend.
type App struct {
	Config   Config
	Log      *slog.Logger
	Source   supervisor.Source
	Registry *supervisor.Registry
	Records  status.Store

	mu         sync.Mutex
	topology   *supervisor.Topology
	engine     *queue.Engine
	ownsMemory bool
	envFiles   []string
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	logger     *slog.Logger
	callbacks  []queue.Callback
	records    status.Store
	ownsMemory bool
	envFiles   []string
}

// WithLogger replaces the logger built from Config.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *openOptions) { o.logger = l }
}

// WithCallbacks registers application callbacks next to the builtins.
func WithCallbacks(cbs ...queue.Callback) Option {
	return func(o *openOptions) { o.callbacks = append(o.callbacks, cbs...) }
}

// WithStatusStore replaces the file store in Config.Supervisor.RunDir.
func WithStatusStore(s status.Store) Option {
	return func(o *openOptions) { o.records = s }
}

// WithMemoryStorage lets Engine open memory vhosts. Only the process that
// runs the workers may pass it: a memory vhost opened anywhere else is a
// separate, empty store whose messages vanish when the process exits.
func WithMemoryStorage() Option {
	return func(o *openOptions) { o.ownsMemory = true }
}

// WithEnvFiles records the env files the configuration was read from so a
// launched supervisor reads the same ones.
func WithEnvFiles(files ...string) Option {
	return func(o *openOptions) { o.envFiles = append(o.envFiles, files...) }
}

// Open loads the topology and prepares the registry and status store.
func Open(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	o := &openOptions{}
	for _, opt := range opts {
		opt(o)
	}

	log := o.logger
	if log == nil {
		log = logger.FromConfig(cfg.Logger, "queued")
	}

	source := supervisor.NewFileSource(cfg.Supervisor.TopologyFile)
	top, err := source.Load(ctx)
	if err != nil {
		return nil, err
	}

	for _, name := range top.VHostNames() {
		if err := checkAdapter(top.VHosts[name].Adapter); err != nil {
			return nil, fmt.Errorf("vhost %s: %w", name, err)
		}
	}

	registry, err := supervisor.NewRegistry(append(Builtins(log), o.callbacks...)...)
	if err != nil {
		return nil, err
	}

	records := o.records
	if records == nil {
		fs, err := status.NewFileStore(cfg.Supervisor.RunDir)
		if err != nil {
			return nil, err
		}
		records = fs
	}

	return &App{
		Config:     cfg,
		Log:        log,
		Source:     source,
		Registry:   registry,
		Records:    records,
		topology:   top,
		ownsMemory: o.ownsMemory,
		envFiles:   o.envFiles,
	}, nil
}

// Topology returns the topology read by Open.
func (a *App) Topology() *supervisor.Topology {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.topology
}

// Engine opens the storage of every vhost in the topology on first use.
func (a *App) Engine(ctx context.Context) (*queue.Engine, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.engine != nil {
		return a.engine, nil
	}

	engine := queue.NewEngine(queue.WithEngineLogger(a.Log))
	for _, name := range a.topology.VHostNames() {
		spec := a.topology.VHosts[name]
		if adapterName(spec.Adapter) == AdapterMemory && !a.ownsMemory {
			return nil, errors.Join(fmt.Errorf("%w: %s", ErrMemoryVHost, name), engine.Close())
		}
		st, err := openStorage(ctx, name, spec, a.Config, a.Log)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("%w: %s", ErrOpenVHost, name), err, engine.Close())
		}
		if err := engine.Register(name, st); err != nil {
			return nil, errors.Join(err, st.Close(), engine.Close())
		}
	}
	a.engine = engine
	return engine, nil
}

// Migrate applies the postgres schema of every postgres vhost and returns
// how many were migrated.
func (a *App) Migrate(ctx context.Context) (int, error) {
	return migrate(ctx, a.Topology(), a.Config, a.Log)
}

// Supervisor builds the supervisor over the engine.
func (a *App) Supervisor(ctx context.Context) (*supervisor.Supervisor, error) {
	engine, err := a.Engine(ctx)
	if err != nil {
		return nil, err
	}
	return supervisor.New(engine, a.Source, a.Registry,
		supervisor.WithConfig(a.Config.Supervisor),
		supervisor.WithPollInterval(a.Config.Queue.PollInterval),
		supervisor.WithStatusStore(a.Records),
		supervisor.WithLogger(a.Log),
	)
}

// Scheduler builds a scheduler from the topology schedules. It returns nil
// when the topology declares none.
func (a *App) Scheduler(ctx context.Context) (*queue.Scheduler, error) {
	top := a.Topology()
	if len(top.Schedules) == 0 {
		return nil, nil
	}

	engine, err := a.Engine(ctx)
	if err != nil {
		return nil, err
	}
	sched, err := queue.NewScheduler(engine, queue.WithSchedulerLogger(a.Log))
	if err != nil {
		return nil, err
	}

	for _, s := range top.Schedules {
		every, err := queue.ParseSchedule(s.Schedule)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", s.Name, err)
		}
		opts := []queue.ScheduleOption{
			queue.WithScheduleVHost(s.VHost),
			queue.WithScheduleGroup(s.Group),
			queue.WithScheduleQueue(s.Queue),
		}
		if s.Payload != nil {
			opts = append(opts, queue.WithSchedulePayload(s.Payload))
		}
		if err := sched.Add(s.Name, every, opts...); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", s.Name, err)
		}
	}
	return sched, nil
}

// Control builds the out-of-process supervisor control. Start spawns
// "supervisor run" from the current executable with the given topology and
// run directory.
func (a *App) Control(extra ...supervisor.ControlOption) *supervisor.Control {
	opts := []supervisor.ControlOption{
		supervisor.WithLauncher(ExecLauncher(a.launchArgs()...)),
		supervisor.WithWaitTimeout(a.Config.Supervisor.ShutdownTimeout + forceGrace),
		supervisor.WithControlLogger(a.Log),
	}
	return supervisor.NewControl(a.Records, append(opts, extra...)...)
}

// Admin builds the administrative service.
func (a *App) Admin(ctx context.Context, control admin.Controller) (*admin.Service, error) {
	engine, err := a.Engine(ctx)
	if err != nil {
		return nil, err
	}
	opts := []admin.Option{admin.WithLogger(a.Log)}
	if control != nil {
		opts = append(opts, admin.WithControl(control))
	}
	return admin.NewService(engine, a.Source, a.Registry, opts...)
}

// Close closes the opened storages.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.engine == nil {
		return nil
	}
	err := a.engine.Close()
	a.engine = nil
	return err
}

func (a *App) launchArgs() []string {
	args := []string{"supervisor", "run"}
	if p, err := filepath.Abs(a.Config.Supervisor.TopologyFile); err == nil {
		args = append(args, "--topology", p)
	}
	if p, err := filepath.Abs(a.Config.Supervisor.RunDir); err == nil {
		args = append(args, "--run-dir", p)
	}
	for _, f := range a.envFiles {
		if p, err := filepath.Abs(f); err == nil {
			f = p
		}
		args = append(args, "--env-file", f)
	}
	if a.Config.Logger.Level != "" {
		args = append(args, "--log-level", a.Config.Logger.Level)
	}
	return args
}
