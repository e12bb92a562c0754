// Package cli builds the cobra commands of the queued binary: the
// supervisor lifecycle, message administration, enqueueing, the admin HTTP
// server and postgres migrations.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JaydenOK/jayden-framework-sub000/internal/app"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
)

// ErrRejected is returned by a command whose operation result is not OK.
// The result itself has already been printed.
var ErrRejected = errors.New("operation rejected")

// Option configures the root command.
type Option func(*runtime)

// WithCallbacks registers application callbacks so that topologies can
// reference them by name.
func WithCallbacks(cbs ...queue.Callback) Option {
	return func(r *runtime) { r.callbacks = append(r.callbacks, cbs...) }
}

// runtime carries the persistent flags shared by every command.
type runtime struct {
	envFiles  []string
	topology  string
	runDir    string
	logLevel  string
	callbacks []queue.Callback
}

// NewRoot constructs the root command with every command group attached.
func NewRoot(opts ...Option) *cobra.Command {
	rt := &runtime{}
	for _, opt := range opts {
		opt(rt)
	}

	root := &cobra.Command{
		Use:   "queued",
		Short: "Multi-backend message queue with a worker supervisor",
		Long: `queued stores messages in memory, postgres or redis virtual hosts and
runs a supervisor that keeps the configured number of workers per queue.

Results are printed to stdout as JSON; logs go to stderr.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringSliceVar(&rt.envFiles, "env-file", nil, "Env files loaded before reading the configuration")
	flags.StringVar(&rt.topology, "topology", "", "Topology file (overrides SUPERVISOR_TOPOLOGY_FILE)")
	flags.StringVar(&rt.runDir, "run-dir", "", "Status directory (overrides SUPERVISOR_RUN_DIR)")
	flags.StringVar(&rt.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides LOG_LEVEL)")

	root.AddCommand(
		newSupervisorCommand(rt),
		newMessageCommand(rt),
		newEnqueueCommand(rt),
		newAdminCommand(rt),
		newMigrateCommand(rt),
	)
	return root
}

// config loads the configuration and applies the flag overrides.
func (rt *runtime) config() (app.Config, error) {
	cfg, err := app.LoadConfig(rt.envFiles...)
	if err != nil {
		return app.Config{}, fmt.Errorf("load config: %w", err)
	}
	if rt.topology != "" {
		cfg.Supervisor.TopologyFile = rt.topology
	}
	if rt.runDir != "" {
		cfg.Supervisor.RunDir = rt.runDir
	}
	if rt.logLevel != "" {
		cfg.Logger.Level = rt.logLevel
	}
	return cfg, nil
}

// open wires the application. Logs go to the command's stderr so that
// stdout only carries results.
func (rt *runtime) open(ctx context.Context, cmd *cobra.Command, extra ...app.Option) (*app.App, error) {
	cfg, err := rt.config()
	if err != nil {
		return nil, err
	}
	log := logger.FromConfig(cfg.Logger, "queued", logger.WithOutput(cmd.ErrOrStderr()))
	opts := []app.Option{
		app.WithLogger(log),
		app.WithCallbacks(rt.callbacks...),
		app.WithEnvFiles(rt.envFiles...),
	}
	return app.Open(ctx, cfg, append(opts, extra...)...)
}
