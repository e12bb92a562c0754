package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JaydenOK/jayden-framework-sub000/internal/app"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/admin"
)

// newSupervisorCommand constructs the `supervisor` command group.
func newSupervisorCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "supervisor",
		Aliases: []string{"sv"},
		Short:   "Supervisor lifecycle",
		Long: `Supervisor lifecycle.

  run      Run the supervisor and the scheduler in the foreground
  start    Launch "supervisor run" as a detached process
  stop     Ask the running supervisor to stop (--force skips in-flight work)
  restart  Stop gracefully, then start
  status   Report the supervisor and every worker slot
  workers  Report worker slots, optionally narrowed to a vhost and queue`,
	}

	cmd.AddCommand(
		newSupervisorRunCommand(rt),
		newSupervisorStartCommand(rt),
		newSupervisorStopCommand(rt),
		newSupervisorRestartCommand(rt),
		newSupervisorStatusCommand(rt),
		newSupervisorWorkersCommand(rt),
	)
	return cmd
}

// newSupervisorRunCommand constructs `supervisor run`. It returns once the
// supervisor stops, either on SIGINT/SIGTERM or on a stop request recorded
// by `supervisor stop`. Memory vhosts are only usable here, where the
// workers and the scheduler share the process with the store.
func newSupervisorRunCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the supervisor in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := rt.open(ctx, cmd, app.WithMemoryStorage())
			if err != nil {
				return err
			}
			defer a.Close()

			sup, err := a.Supervisor(ctx)
			if err != nil {
				return err
			}
			sched, err := a.Scheduler(ctx)
			if err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			g, gctx := errgroup.WithContext(runCtx)
			g.Go(func() error {
				defer cancel()
				return sup.Run(gctx)
			})
			if sched != nil {
				g.Go(func() error {
					if err := sched.Start(gctx); !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				})
			}
			return g.Wait()
		},
	}
}

func newSupervisorStartCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Launch the supervisor as a detached process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.supervise(cmd, func(ctx context.Context, s *admin.Supervision) admin.Result {
				return s.Start(ctx)
			})
		},
	}
}

func newSupervisorStopCommand(rt *runtime) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running supervisor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.supervise(cmd, func(ctx context.Context, s *admin.Supervision) admin.Result {
				return s.Stop(ctx, force)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Stop workers without waiting for in-flight messages")
	return cmd
}

func newSupervisorRestartCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Stop the supervisor gracefully and start it again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.supervise(cmd, func(ctx context.Context, s *admin.Supervision) admin.Result {
				return s.Restart(ctx)
			})
		},
	}
}

func newSupervisorStatusCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the supervisor and its workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.supervise(cmd, func(ctx context.Context, s *admin.Supervision) admin.Result {
				return s.Status(ctx)
			})
		},
	}
}

func newSupervisorWorkersCommand(rt *runtime) *cobra.Command {
	var vhost, name string
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Report worker slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.supervise(cmd, func(ctx context.Context, s *admin.Supervision) admin.Result {
				return s.Workers(ctx, vhost, name)
			})
		},
	}
	cmd.Flags().StringVar(&vhost, "vhost", "", "Only workers of this vhost")
	cmd.Flags().StringVar(&name, "queue", "", "Only workers of this queue")
	return cmd
}

// supervise runs op against the status records only; no storage backend is
// opened.
func (rt *runtime) supervise(cmd *cobra.Command, op func(context.Context, *admin.Supervision) admin.Result) error {
	ctx := cmd.Context()
	a, err := rt.open(ctx, cmd)
	if err != nil {
		return err
	}
	return printResult(cmd, op(ctx, admin.NewSupervision(a.Control(), a.Log)))
}
