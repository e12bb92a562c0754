package cli

import (
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/admin"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/httpserver"
)

// newAdminCommand constructs the `admin` command group.
func newAdminCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Administrative HTTP API"}
	cmd.AddCommand(newAdminServeCommand(rt))
	return cmd
}

func newAdminServeCommand(rt *runtime) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the administrative JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := rt.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			engine, err := a.Engine(ctx)
			if err != nil {
				return err
			}
			svc, err := a.Admin(ctx, a.Control())
			if err != nil {
				return err
			}

			cfg := a.Config.HTTP
			if addr != "" {
				cfg.Addr = addr
			}
			srv := httpserver.NewFromConfig(cfg,
				httpserver.WithLogger(a.Log),
				httpserver.WithStartHook(func(bound net.Addr) {
					a.Log.InfoContext(ctx, "admin api listening", slog.String("addr", bound.String()))
				}),
			)
			return srv.Run(ctx, serveHandler(svc, a.Log, httpserver.Check{Name: "storage", Fn: engine.Ping}))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides ADMIN_ADDR)")
	return cmd
}

// serveHandler mounts the admin API next to the health endpoints.
func serveHandler(svc *admin.Service, log *slog.Logger, checks ...httpserver.Check) http.Handler {
	r := chi.NewRouter()
	r.Get("/health/live", httpserver.HealthHandler(log))
	r.Get("/health/ready", httpserver.HealthHandler(log, checks...))
	r.Mount("/", admin.Handler(svc, log))
	return r
}
