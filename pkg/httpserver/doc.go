// Package httpserver wraps net/http with context-driven graceful shutdown,
// configurable timeouts and a JSON health handler.
//
// Run (or Serve with a prepared listener) blocks until the context is
// cancelled or Shutdown is called, then drains in-flight requests within the
// shutdown timeout. Signal handling is left to the caller, usually through
// signal.NotifyContext.
//
//	r := chi.NewRouter()
//	r.Get("/healthz", httpserver.HealthHandler(log))
//	r.Get("/readyz", httpserver.HealthHandler(log, httpserver.Check{Name: "queue", Fn: engine.Ping}))
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	err := srv.Run(ctx, r)
//
// Listen failures are wrapped with ErrStart and shutdown failures with
// ErrShutdown.
package httpserver
