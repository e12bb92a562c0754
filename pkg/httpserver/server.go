package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
)

type config struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	server          *http.Server
	logger          *slog.Logger
	startHooks      []func(net.Addr)
	stopHooks       []func()
}

func defaultConfig() *config {
	return &config{
		addr:            ":8080",
		shutdownTimeout: 5 * time.Second,
	}
}

// Server wraps http.Server with context-driven graceful shutdown.
type Server struct {
	cfg    *config
	log    *slog.Logger
	once   sync.Once
	mu     sync.Mutex
	srv    *http.Server
	bound  net.Addr
	closed bool
}

// New returns a configured Server.
func New(opts ...Option) *Server {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Discard()
	}
	return &Server{cfg: cfg, log: cfg.logger.With(logger.Component("http"))}
}

// Run listens on the configured address and serves handler until ctx is
// cancelled or Shutdown is called.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	ln, err := net.Listen("tcp", s.cfg.addr)
	if err != nil {
		return errors.Join(ErrStart, err)
	}
	return s.Serve(ctx, ln, handler)
}

// Serve serves handler on ln until ctx is cancelled or Shutdown is called.
// The listener is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	s.mu.Lock()
	if s.srv != nil || s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return errors.Join(ErrStart, ErrAlreadyRunning)
	}

	cfg := s.cfg
	srv := cfg.server
	if srv == nil {
		srv = &http.Server{}
	}
	srv.Addr = ln.Addr().String()
	if srv.ReadTimeout == 0 && cfg.readTimeout != 0 {
		srv.ReadTimeout = cfg.readTimeout
	}
	if srv.WriteTimeout == 0 && cfg.writeTimeout != 0 {
		srv.WriteTimeout = cfg.writeTimeout
	}
	if srv.IdleTimeout == 0 && cfg.idleTimeout != 0 {
		srv.IdleTimeout = cfg.idleTimeout
	}
	srv.Handler = handler
	s.srv = srv
	s.bound = ln.Addr()
	s.mu.Unlock()

	s.log.InfoContext(ctx, "http server listening", slog.String("addr", ln.Addr().String()))
	for _, h := range cfg.startHooks {
		h(ln.Addr())
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	var runErr error
	select {
	case <-ctx.Done():
		_ = s.Shutdown(context.WithoutCancel(ctx))
		runErr = <-errCh
	case runErr = <-errCh:
	}

	if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
		return errors.Join(ErrStart, runErr)
	}
	return nil
}

// Addr returns the bound address once the server is serving, nil before.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// Shutdown stops the server gracefully. Repeated calls are no-ops; errors
// from http.Server.Shutdown are wrapped with ErrShutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		srv := s.srv
		s.closed = true
		s.mu.Unlock()
		if srv == nil {
			return
		}

		ctx, cancel := context.WithTimeout(ctx, s.cfg.shutdownTimeout)
		defer cancel()
		err = srv.Shutdown(ctx)
		for _, h := range s.cfg.stopHooks {
			h()
		}
		s.log.InfoContext(ctx, "http server stopped")
	})

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Join(ErrShutdown, err)
	}
	return nil
}
