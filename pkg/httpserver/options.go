package httpserver

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Option configures the HTTP server. Constructors panic on values that can
// only come from a programming error.
type Option func(*config)

func mustPositive(name string, d time.Duration) {
	if d <= 0 {
		panic(fmt.Sprintf("httpserver: %s must be positive, got %s", name, d))
	}
}

func mustSet(name string, ok bool) {
	if !ok {
		panic("httpserver: " + name + " is required")
	}
}

// WithAddr sets the listen address, e.g. "127.0.0.1:8080" or ":0".
func WithAddr(addr string) Option {
	mustSet("listen address", addr != "")
	return func(c *config) { c.addr = addr }
}

func WithReadTimeout(d time.Duration) Option {
	mustPositive("read timeout", d)
	return func(c *config) { c.readTimeout = d }
}

// WithWriteTimeout bounds a whole response. Message listings are paged, so
// the default is enough even for large queues.
func WithWriteTimeout(d time.Duration) Option {
	mustPositive("write timeout", d)
	return func(c *config) { c.writeTimeout = d }
}

func WithIdleTimeout(d time.Duration) Option {
	mustPositive("idle timeout", d)
	return func(c *config) { c.idleTimeout = d }
}

// WithShutdownTimeout is how long in-flight admin calls get to finish once
// the server is stopping.
func WithShutdownTimeout(d time.Duration) Option {
	mustPositive("shutdown timeout", d)
	return func(c *config) { c.shutdownTimeout = d }
}

// WithServer serves through srv. Its handler is replaced and timeouts it
// already sets are kept.
func WithServer(srv *http.Server) Option {
	mustSet("server", srv != nil)
	return func(c *config) { c.server = srv }
}

// WithLogger sets the logger. If nil, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithStartHook runs h with the bound address once the listener is open.
// Useful with ":0" to learn the real port.
func WithStartHook(h func(net.Addr)) Option {
	mustSet("start hook", h != nil)
	return func(c *config) { c.startHooks = append(c.startHooks, h) }
}

// WithStopHook runs h after the server has shut down.
func WithStopHook(h func()) Option {
	mustSet("stop hook", h != nil)
	return func(c *config) { c.stopHooks = append(c.stopHooks, h) }
}
