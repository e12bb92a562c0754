package httpserver

import "time"

// Config describes the admin listener. It is read from ADMIN_* variables and
// binds to loopback unless told otherwise, since the admin API can delete and
// replay messages.
type Config struct {
	Addr            string        `env:"ADMIN_ADDR" envDefault:"127.0.0.1:8080"`
	ReadTimeout     time.Duration `env:"ADMIN_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"ADMIN_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"ADMIN_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"ADMIN_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// Options turns the set fields of c into options. Zero fields keep the
// package defaults.
func (c Config) Options() []Option {
	var opts []Option
	if c.Addr != "" {
		opts = append(opts, WithAddr(c.Addr))
	}
	for _, t := range []struct {
		d   time.Duration
		opt func(time.Duration) Option
	}{
		{c.ReadTimeout, WithReadTimeout},
		{c.WriteTimeout, WithWriteTimeout},
		{c.IdleTimeout, WithIdleTimeout},
		{c.ShutdownTimeout, WithShutdownTimeout},
	} {
		if t.d > 0 {
			opts = append(opts, t.opt(t.d))
		}
	}
	return opts
}

// NewFromConfig builds a Server from cfg. opts are applied after the config
// and win over it.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	return New(append(cfg.Options(), opts...)...)
}
