package app

import (
	"github.com/JaydenOK/jayden-framework-sub000/pkg/config"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/httpserver"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/pg"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/redis"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/supervisor"
)

// Config gathers the configuration of every component the binary wires.
type Config struct {
	Logger     logger.Config
	Queue      queue.Config
	Supervisor supervisor.Config
	PG         pg.Config
	Redis      redis.Config
	HTTP       httpserver.Config

	// AutoMigrate applies the postgres schema whenever a postgres vhost is
	// opened.
	AutoMigrate bool `env:"QUEUE_AUTO_MIGRATE" envDefault:"true"`
}

// LoadConfig reads Config from the environment and the optional env files.
func LoadConfig(envFiles ...string) (Config, error) {
	var opts []config.Option
	if len(envFiles) > 0 {
		opts = append(opts, config.WithEnvFiles(envFiles...))
	}

	var cfg Config
	if err := config.Load(&cfg, opts...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
