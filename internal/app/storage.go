package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/pg"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue/pgstore"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue/redisstore"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/redis"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/supervisor"
)

// Adapter names accepted in the topology.
const (
	AdapterMemory   = "memory"
	AdapterPostgres = "postgres"
	AdapterRedis    = "redis"
)

// openStorage connects the backend a vhost asks for. Connection settings
// come from the environment; a DSN or key prefix in the topology wins.
func openStorage(ctx context.Context, vhost string, spec supervisor.VHostSpec, cfg Config, log *slog.Logger) (queue.Storage, error) {
	lease := spec.LeaseTimeout
	if lease <= 0 {
		lease = cfg.Queue.LeaseTimeout
	}
	log = log.With(logger.VHost(vhost), slog.String("adapter", adapterName(spec.Adapter)))

	switch adapterName(spec.Adapter) {
	case AdapterMemory:
		return queue.NewMemoryStorage(queue.WithMemoryLeaseTimeout(lease)), nil

	case AdapterPostgres:
		pgCfg := cfg.PG
		if spec.DSN != "" {
			pgCfg.ConnectionString = spec.DSN
		}
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, pgCfg, log); err != nil {
				pool.Close()
				return nil, err
			}
		}
		log.InfoContext(ctx, "virtual host connected")
		return pgstore.New(pool, vhost, pgstore.WithLeaseTimeout(lease), pgstore.WithOwnedPool()), nil

	case AdapterRedis:
		redisCfg := cfg.Redis
		if spec.DSN != "" {
			redisCfg.ConnectionURL = spec.DSN
		}
		prefix := redisCfg.KeyPrefix
		if spec.KeyPrefix != "" {
			prefix = spec.KeyPrefix
		}
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return nil, err
		}
		log.InfoContext(ctx, "virtual host connected", slog.String("key_prefix", prefix))
		return redisstore.New(client, vhost,
			redisstore.WithKeyPrefix(prefix),
			redisstore.WithLeaseTimeout(lease),
			redisstore.WithScanBatchSize(redisCfg.ScanBatchSize),
			redisstore.WithOwnedClient(),
		), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAdapter, spec.Adapter)
}

// migrate applies the postgres schema of every postgres vhost.
func migrate(ctx context.Context, top *supervisor.Topology, cfg Config, log *slog.Logger) (int, error) {
	applied := 0
	for _, name := range top.VHostNames() {
		spec := top.VHosts[name]
		if adapterName(spec.Adapter) != AdapterPostgres {
			continue
		}
		pgCfg := cfg.PG
		if spec.DSN != "" {
			pgCfg.ConnectionString = spec.DSN
		}

		cctx, cancel := context.WithTimeout(ctx, time.Minute)
		pool, err := pg.Connect(cctx, pgCfg)
		if err != nil {
			cancel()
			return applied, fmt.Errorf("vhost %s: %w", name, err)
		}
		err = pg.Migrate(cctx, pool, pgstore.Migrations, pgstore.MigrationsDir, pgCfg, log.With(logger.VHost(name)))
		pool.Close()
		cancel()
		if err != nil {
			return applied, fmt.Errorf("vhost %s: %w", name, err)
		}
		applied++
	}
	return applied, nil
}

// checkAdapter rejects a missing or unsupported adapter name.
func checkAdapter(s string) error {
	switch adapterName(s) {
	case AdapterMemory, AdapterPostgres, AdapterRedis:
		return nil
	case "":
		return fmt.Errorf("%w: adapter required (postgres, redis or memory)", ErrUnknownAdapter)
	}
	return fmt.Errorf("%w: %q", ErrUnknownAdapter, s)
}

func adapterName(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ""
	case AdapterMemory:
		return AdapterMemory
	case AdapterPostgres, "pg", "postgresql":
		return AdapterPostgres
	case AdapterRedis:
		return AdapterRedis
	}
	return s
}
