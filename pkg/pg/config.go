package pg

import "time"

// Config holds pool and migration settings. ConnectionString is optional at
// parse time so that per-vhost prefixes can fall back to a shared DSN.
type Config struct {
	ConnectionString  string        `env:"PG_CONN_URL"`                            // ConnectionString is the connection string to the database.
	MaxOpenConns      int32         `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`      // MaxOpenConns is the maximum number of open connections to the database.
	MaxIdleConns      int32         `env:"PG_MAX_IDLE_CONNS" envDefault:"2"`       // MaxIdleConns is the minimum number of connections kept open.
	HealthCheckPeriod time.Duration `env:"PG_HEALTHCHECK_PERIOD" envDefault:"1m"`  // HealthCheckPeriod is the period between health checks.
	MaxConnIdleTime   time.Duration `env:"PG_MAX_CONN_IDLE_TIME" envDefault:"10m"` // MaxConnIdleTime is the maximum amount of time a connection may be idle to be reused.
	MaxConnLifetime   time.Duration `env:"PG_MAX_CONN_LIFETIME" envDefault:"30m"`  // MaxConnLifetime is the maximum amount of time a connection may be reused.

	RetryAttempts int           `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`  // RetryAttempts is the number of retry attempts to connect to the database.
	RetryInterval time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"5s"` // RetryInterval is the base interval between retry attempts.

	MigrationsTable string `env:"PG_MIGRATIONS_TABLE" envDefault:"queue_schema_migrations"` // MigrationsTable stores the applied migration version.
}
