// Package pg bootstraps PostgreSQL access for the queue backends.
//
// Connect opens a pgx connection pool with bounded retries, Migrate applies
// goose migrations shipped inside an fs.FS (typically an embed.FS owned by the
// storage package) and Healthcheck wraps Ping for readiness probes. The error
// helpers classify pgx and pgconn errors so callers do not inspect SQLSTATE
// codes directly.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, log); err != nil {
//		return err
//	}
package pg
