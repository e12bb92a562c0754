package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// goose keeps its dialect, table and base FS in package globals.
var migrateMu sync.Mutex

// Migrate applies the goose migrations found in dir of fsys.
// Packages ship their schema as an embed.FS and pass it here.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, dir string, cfg Config, log logger) error {
	if fsys == nil || dir == "" {
		return errors.Join(ErrFailedToApplyMigrations, ErrMigrationPathNotProvided)
	}
	if _, err := fs.Stat(fsys, dir); err != nil {
		return errors.Join(ErrMigrationsDirNotFound, err)
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	db := stdlib.OpenDBFromPool(pool)
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close migration connection", "error", err)
		}
	}(db)

	goose.SetLogger(newSlogAdapter(log))
	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)

	table := cfg.MigrationsTable
	if table == "" {
		table = "queue_schema_migrations"
	}
	goose.SetTableName(table)

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	if err := goose.UpContext(ctx, db, dir); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	return nil
}

// migrateSlogAdapter routes goose's printf logging into the structured logger.
type migrateSlogAdapter struct {
	log logger
}

func newSlogAdapter(log logger) goose.Logger {
	return &migrateSlogAdapter{log: log}
}

func (a *migrateSlogAdapter) Fatalf(format string, v ...any) {
	a.log.ErrorContext(context.Background(), fmt.Sprintf(format, v...))
}

func (a *migrateSlogAdapter) Printf(format string, v ...any) {
	a.log.InfoContext(context.Background(), fmt.Sprintf(format, v...))
}
