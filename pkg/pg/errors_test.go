package pg_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/pg"
)

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	assert.False(t, pg.IsNotFoundError(nil))
	assert.True(t, pg.IsNotFoundError(pgx.ErrNoRows))
	assert.True(t, pg.IsNotFoundError(fmt.Errorf("get: %w", pgx.ErrNoRows)))
	assert.False(t, pg.IsNotFoundError(errors.New("other")))
}

func TestIsDuplicateKeyError(t *testing.T) {
	t.Parallel()

	assert.False(t, pg.IsDuplicateKeyError(nil))
	assert.True(t, pg.IsDuplicateKeyError(&pgconn.PgError{Code: "23505"}))
	assert.False(t, pg.IsDuplicateKeyError(&pgconn.PgError{Code: "23503"}))
}

func TestIsSerializationError(t *testing.T) {
	t.Parallel()

	assert.True(t, pg.IsSerializationError(fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40001"})))
	assert.True(t, pg.IsSerializationError(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, pg.IsSerializationError(errors.New("other")))
	assert.False(t, pg.IsSerializationError(nil))
}

func TestConnect_EmptyConnectionString(t *testing.T) {
	t.Parallel()

	_, err := pg.Connect(context.Background(), pg.Config{})
	require.ErrorIs(t, err, pg.ErrEmptyConnectionString)
}

func TestConnect_InvalidConnectionString(t *testing.T) {
	t.Parallel()

	_, err := pg.Connect(context.Background(), pg.Config{ConnectionString: "postgres://%zz"})
	require.ErrorIs(t, err, pg.ErrFailedToParseDBConfig)
}

func TestMigrate_MissingDir(t *testing.T) {
	t.Parallel()

	err := pg.Migrate(context.Background(), nil, fstest.MapFS{}, "migrations", pg.Config{}, logger.Discard())
	require.ErrorIs(t, err, pg.ErrMigrationsDirNotFound)

	err = pg.Migrate(context.Background(), nil, nil, "", pg.Config{}, logger.Discard())
	require.ErrorIs(t, err, pg.ErrMigrationPathNotProvided)
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthcheck(t *testing.T) {
	t.Parallel()

	ok := pg.Healthcheck(pingFunc(func(context.Context) error { return nil }))
	require.NoError(t, ok(context.Background()))

	down := pg.Healthcheck(pingFunc(func(context.Context) error { return errors.New("refused") }))
	require.ErrorIs(t, down(context.Background()), pg.ErrHealthcheckFailed)
}
