package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/redis"
)

func TestConnect(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client, err := redis.Connect(context.Background(), redis.Config{
		ConnectionURL:  "redis://" + mr.Addr() + "/0",
		RetryAttempts:  1,
		ConnectTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, redis.Healthcheck(client)(context.Background()))
}

func TestConnect_Errors(t *testing.T) {
	t.Parallel()

	_, err := redis.Connect(context.Background(), redis.Config{})
	require.ErrorIs(t, err, redis.ErrEmptyURL)

	_, err = redis.Connect(context.Background(), redis.Config{ConnectionURL: "mysql://nope"})
	require.ErrorIs(t, err, redis.ErrInvalidURL)
}

func TestConnect_NotReady(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := redis.Connect(context.Background(), redis.Config{
		ConnectionURL:  "redis://" + addr + "/0",
		RetryAttempts:  2,
		RetryInterval:  10 * time.Millisecond,
		ConnectTimeout: time.Second,
	})
	require.ErrorIs(t, err, redis.ErrNotReady)
}

func TestHealthcheck_Unreachable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client, err := redis.Connect(context.Background(), redis.Config{ConnectionURL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	mr.Close()
	require.ErrorIs(t, redis.Healthcheck(client)(context.Background()), redis.ErrUnhealthy)
}

func TestDeleteMatching(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	for _, k := range []string{"q:{a}:1", "q:{a}:2", "q:{a}:3", "q:{b}:1"} {
		require.NoError(t, client.Set(ctx, k, "v", 0).Err())
	}

	keys, err := redis.ScanKeys(ctx, client, "q:{a}:*", 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"q:{a}:1", "q:{a}:2", "q:{a}:3"}, keys)

	n, err := redis.DeleteMatching(ctx, client, "q:{a}:*", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, mr.Exists("q:{b}:1"))
	assert.False(t, mr.Exists("q:{a}:1"))
}
