package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue/storagetest"
)

// MockStorage overrides the maintenance calls; anything else panics on the
// nil embedded interface.
type MockStorage struct {
	queue.Storage
	mock.Mock
}

func (m *MockStorage) ReleaseExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockStorage) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStorage) Close() error {
	return m.Called().Error(0)
}

func newEngine(t *testing.T) (*queue.Engine, *queue.MemoryStorage, *storagetest.Clock) {
	t.Helper()

	clock := storagetest.NewClock()
	storage := queue.NewMemoryStorage(queue.WithMemoryClock(clock.Now))
	engine := queue.NewEngine(
		queue.WithEngineClock(clock.Now),
		queue.WithEngineLogger(logger.Discard()),
	)
	require.NoError(t, engine.Register(queue.DefaultVHost, storage))
	return engine, storage, clock
}

func TestEngine_Register(t *testing.T) {
	t.Parallel()

	engine := queue.NewEngine(queue.WithEngineLogger(logger.Discard()))

	require.ErrorIs(t, engine.Register("a", nil), queue.ErrStorageNil)
	require.NoError(t, engine.Register("b", queue.NewMemoryStorage()))
	require.NoError(t, engine.Register("", queue.NewMemoryStorage()))
	require.ErrorIs(t, engine.Register("b", queue.NewMemoryStorage()), queue.ErrVHostRegistered)

	assert.Equal(t, []string{"b", queue.DefaultVHost}, engine.VHosts())

	_, err := engine.Storage("missing")
	assert.ErrorIs(t, err, queue.ErrUnknownVHost)

	_, err = engine.Enqueue(context.Background(), "missing", queue.Target{Queue: "q"}, map[string]int{})
	assert.ErrorIs(t, err, queue.ErrUnknownVHost)
}

func TestEngine_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, _, _ := newEngine(t)

	key, err := engine.Enqueue(ctx, queue.DefaultVHost, queue.Target{Queue: "orders"}, map[string]int{"id": 42})
	require.NoError(t, err)
	assert.NotEmpty(t, key, "a key is generated when none is given")

	msg, err := engine.Claim(ctx, queue.DefaultVHost, "", "orders")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":42}`, string(msg.Payload))
	assert.Equal(t, key, msg.Key)
	assert.Equal(t, queue.DefaultGroup, msg.Group)
	assert.Equal(t, queue.MessageID(queue.DefaultVHost, queue.DefaultGroup, "orders", key), msg.ID)

	ok, err := engine.Ack(ctx, msg)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := engine.Length(ctx, queue.DefaultVHost, "", "orders")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEngine_EnqueuePayloads(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, _, _ := newEngine(t)
	target := queue.Target{Queue: "q"}

	_, err := engine.Enqueue(ctx, "", target, nil)
	assert.ErrorIs(t, err, queue.ErrPayloadNil)

	_, err = engine.Enqueue(ctx, "", target, json.RawMessage(`{not json`))
	assert.ErrorIs(t, err, queue.ErrPayloadMarshal)

	_, err = engine.Enqueue(ctx, "", target, make(chan int))
	assert.ErrorIs(t, err, queue.ErrPayloadMarshal)

	_, err = engine.Enqueue(ctx, "", queue.Target{}, map[string]int{})
	assert.ErrorIs(t, err, queue.ErrQueueNameRequired)

	key, err := engine.Enqueue(ctx, "", target, []byte(`{"raw":true}`), queue.WithKey("raw"))
	require.NoError(t, err)
	assert.Equal(t, "raw", key)

	msg, err := engine.Claim(ctx, "", "", "q")
	require.NoError(t, err)
	assert.JSONEq(t, `{"raw":true}`, string(msg.Payload))
}

func TestEngine_EnqueueKeyOverwrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, _, clock := newEngine(t)

	_, err := engine.Enqueue(ctx, "", queue.Target{Queue: "timers", Key: "user-7"}, map[string]int{"v": 1}, queue.WithDelay(time.Hour))
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = engine.Enqueue(ctx, "", queue.Target{Queue: "timers", Key: "user-7"}, map[string]int{"v": 2}, queue.WithDelay(time.Hour))
	require.NoError(t, err)

	n, err := engine.Length(ctx, "", "", "timers")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	page, err := engine.List(ctx, "", queue.Filter{Queue: "timers"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.JSONEq(t, `{"v":2}`, string(page.Items[0].Payload))
	assert.True(t, page.Items[0].VisibleAt.Equal(clock.Now().Add(time.Hour)))
}

func TestEngine_DelayAndSchedule(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, _, clock := newEngine(t)

	_, err := engine.Enqueue(ctx, "", queue.Target{Queue: "q", Key: "t", Delay: 5 * time.Second}, map[string]int{})
	require.NoError(t, err)
	_, err = engine.Enqueue(ctx, "", queue.Target{Queue: "q", Key: "s"}, map[string]int{},
		queue.WithDelay(time.Hour),
		queue.WithScheduledAt(clock.Now().Add(10*time.Second)))
	require.NoError(t, err)

	_, err = engine.Claim(ctx, "", "", "q")
	require.ErrorIs(t, err, queue.ErrNoMessage)

	clock.Advance(5 * time.Second)
	msg, err := engine.Claim(ctx, "", "", "q")
	require.NoError(t, err)
	assert.Equal(t, "t", msg.Key)

	clock.Advance(5 * time.Second)
	msg, err = engine.Claim(ctx, "", "", "q")
	require.NoError(t, err)
	assert.Equal(t, "s", msg.Key, "scheduled time wins over delay")
}

func TestEngine_NackDelays(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, storage, clock := newEngine(t)

	_, err := engine.Enqueue(ctx, "", queue.Target{Queue: "q", Key: "k"}, map[string]int{})
	require.NoError(t, err)

	msg, err := engine.Claim(ctx, "", "", "q")
	require.NoError(t, err)
	ok, err := engine.Nack(ctx, msg, 0)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := storage.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.Backoff(0), got.VisibleAt.Sub(clock.Now()))

	clock.Advance(queue.Backoff(0))
	msg, err = engine.Claim(ctx, "", "", "q")
	require.NoError(t, err)
	ok, err = engine.Nack(ctx, msg, 120*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	got, err = storage.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, got.VisibleAt.Sub(clock.Now()))
	assert.Equal(t, 2, got.SyncCount)
}

func TestEngine_AdminByID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, _, _ := newEngine(t)

	_, err := engine.Enqueue(ctx, "", queue.Target{Queue: "q", Key: "k"}, map[string]int{})
	require.NoError(t, err)
	id := queue.MessageID(queue.DefaultVHost, queue.DefaultGroup, "q", "k")

	locked, err := engine.LockByID(ctx, "", id)
	require.NoError(t, err)
	assert.NotEmpty(t, locked.Lease)

	_, err = engine.UnlockByID(ctx, "", id, "")
	require.NoError(t, err)

	reset, err := engine.ResetByID(ctx, "", id)
	require.NoError(t, err)
	assert.Equal(t, 0, reset.SyncCount)

	_, err = engine.Claim(ctx, "", "", "q")
	require.NoError(t, err)

	// AckByID resolves a message whoever holds its claim.
	require.NoError(t, engine.AckByID(ctx, "", id))
	_, err = engine.Get(ctx, "", id)
	assert.ErrorIs(t, err, queue.ErrNotFound)

	assert.ErrorIs(t, engine.DeleteByID(ctx, "", id), queue.ErrNotFound)
}

func TestEngine_EnqueueBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, _, _ := newEngine(t)

	_, err := engine.EnqueueBatch(ctx, "", nil)
	require.ErrorIs(t, err, queue.ErrNoItemsToEnqueue)

	keys, err := engine.EnqueueBatch(ctx, "", []queue.Item{
		{Target: queue.Target{Queue: "q", Key: "a"}, Payload: map[string]int{"n": 1}},
		{Target: queue.Target{Queue: "q"}, Payload: map[string]int{"n": 2}},
		{Target: queue.Target{Queue: "q"}, Payload: nil},
		{Target: queue.Target{Queue: "q", Key: "never"}, Payload: map[string]int{"n": 4}},
	})
	require.ErrorIs(t, err, queue.ErrPayloadNil)
	require.Len(t, keys, 2)
	assert.Equal(t, "a", keys[0])

	n, err := engine.Length(ctx, "", "", "q")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEngine_ReleaseExpiredJoinsErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine := queue.NewEngine(queue.WithEngineLogger(logger.Discard()))

	healthy := &MockStorage{}
	healthy.On("ReleaseExpired", ctx).Return(3, nil)
	healthy.On("Close").Return(nil)

	broken := &MockStorage{}
	boom := errors.New("connection refused")
	broken.On("ReleaseExpired", ctx).Return(0, boom)
	broken.On("Close").Return(boom)

	require.NoError(t, engine.Register("healthy", healthy))
	require.NoError(t, engine.Register("broken", broken))

	n, err := engine.ReleaseExpired(ctx)
	assert.Equal(t, 3, n, "one failing host does not stop the sweep")
	assert.ErrorIs(t, err, boom)

	assert.ErrorIs(t, engine.Close(), boom)
	assert.Empty(t, engine.VHosts())

	healthy.AssertExpectations(t)
	broken.AssertExpectations(t)
}
