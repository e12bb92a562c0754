package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue/storagetest"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/status"
)

// MockConsumer is a mock implementation of Consumer
type MockConsumer struct {
	mock.Mock
}

func (m *MockConsumer) Claim(ctx context.Context, vhost, group, queueName string) (*queue.Message, error) {
	args := m.Called(ctx, vhost, group, queueName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queue.Message), args.Error(1)
}

func (m *MockConsumer) Ack(ctx context.Context, msg *queue.Message) (bool, error) {
	args := m.Called(ctx, msg)
	return args.Bool(0), args.Error(1)
}

func (m *MockConsumer) Nack(ctx context.Context, msg *queue.Message, delay time.Duration) (bool, error) {
	args := m.Called(ctx, msg, delay)
	return args.Bool(0), args.Error(1)
}

type workerEnv struct {
	engine  *queue.Engine
	storage *queue.MemoryStorage
	clock   *storagetest.Clock
	records *status.MemoryStore
}

func newWorkerEnv(t *testing.T) *workerEnv {
	t.Helper()
	engine, storage, clock := newEngine(t)
	return &workerEnv{engine: engine, storage: storage, clock: clock, records: status.NewMemoryStore()}
}

func (e *workerEnv) worker(t *testing.T, cb queue.Callback, opts ...queue.WorkerOption) *queue.Worker {
	t.Helper()
	base := []queue.WorkerOption{
		queue.WithStatusStore(e.records),
		queue.WithPollInterval(5 * time.Millisecond),
		queue.WithWorkerLogger(logger.Discard()),
	}
	w, err := queue.NewWorker(e.engine, "orders", cb, append(base, opts...)...)
	require.NoError(t, err)
	return w
}

func (e *workerEnv) enqueue(t *testing.T, key string) string {
	t.Helper()
	_, err := e.engine.Enqueue(context.Background(), "", queue.Target{Queue: "orders", Key: key}, map[string]int{"id": 42})
	require.NoError(t, err)
	return queue.MessageID(queue.DefaultVHost, queue.DefaultGroup, "orders", key)
}

func run(t *testing.T, w *queue.Worker) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-w.Done()
	})
	return cancel, errCh
}

func requestStop(t *testing.T, records status.Store, w *queue.Worker) {
	t.Helper()
	_, err := records.Update(context.Background(), w.Key(), func(r *status.Record) { r.Stopping = true })
	require.NoError(t, err)
}

func waitDone(t *testing.T, w *queue.Worker) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit")
	}
}

func TestWorker_NewWorker(t *testing.T) {
	t.Parallel()

	cb := queue.CallbackFunc("noop", func(context.Context, *queue.Message) error { return nil })
	consumer := new(MockConsumer)

	_, err := queue.NewWorker(nil, "q", cb)
	assert.ErrorIs(t, err, queue.ErrConsumerNil)

	_, err = queue.NewWorker(consumer, "q", nil)
	assert.ErrorIs(t, err, queue.ErrCallbackNil)

	_, err = queue.NewWorker(consumer, "", cb)
	assert.ErrorIs(t, err, queue.ErrQueueNameRequired)

	w, err := queue.NewWorker(consumer, "q", cb, queue.WithWorkerVHost("t1"), queue.WithWorkerIndex(2))
	require.NoError(t, err)
	assert.Equal(t, status.WorkerKey("t1", "q", 2), w.Key())
	assert.NotEmpty(t, w.Instance())
}

func TestWorker_AcksOnSuccess(t *testing.T) {
	t.Parallel()

	env := newWorkerEnv(t)
	env.enqueue(t, "k")

	got := make(chan *queue.Message, 1)
	cb := queue.NewNamedCallback("orders", func(_ context.Context, p map[string]int, msg *queue.Message) error {
		if p["id"] == 42 {
			got <- msg
		}
		return nil
	})

	w := env.worker(t, cb)
	run(t, w)

	select {
	case msg := <-got:
		assert.Equal(t, 1, msg.Attempt())
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}

	require.Eventually(t, func() bool {
		n, err := env.engine.Length(context.Background(), "", "", "orders")
		return err == nil && n == 0
	}, 2*time.Second, 5*time.Millisecond)

	requestStop(t, env.records, w)
	waitDone(t, w)

	_, err := env.records.Get(context.Background(), w.Key())
	assert.ErrorIs(t, err, status.ErrNotFound, "clean exit removes the status record")
}

func TestWorker_FailureOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   func() error
		delay time.Duration
	}{
		{"error uses default backoff", func() error { return errors.New("smtp down") }, queue.Backoff(0)},
		{"retry after uses custom delay", func() error { return queue.RetryAfter(120 * time.Second) }, 120 * time.Second},
		{"panic uses default backoff", func() error { panic("nil map") }, queue.Backoff(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newWorkerEnv(t)
			id := env.enqueue(t, "k")

			var calls atomic.Int32
			cb := queue.CallbackFunc("failing", func(context.Context, *queue.Message) error {
				calls.Add(1)
				return tt.err()
			})

			w := env.worker(t, cb)
			run(t, w)

			require.Eventually(t, func() bool {
				m, err := env.storage.Get(context.Background(), id)
				return err == nil && m.SyncCount == 1
			}, 2*time.Second, 5*time.Millisecond)

			m, err := env.storage.Get(context.Background(), id)
			require.NoError(t, err)
			assert.Empty(t, m.Lease)
			assert.Equal(t, tt.delay, m.VisibleAt.Sub(env.clock.Now()))

			requestStop(t, env.records, w)
			waitDone(t, w)
			assert.Equal(t, int32(1), calls.Load(), "the message stays hidden until its retry time")
		})
	}
}

func TestWorker_PanicDoesNotStopLoop(t *testing.T) {
	t.Parallel()

	env := newWorkerEnv(t)
	env.enqueue(t, "a")
	env.clock.Advance(time.Second)
	env.enqueue(t, "b")

	var processed atomic.Int32
	cb := queue.CallbackFunc("mixed", func(_ context.Context, msg *queue.Message) error {
		if msg.Key == "a" {
			panic("boom")
		}
		processed.Add(1)
		return nil
	})

	w := env.worker(t, cb)
	run(t, w)

	require.Eventually(t, func() bool { return processed.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	n, err := env.engine.Length(context.Background(), "", "", "orders")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the panicking message is kept for retry")
}

func TestWorker_GracefulStopFinishesMessage(t *testing.T) {
	t.Parallel()

	env := newWorkerEnv(t)
	env.enqueue(t, "k")

	started := make(chan struct{})
	release := make(chan struct{})
	cb := queue.CallbackFunc("slow", func(context.Context, *queue.Message) error {
		close(started)
		<-release
		return nil
	})

	w := env.worker(t, cb)
	run(t, w)

	<-started
	assert.True(t, w.Busy())
	rec, err := env.records.Get(context.Background(), w.Key())
	require.NoError(t, err)
	assert.True(t, rec.Busy)

	requestStop(t, env.records, w)
	close(release)
	waitDone(t, w)

	n, err := env.engine.Length(context.Background(), "", "", "orders")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "the in-flight message is acked before exit")
}

func TestWorker_ForcedStopLeavesClaim(t *testing.T) {
	t.Parallel()

	env := newWorkerEnv(t)
	id := env.enqueue(t, "k")

	started := make(chan struct{})
	cb := queue.CallbackFunc("stuck", func(ctx context.Context, _ *queue.Message) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	w := env.worker(t, cb)
	cancel, errCh := run(t, w)

	<-started
	cancel()
	waitDone(t, w)
	require.NoError(t, <-errCh)

	m, err := env.storage.Get(context.Background(), id)
	require.NoError(t, err)
	assert.NotEmpty(t, m.Lease, "outcome is not resolved, the lease expires instead")
	assert.Equal(t, 0, m.SyncCount)

	_, err = env.records.Get(context.Background(), w.Key())
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestWorker_ExitsWhenRecordRemoved(t *testing.T) {
	t.Parallel()

	env := newWorkerEnv(t)
	cb := queue.CallbackFunc("noop", func(context.Context, *queue.Message) error { return nil })

	w := env.worker(t, cb)
	require.NoError(t, w.Announce(context.Background()))
	run(t, w)

	require.NoError(t, env.records.Delete(context.Background(), w.Key()))
	waitDone(t, w)
}

func TestWorker_ForceFlagExits(t *testing.T) {
	t.Parallel()

	env := newWorkerEnv(t)
	cb := queue.CallbackFunc("noop", func(context.Context, *queue.Message) error { return nil })

	w := env.worker(t, cb)
	run(t, w)

	require.Eventually(t, func() bool {
		_, err := env.records.Update(context.Background(), w.Key(), func(r *status.Record) { r.Force = true })
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
	waitDone(t, w)
}

func TestWorker_RunTwice(t *testing.T) {
	t.Parallel()

	env := newWorkerEnv(t)
	cb := queue.CallbackFunc("noop", func(context.Context, *queue.Message) error { return nil })
	w := env.worker(t, cb)
	run(t, w)

	require.Eventually(t, func() bool {
		_, err := env.records.Get(context.Background(), w.Key())
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, w.Run(context.Background()), queue.ErrWorkerStarted)
}

func TestWorker_StorageErrorsDoNotStopLoop(t *testing.T) {
	t.Parallel()

	consumer := new(MockConsumer)
	records := status.NewMemoryStore()
	msg := &queue.Message{ID: "m1", Queue: "orders", Lease: "l1"}
	acked := make(chan struct{})

	consumer.On("Claim", mock.Anything, queue.DefaultVHost, queue.DefaultGroup, "orders").
		Return(nil, errors.New("connection reset")).Twice()
	consumer.On("Claim", mock.Anything, queue.DefaultVHost, queue.DefaultGroup, "orders").
		Return(msg, nil).Once()
	consumer.On("Claim", mock.Anything, queue.DefaultVHost, queue.DefaultGroup, "orders").
		Return(nil, queue.ErrNoMessage).Maybe()
	consumer.On("Ack", mock.Anything, msg).
		Run(func(mock.Arguments) { close(acked) }).
		Return(false, errors.New("connection reset")).Once()

	cb := queue.CallbackFunc("noop", func(context.Context, *queue.Message) error { return nil })
	w, err := queue.NewWorker(consumer, "orders", cb,
		queue.WithStatusStore(records),
		queue.WithPollInterval(2*time.Millisecond),
		queue.WithWorkerLogger(logger.Discard()))
	require.NoError(t, err)
	run(t, w)

	select {
	case <-acked:
	case <-time.After(2 * time.Second):
		t.Fatal("message was never resolved")
	}
	require.Eventually(t, func() bool { return !w.Busy() }, 2*time.Second, 2*time.Millisecond)

	requestStop(t, records, w)
	waitDone(t, w)
	consumer.AssertExpectations(t)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	msg := &queue.Message{ID: "m", Lease: "l"}
	ctx := context.Background()

	consumer := new(MockConsumer)
	consumer.On("Ack", ctx, msg).Return(true, nil).Once()
	consumer.On("Nack", ctx, msg, time.Duration(0)).Return(true, nil).Once()
	consumer.On("Nack", ctx, msg, 90*time.Second).Return(false, nil).Once()

	ok, err := queue.Resolve(ctx, consumer, msg, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = queue.Resolve(ctx, consumer, msg, errors.New("x"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = queue.Resolve(ctx, consumer, msg, queue.RetryAfter(90*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	consumer.AssertExpectations(t)
}

func TestExecute_RecoversPanic(t *testing.T) {
	t.Parallel()

	cb := queue.CallbackFunc("explodes", func(context.Context, *queue.Message) error {
		var m map[string]int
		m["x"] = 1
		return nil
	})

	err := queue.Execute(context.Background(), cb, &queue.Message{})
	require.ErrorIs(t, err, queue.ErrCallbackPanic)
	assert.Contains(t, err.Error(), "explodes")
}
