package admin_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/admin"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue/storagetest"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/supervisor"
)

var mockAnyContext = mock.MatchedBy(func(context.Context) bool { return true })

type MockController struct {
	mock.Mock
}

func (m *MockController) Start(ctx context.Context) (supervisor.State, error) {
	args := m.Called(ctx)
	return args.Get(0).(supervisor.State), args.Error(1)
}

func (m *MockController) Stop(ctx context.Context, force bool) (supervisor.State, error) {
	args := m.Called(ctx, force)
	return args.Get(0).(supervisor.State), args.Error(1)
}

func (m *MockController) Restart(ctx context.Context) (supervisor.State, error) {
	args := m.Called(ctx)
	return args.Get(0).(supervisor.State), args.Error(1)
}

func (m *MockController) Status(ctx context.Context) (*supervisor.Report, error) {
	args := m.Called(ctx)
	report, _ := args.Get(0).(*supervisor.Report)
	return report, args.Error(1)
}

type fixture struct {
	engine *queue.Engine
	clock  *storagetest.Clock
	svc    *admin.Service
	calls  []string
	fail   error
}

func newFixture(t *testing.T, opts ...admin.Option) *fixture {
	t.Helper()

	f := &fixture{clock: storagetest.NewClock()}
	f.engine = queue.NewEngine(
		queue.WithEngineClock(f.clock.Now),
		queue.WithEngineLogger(logger.Discard()),
	)
	require.NoError(t, f.engine.Register(queue.DefaultVHost, queue.NewMemoryStorage(
		queue.WithMemoryClock(f.clock.Now),
		queue.WithMemoryLeaseTimeout(time.Minute),
	)))

	source, err := supervisor.NewStaticSource(&supervisor.Topology{
		VHosts: map[string]supervisor.VHostSpec{
			queue.DefaultVHost: {
				Adapter: "memory",
				Queues: map[string]supervisor.QueueSpec{
					"orders":   {Workers: 1, Callback: "collect"},
					"invoices": {Workers: 1, Callback: "collect", Group: "billing"},
					"orphans":  {Workers: 1, Callback: "missing"},
				},
			},
		},
	})
	require.NoError(t, err)

	registry, err := supervisor.NewRegistry(queue.CallbackFunc("collect", func(_ context.Context, msg *queue.Message) error {
		f.calls = append(f.calls, msg.Key)
		return f.fail
	}))
	require.NoError(t, err)

	f.svc, err = admin.NewService(f.engine, source, registry,
		append([]admin.Option{admin.WithLogger(logger.Discard())}, opts...)...)
	require.NoError(t, err)
	return f
}

func (f *fixture) enqueue(t *testing.T, target string, payload any, opts ...queue.EnqueueOption) string {
	t.Helper()
	tg, err := queue.ParseTarget(target)
	require.NoError(t, err)
	key, err := f.engine.Enqueue(context.Background(), queue.DefaultVHost, tg, payload, opts...)
	require.NoError(t, err)
	return queue.MessageID(queue.DefaultVHost, queue.DefaultGroup, tg.Queue, key)
}

func TestNewService_Validation(t *testing.T) {
	t.Parallel()

	src, err := supervisor.NewStaticSource(&supervisor.Topology{})
	require.NoError(t, err)
	reg, err := supervisor.NewRegistry()
	require.NoError(t, err)
	engine := queue.NewEngine()

	_, err = admin.NewService(nil, src, reg)
	require.ErrorIs(t, err, admin.ErrEngineNil)
	_, err = admin.NewService(engine, nil, reg)
	require.ErrorIs(t, err, admin.ErrSourceNil)
	_, err = admin.NewService(engine, src, nil)
	require.ErrorIs(t, err, admin.ErrRegistryNil)
}

func TestService_LengthAndPeek(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.enqueue(t, "orders:a", map[string]int{"id": 1})
	f.clock.Advance(time.Second)
	f.enqueue(t, "orders:b", map[string]int{"id": 2})
	f.clock.Advance(time.Second)
	f.enqueue(t, "orders:c:60", map[string]int{"id": 3})

	res := f.svc.Length(ctx, "", "orders")
	require.True(t, res.OK(), res.Message)
	assert.Equal(t, map[string]int{"length": 3}, res.Data)

	res = f.svc.Peek(ctx, queue.DefaultVHost, "orders", 10)
	require.True(t, res.OK(), res.Message)
	msgs := res.Data.([]*queue.Message)
	require.Len(t, msgs, 2, "the delayed message is not claimable yet")
	assert.Equal(t, "a", msgs[0].Key)
	assert.Equal(t, "b", msgs[1].Key)

	assert.Equal(t, http.StatusBadRequest, f.svc.Peek(ctx, "", "orders", 0).Code)
}

func TestService_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	tests := map[string]struct {
		res  admin.Result
		code int
	}{
		"unknown queue":    {f.svc.Length(ctx, "", "nope"), http.StatusNotFound},
		"unknown vhost":    {f.svc.Length(ctx, "tenant-x", "orders"), http.StatusNotFound},
		"empty queue":      {f.svc.Peek(ctx, "", "", 1), http.StatusBadRequest},
		"unknown message":  {f.svc.Get(ctx, "", "missing-id"), http.StatusNotFound},
		"empty id":         {f.svc.Delete(ctx, "", ""), http.StatusBadRequest},
		"bad lock filter":  {f.svc.List(ctx, "", queue.Filter{Lock: "half"}), http.StatusBadRequest},
		"list bad queue":   {f.svc.List(ctx, "", queue.Filter{Queue: "nope"}), http.StatusNotFound},
		"enqueue bad json": {f.svc.Enqueue(ctx, "", "orders", json.RawMessage(`{`)), http.StatusBadRequest},
		"no control":       {f.svc.SupervisorStatus(ctx), http.StatusBadRequest},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.res.Code, tt.res.Message)
			assert.False(t, tt.res.OK())
		})
	}
}

func TestService_List(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	for _, k := range []string{"user-1", "user-2", "admin-1"} {
		f.enqueue(t, "orders:"+k, "x")
	}
	_, err := f.engine.Enqueue(ctx, "", queue.Target{Queue: "invoices", Key: "user-9"}, "y", queue.WithGroup("billing"))
	require.NoError(t, err)

	res := f.svc.List(ctx, "", queue.Filter{KeyContains: "user", Limit: 2})
	require.True(t, res.OK(), res.Message)
	page := res.Data.(*queue.Page)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)

	res = f.svc.List(ctx, "", queue.Filter{Queue: "invoices"})
	require.True(t, res.OK(), res.Message)
	page = res.Data.(*queue.Page)
	require.Equal(t, 1, page.Total, "group comes from the topology")
	assert.Equal(t, "billing", page.Items[0].Group)
}

func TestService_LockUnlockResetAck(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	id := f.enqueue(t, "orders:k1", "x")

	res := f.svc.Lock(ctx, "", id)
	require.True(t, res.OK(), res.Message)
	lease := res.Data.(*queue.Message).Lease
	require.NotEmpty(t, lease)

	assert.Equal(t, http.StatusConflict, f.svc.Lock(ctx, "", id).Code)
	assert.Equal(t, http.StatusConflict, f.svc.Unlock(ctx, "", id, "other-lease").Code)

	res = f.svc.Unlock(ctx, "", id, lease)
	require.True(t, res.OK(), res.Message)
	assert.Empty(t, res.Data.(*queue.Message).Lease)

	msg, err := f.engine.Claim(ctx, "", "", "orders")
	require.NoError(t, err)
	_, err = f.engine.Nack(ctx, msg, 0)
	require.NoError(t, err)

	res = f.svc.Reset(ctx, "", id)
	require.True(t, res.OK(), res.Message)
	reset := res.Data.(*queue.Message)
	assert.Zero(t, reset.SyncCount)
	assert.Equal(t, f.clock.Now(), reset.VisibleAt)

	require.True(t, f.svc.Ack(ctx, "", id).OK())
	assert.Equal(t, http.StatusNotFound, f.svc.Get(ctx, "", id).Code)
	assert.Equal(t, http.StatusNotFound, f.svc.Ack(ctx, "", id).Code)
}

func TestService_Delete(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	id := f.enqueue(t, "orders:k1", "x")
	_, err := f.engine.Claim(ctx, "", "", "orders")
	require.NoError(t, err)

	require.True(t, f.svc.Delete(ctx, "", id).OK(), "delete ignores the claim")
	assert.Equal(t, http.StatusNotFound, f.svc.Delete(ctx, "", id).Code)
}

func TestService_Exec(t *testing.T) {
	t.Parallel()

	t.Run("success acks", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		id := f.enqueue(t, "orders:k1:300", map[string]int{"id": 42})

		res := f.svc.Exec(ctx, "", id)
		require.True(t, res.OK(), res.Message)
		out := res.Data.(admin.ExecResult)
		assert.Equal(t, "acked", out.Outcome)
		assert.Equal(t, "collect", out.Callback)
		assert.Equal(t, []string{"k1"}, f.calls, "delayed messages run on demand")
		assert.Equal(t, http.StatusNotFound, f.svc.Get(ctx, "", id).Code)
	})

	t.Run("failure schedules retry", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.fail = errors.New("gateway timeout")
		ctx := context.Background()
		id := f.enqueue(t, "orders:k1", "x")

		res := f.svc.Exec(ctx, "", id)
		require.True(t, res.OK(), res.Message)
		out := res.Data.(admin.ExecResult)
		assert.Equal(t, "retry_scheduled", out.Outcome)
		assert.Equal(t, "gateway timeout", out.Error)

		msg, err := f.engine.Get(ctx, "", id)
		require.NoError(t, err)
		assert.Equal(t, 1, msg.SyncCount)
		assert.Empty(t, msg.Lease)
		assert.Equal(t, f.clock.Now().Add(queue.Backoff(0)), msg.VisibleAt)
	})

	t.Run("locked message is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		id := f.enqueue(t, "orders:k1", "x")
		_, err := f.engine.Claim(ctx, "", "", "orders")
		require.NoError(t, err)

		assert.Equal(t, http.StatusConflict, f.svc.Exec(ctx, "", id).Code)
		assert.Empty(t, f.calls)
	})

	t.Run("unknown callback is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		id := f.enqueue(t, "orphans:k1", "x")

		res := f.svc.Exec(ctx, "", id)
		assert.Equal(t, http.StatusBadRequest, res.Code)

		msg, err := f.engine.Get(ctx, "", id)
		require.NoError(t, err)
		assert.Empty(t, msg.Lease, "a rejected exec leaves the message untouched")
	})
}

func TestService_Enqueue(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	res := f.svc.Enqueue(ctx, "", "invoices:inv-7:30", json.RawMessage(`{"amount":10}`))
	require.True(t, res.OK(), res.Message)
	data := res.Data.(map[string]string)
	assert.Equal(t, "inv-7", data["key"])

	msg, err := f.engine.Get(ctx, "", data["id"])
	require.NoError(t, err)
	assert.Equal(t, "billing", msg.Group)
	assert.Equal(t, f.clock.Now().Add(30*time.Second), msg.VisibleAt)
	assert.JSONEq(t, `{"amount":10}`, string(msg.Payload))

	assert.Equal(t, http.StatusNotFound, f.svc.Enqueue(ctx, "", "nope", json.RawMessage(`1`)).Code)
	assert.Equal(t, http.StatusBadRequest, f.svc.Enqueue(ctx, "", ":k", json.RawMessage(`1`)).Code)
}

func TestService_Supervisor(t *testing.T) {
	t.Parallel()

	ctl := &MockController{}
	f := newFixture(t, admin.WithControl(ctl))
	ctx := context.Background()

	ctl.On("Start", ctx).Return(supervisor.StateAlreadyRunning, nil).Once()
	ctl.On("Stop", ctx, true).Return(supervisor.StateStopped, nil).Once()
	ctl.On("Restart", ctx).Return(supervisor.State(""), supervisor.ErrLauncherMissing).Once()
	ctl.On("Status", ctx).Return(&supervisor.Report{
		State: supervisor.StateRunning,
		PID:   99,
		Workers: []supervisor.WorkerReport{
			{VHost: "default", Queue: "orders", Index: 0, PID: 99, Running: true},
			{VHost: "default", Queue: "invoices", Index: 0, PID: 99, Running: true, Busy: true},
		},
	}, nil).Twice()

	res := f.svc.SupervisorStart(ctx)
	require.True(t, res.OK())
	assert.Equal(t, map[string]supervisor.State{"state": supervisor.StateAlreadyRunning}, res.Data)
	assert.Equal(t, "already running", res.Message)

	res = f.svc.SupervisorStop(ctx, true)
	require.True(t, res.OK())
	assert.Equal(t, map[string]supervisor.State{"state": supervisor.StateStopped}, res.Data)

	res = f.svc.SupervisorRestart(ctx)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = f.svc.SupervisorStatus(ctx)
	require.True(t, res.OK())
	assert.Equal(t, 99, res.Data.(*supervisor.Report).PID)

	res = f.svc.WorkerStatus(ctx, "default", "invoices")
	require.True(t, res.OK())
	workers := res.Data.([]supervisor.WorkerReport)
	require.Len(t, workers, 1)
	assert.True(t, workers[0].Busy)

	ctl.AssertExpectations(t)
}
