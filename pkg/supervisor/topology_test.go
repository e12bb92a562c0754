package supervisor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/supervisor"
)

const sampleTopology = `
vhosts:
  default:
    adapter: memory
    queues:
      orders:
        workers: 2
        callback: log
  billing:
    adapter: postgres
    dsn: ${BILLING_TEST_DSN}
    lease_timeout: 2m
    queues:
      invoices:
        workers: 1
        callback: noop
        group: finance
      archive:
        workers: 0
schedules:
  - name: nightly
    schedule: daily 02:00
    vhost: billing
    queue: invoices
    payload:
      kind: nightly
`

func TestParseTopology(t *testing.T) {
	t.Setenv("BILLING_TEST_DSN", "postgres://queue@localhost/billing")

	top, err := supervisor.ParseTopology([]byte(sampleTopology))
	require.NoError(t, err)

	assert.Equal(t, []string{"billing", "default"}, top.VHostNames())
	assert.NotZero(t, top.Version)

	billing := top.VHosts["billing"]
	assert.Equal(t, "postgres", billing.Adapter)
	assert.Equal(t, "postgres://queue@localhost/billing", billing.DSN)
	assert.Equal(t, 2*time.Minute, billing.LeaseTimeout)

	orders, err := top.Queue("default", "orders")
	require.NoError(t, err)
	assert.Equal(t, supervisor.QueueSpec{Workers: 2, Callback: "log", Group: queue.DefaultGroup}, orders)

	invoices, err := top.Queue("billing", "invoices")
	require.NoError(t, err)
	assert.Equal(t, "finance", invoices.Group)

	_, err = top.Queue("billing", "missing")
	require.ErrorIs(t, err, supervisor.ErrUnknownQueue)

	require.Len(t, top.Schedules, 1)
	assert.Equal(t, "nightly", top.Schedules[0].Name)
	assert.Equal(t, "nightly", top.Schedules[0].Payload["kind"])
}

func TestParseTopology_Version(t *testing.T) {
	t.Parallel()

	a, err := supervisor.ParseTopology([]byte("vhosts: {default: {queues: {q: {workers: 1, callback: log}}}}"))
	require.NoError(t, err)
	b, err := supervisor.ParseTopology([]byte("vhosts: {default: {queues: {q: {workers: 1, callback: log}}}}"))
	require.NoError(t, err)
	c, err := supervisor.ParseTopology([]byte("vhosts: {default: {queues: {q: {workers: 2, callback: log}}}}"))
	require.NoError(t, err)

	assert.Equal(t, a.Version, b.Version)
	assert.NotEqual(t, a.Version, c.Version)
}

func TestParseTopology_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"malformed":          "vhosts: [",
		"negative workers":   "vhosts: {default: {queues: {q: {workers: -1, callback: log}}}}",
		"missing callback":   "vhosts: {default: {queues: {q: {workers: 1}}}}",
		"unnamed schedule":   "schedules: [{schedule: every 5m}]",
		"duplicate schedule": "schedules: [{name: a, schedule: every 5m}, {name: a, schedule: hourly}]",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := supervisor.ParseTopology([]byte(doc))
			require.ErrorIs(t, err, supervisor.ErrInvalidTopology)
		})
	}
}

func TestFileSource(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "topology.yaml")
	src := supervisor.NewFileSource(path)

	_, err := src.Load(context.Background())
	require.ErrorIs(t, err, supervisor.ErrTopologyRead)

	require.NoError(t, os.WriteFile(path, []byte("vhosts: {default: {queues: {q: {workers: 1, callback: log}}}}"), 0o600))
	first, err := src.Load(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("vhosts: {default: {queues: {q: {workers: 3, callback: log}}}}"), 0o600))
	second, err := src.Load(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.Version, second.Version)
	q, err := second.Queue("default", "q")
	require.NoError(t, err)
	assert.Equal(t, 3, q.Workers)
}

func TestStaticSource(t *testing.T) {
	t.Parallel()

	src, err := supervisor.NewStaticSource(singleQueue("orders", 1, "log"))
	require.NoError(t, err)

	first, err := src.Load(context.Background())
	require.NoError(t, err)

	require.NoError(t, src.Set(singleQueue("orders", 2, "log")))
	second, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.Version, second.Version)

	err = src.Set(singleQueue("orders", 1, ""))
	require.ErrorIs(t, err, supervisor.ErrInvalidTopology)
}

func TestStaticSource_IsolatesCallers(t *testing.T) {
	t.Parallel()

	top := singleQueue("orders", 1, "log")
	src, err := supervisor.NewStaticSource(top)
	require.NoError(t, err)

	top.VHosts[queue.DefaultVHost].Queues["orders"] = supervisor.QueueSpec{Workers: 9, Callback: "log"}
	top.VHosts["other"] = supervisor.VHostSpec{Adapter: "memory"}

	loaded, err := src.Load(context.Background())
	require.NoError(t, err)
	q, err := loaded.Queue(queue.DefaultVHost, "orders")
	require.NoError(t, err)
	assert.Equal(t, 1, q.Workers)
	assert.Equal(t, queue.DefaultGroup, q.Group)
	assert.Equal(t, []string{queue.DefaultVHost}, loaded.VHostNames())

	loaded.VHosts[queue.DefaultVHost].Queues["orders"] = supervisor.QueueSpec{Workers: 7}
	again, err := src.Load(context.Background())
	require.NoError(t, err)
	q, err = again.Queue(queue.DefaultVHost, "orders")
	require.NoError(t, err)
	assert.Equal(t, 1, q.Workers)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	noop := queue.CallbackFunc("noop", func(context.Context, *queue.Message) error { return nil })
	reg, err := supervisor.NewRegistry(noop)
	require.NoError(t, err)

	cb, err := reg.Lookup("noop")
	require.NoError(t, err)
	assert.Equal(t, "noop", cb.Name())

	_, err = reg.Lookup("missing")
	require.ErrorIs(t, err, supervisor.ErrUnknownCallback)

	require.ErrorIs(t, reg.Register(noop), supervisor.ErrCallbackConflict)
	require.ErrorIs(t, reg.Register(nil), queue.ErrCallbackNil)
	assert.Equal(t, []string{"noop"}, reg.Names())
}
