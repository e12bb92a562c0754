package supervisor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/status"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/supervisor"
)

// processes is a fake process table.
type processes struct {
	mu    sync.Mutex
	alive map[int]bool
}

func newProcesses() *processes {
	return &processes{alive: make(map[int]bool)}
}

func (p *processes) probe(pid int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive[pid]
}

func (p *processes) set(pid int, alive bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive[pid] = alive
}

func newControl(t *testing.T, procs *processes, opts ...supervisor.ControlOption) (*supervisor.Control, *status.MemoryStore) {
	t.Helper()

	records := status.NewMemoryStore()
	base := []supervisor.ControlOption{
		supervisor.WithControlProbe(procs.probe),
		supervisor.WithWaitTimeout(200 * time.Millisecond),
		supervisor.WithControlLogger(logger.Discard()),
	}
	return supervisor.NewControl(records, append(base, opts...)...), records
}

func putSupervisor(t *testing.T, records status.Store, pid int) {
	t.Helper()
	require.NoError(t, records.Put(context.Background(), &status.Record{
		Role:      status.RoleSupervisor,
		PID:       pid,
		Instance:  "sup",
		StartedAt: time.Now(),
	}))
}

func putWorker(t *testing.T, records status.Store, pid, index int) {
	t.Helper()
	require.NoError(t, records.Put(context.Background(), &status.Record{
		Role:     status.RoleWorker,
		VHost:    "default",
		Queue:    "orders",
		Index:    index,
		PID:      pid,
		Instance: "w",
	}))
}

func TestControl_StatusNotRunning(t *testing.T) {
	t.Parallel()

	ctl, _ := newControl(t, newProcesses())
	report, err := ctl.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateNotRunning, report.State)
	assert.Empty(t, report.Workers)
}

func TestControl_Start(t *testing.T) {
	t.Parallel()

	procs := newProcesses()
	var records *status.MemoryStore
	launches := 0
	launcher := func(context.Context) (int, error) {
		launches++
		procs.set(4242, true)
		putSupervisor(t, records, 4242)
		return 4242, nil
	}

	ctl, recs := newControl(t, procs, supervisor.WithLauncher(launcher))
	records = recs
	ctx := context.Background()

	state, err := ctl.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateStarted, state)

	state, err = ctl.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateAlreadyRunning, state)
	assert.Equal(t, 1, launches)

	report, err := ctl.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateRunning, report.State)
	assert.Equal(t, 4242, report.PID)
}

func TestControl_StartWithoutLauncher(t *testing.T) {
	t.Parallel()

	ctl, _ := newControl(t, newProcesses())
	_, err := ctl.Start(context.Background())
	require.ErrorIs(t, err, supervisor.ErrLauncherMissing)
}

func TestControl_StartLaunchFails(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	ctl, _ := newControl(t, newProcesses(), supervisor.WithLauncher(func(context.Context) (int, error) {
		return 0, boom
	}))
	_, err := ctl.Start(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestControl_Stop(t *testing.T) {
	t.Parallel()

	procs := newProcesses()
	var signalled []bool
	ctl, records := newControl(t, procs, supervisor.WithSignaler(func(pid int, force bool) error {
		signalled = append(signalled, force)
		procs.set(pid, false)
		return nil
	}))
	ctx := context.Background()

	procs.set(100, true)
	putSupervisor(t, records, 100)
	putWorker(t, records, 100, 0)
	putWorker(t, records, 100, 1)

	state, err := ctl.Stop(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateStopped, state)
	assert.Equal(t, []bool{true}, signalled)

	_, err = records.Get(ctx, status.SupervisorKey())
	require.ErrorIs(t, err, status.ErrNotFound)
	workers, err := records.List(ctx, status.RoleWorker)
	require.NoError(t, err)
	assert.Empty(t, workers, "records of the dead process are cleaned up")

	state, err = ctl.Stop(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateNotRunning, state)
}

func TestControl_StopTimesOut(t *testing.T) {
	t.Parallel()

	procs := newProcesses()
	ctl, records := newControl(t, procs, supervisor.WithSignaler(func(int, bool) error { return nil }))
	ctx := context.Background()

	procs.set(100, true)
	putSupervisor(t, records, 100)

	state, err := ctl.Stop(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateStopping, state)

	rec, err := records.Get(ctx, status.SupervisorKey())
	require.NoError(t, err)
	assert.True(t, rec.Stopping)
	assert.False(t, rec.Force)
}

func TestControl_StopCleansStaleRecords(t *testing.T) {
	t.Parallel()

	ctl, records := newControl(t, newProcesses())
	ctx := context.Background()

	putSupervisor(t, records, 7)
	putWorker(t, records, 7, 0)

	state, err := ctl.Stop(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateNotRunning, state)

	workers, err := records.List(ctx, status.RoleWorker)
	require.NoError(t, err)
	assert.Empty(t, workers)
}

func TestControl_Restart(t *testing.T) {
	t.Parallel()

	procs := newProcesses()
	var records *status.MemoryStore
	ctl, recs := newControl(t, procs,
		supervisor.WithSignaler(func(pid int, _ bool) error {
			procs.set(pid, false)
			return nil
		}),
		supervisor.WithLauncher(func(context.Context) (int, error) {
			procs.set(200, true)
			putSupervisor(t, records, 200)
			return 200, nil
		}),
	)
	records = recs
	ctx := context.Background()

	procs.set(100, true)
	putSupervisor(t, records, 100)

	state, err := ctl.Restart(ctx)
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateStarted, state)

	rec, err := records.Get(ctx, status.SupervisorKey())
	require.NoError(t, err)
	assert.Equal(t, 200, rec.PID)
}

func TestControl_StatusReportsWorkers(t *testing.T) {
	t.Parallel()

	procs := newProcesses()
	ctl, records := newControl(t, procs)
	ctx := context.Background()

	procs.set(100, true)
	putSupervisor(t, records, 100)
	putWorker(t, records, 100, 1)
	putWorker(t, records, 55, 0)

	report, err := ctl.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateRunning, report.State)
	require.Len(t, report.Workers, 2)
	assert.Equal(t, 0, report.Workers[0].Index)
	assert.False(t, report.Workers[0].Running)
	assert.Equal(t, 1, report.Workers[1].Index)
	assert.True(t, report.Workers[1].Running)
}
