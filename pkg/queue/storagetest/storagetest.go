// Package storagetest holds the behavioural contract every queue.Storage
// implementation must satisfy, written once and run against each backend.
package storagetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
)

// LeaseTimeout is the lease timeout factories must configure.
const LeaseTimeout = time.Minute

// Factory builds an empty storage for vhost, reading time from now and
// treating claims older than LeaseTimeout as abandoned.
type Factory func(t *testing.T, vhost string, now func() time.Time) queue.Storage

const vhost = "tenant-a"

// Run executes the whole contract. Subtests share nothing.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s queue.Storage, clock *Clock)
	}{
		{"RoundTrip", testRoundTrip},
		{"DelayedVisibility", testDelayedVisibility},
		{"ReenqueueOverwrites", testReenqueueOverwrites},
		{"ReenqueueClearsClaim", testReenqueueClearsClaim},
		{"ClaimPriority", testClaimPriority},
		{"ClaimOrderWithinLevel", testClaimOrderWithinLevel},
		{"NackCustomDelay", testNackCustomDelay},
		{"NackBackoffSequence", testNackBackoffSequence},
		{"WrongLease", testWrongLease},
		{"ExpiredLeaseReclaimed", testExpiredLeaseReclaimed},
		{"ConcurrentClaimSingleMessage", testConcurrentClaimSingleMessage},
		{"ConcurrentDrain", testConcurrentDrain},
		{"QueueIsolation", testQueueIsolation},
		{"PeekAndLength", testPeekAndLength},
		{"Clear", testClear},
		{"List", testList},
		{"GetAndDelete", testGetAndDelete},
		{"Reset", testReset},
		{"LockUnlock", testLockUnlock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewClock()
			s := factory(t, vhost, clock.Now)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s, clock)
		})
	}
}

func newMessage(group, queueName, key, payload string) *queue.Message {
	return &queue.Message{
		ID:      queue.MessageID(vhost, group, queueName, key),
		VHost:   vhost,
		Group:   group,
		Queue:   queueName,
		Key:     key,
		Payload: json.RawMessage(payload),
	}
}

func enqueue(t *testing.T, s queue.Storage, queueName, key, payload string, delay time.Duration) *queue.Message {
	t.Helper()
	m, err := s.Enqueue(context.Background(), newMessage(queue.DefaultGroup, queueName, key, payload), delay)
	require.NoError(t, err)
	return m
}

func claim(t *testing.T, s queue.Storage, queueName string) *queue.Message {
	t.Helper()
	m, err := s.Claim(context.Background(), queue.DefaultGroup, queueName)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.NotEmpty(t, m.Lease)
	return m
}

func requireEmpty(t *testing.T, s queue.Storage, queueName string) {
	t.Helper()
	m, err := s.Claim(context.Background(), queue.DefaultGroup, queueName)
	require.ErrorIs(t, err, queue.ErrNoMessage)
	require.Nil(t, m)
}

func testRoundTrip(t *testing.T, s queue.Storage, clock *Clock) {
	ctx := context.Background()

	stored := enqueue(t, s, "orders", "k1", `{"id":42}`, 0)
	assert.Equal(t, "k1", stored.Key)
	assert.Equal(t, 0, stored.SyncCount)
	assert.True(t, stored.CreatedAt.Equal(clock.Now()))

	m := claim(t, s, "orders")
	assert.Equal(t, stored.ID, m.ID)
	assert.JSONEq(t, `{"id":42}`, string(m.Payload))
	assert.Equal(t, vhost, m.VHost)
	assert.Equal(t, "orders", m.Queue)
	require.NotNil(t, m.ClaimedAt)

	ok, err := s.Ack(ctx, m.ID, m.Lease)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := s.Length(ctx, queue.DefaultGroup, "orders")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func testDelayedVisibility(t *testing.T, s queue.Storage, clock *Clock) {
	enqueue(t, s, "orders", "late", `{}`, 5*time.Second)

	requireEmpty(t, s, "orders")

	clock.Advance(4 * time.Second)
	requireEmpty(t, s, "orders")

	clock.Advance(time.Second)
	m := claim(t, s, "orders")
	assert.Equal(t, "late", m.Key)
}

func testReenqueueOverwrites(t *testing.T, s queue.Storage, clock *Clock) {
	ctx := context.Background()

	first := enqueue(t, s, "timers", "K", `{"v":1}`, time.Hour)
	clock.Advance(10 * time.Second)
	second := enqueue(t, s, "timers", "K", `{"v":2}`, 0)

	assert.Equal(t, first.ID, second.ID)

	n, err := s.Length(ctx, queue.DefaultGroup, "timers")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got.Payload))
	assert.True(t, got.CreatedAt.Equal(first.CreatedAt), "created_at must survive overwrite")
	assert.True(t, got.VisibleAt.Equal(clock.Now()), "overwrite resets visibility")
}

func testReenqueueClearsClaim(t *testing.T, s queue.Storage, _ *Clock) {
	ctx := context.Background()

	enqueue(t, s, "timers", "K", `{"v":1}`, 0)
	m := claim(t, s, "timers")
	ok, err := s.Nack(ctx, m.ID, m.Lease, 0)
	require.NoError(t, err)
	require.True(t, ok)
	m = claim(t, s, "timers")

	enqueue(t, s, "timers", "K", `{"v":2}`, 0)

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Lease)
	assert.Nil(t, got.ClaimedAt)
	assert.Equal(t, 0, got.SyncCount)

	// The superseded lease no longer resolves anything.
	ok, err = s.Ack(ctx, m.ID, m.Lease)
	require.NoError(t, err)
	assert.False(t, ok)

	again := claim(t, s, "timers")
	assert.JSONEq(t, `{"v":2}`, string(again.Payload))
}

func testClaimPriority(t *testing.T, s queue.Storage, clock *Clock) {
	ctx := context.Background()

	old := enqueue(t, s, "jobs", "old", `{}`, 0)
	for range 2 {
		m := claim(t, s, "jobs")
		require.Equal(t, old.ID, m.ID)
		ok, err := s.Nack(ctx, m.ID, m.Lease, 0)
		require.NoError(t, err)
		require.True(t, ok)
	}

	clock.Advance(time.Second)
	fresh := enqueue(t, s, "jobs", "fresh", `{}`, 0)

	first := claim(t, s, "jobs")
	assert.Equal(t, fresh.ID, first.ID, "level 0 is served before level 2")
	assert.Equal(t, 0, first.SyncCount)

	second := claim(t, s, "jobs")
	assert.Equal(t, old.ID, second.ID)
	assert.Equal(t, 2, second.SyncCount)
}

func testClaimOrderWithinLevel(t *testing.T, s queue.Storage, clock *Clock) {
	keys := []string{"a", "b", "c"}
	for _, k := range keys {
		enqueue(t, s, "jobs", k, `{}`, 0)
		clock.Advance(time.Second)
	}
	for _, k := range keys {
		assert.Equal(t, k, claim(t, s, "jobs").Key)
	}
	requireEmpty(t, s, "jobs")
}

func testNackCustomDelay(t *testing.T, s queue.Storage, clock *Clock) {
	ctx := context.Background()

	enqueue(t, s, "orders", "k", `{}`, 0)
	m := claim(t, s, "orders")

	ok, err := s.Nack(ctx, m.ID, m.Lease, 120*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, clock.Now().Add(120*time.Second), got.VisibleAt, time.Second)
	assert.Equal(t, 1, got.SyncCount)
	assert.Empty(t, got.Lease)

	requireEmpty(t, s, "orders")
	clock.Advance(120 * time.Second)
	assert.Equal(t, m.ID, claim(t, s, "orders").ID)
}

func testNackBackoffSequence(t *testing.T, s queue.Storage, clock *Clock) {
	ctx := context.Background()

	enqueue(t, s, "orders", "k", `{}`, 0)

	var prev time.Duration
	for i := range 4 {
		m := claim(t, s, "orders")
		require.Equal(t, i, m.SyncCount)

		delay := queue.Backoff(m.SyncCount)
		ok, err := s.Nack(ctx, m.ID, m.Lease, delay)
		require.NoError(t, err)
		require.True(t, ok)

		got, err := s.Get(ctx, m.ID)
		require.NoError(t, err)
		delta := got.VisibleAt.Sub(clock.Now())
		assert.Equal(t, time.Duration(1<<i)*time.Minute, delta)
		assert.GreaterOrEqual(t, delta, prev)
		prev = delta

		clock.Advance(delta)
	}
}

func testWrongLease(t *testing.T, s queue.Storage, _ *Clock) {
	ctx := context.Background()

	enqueue(t, s, "orders", "k", `{}`, 0)
	m := claim(t, s, "orders")

	ok, err := s.Ack(ctx, m.ID, "not-the-lease")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Nack(ctx, m.ID, "not-the-lease", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Ack(ctx, "missing-id", m.Lease)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Lease, got.Lease)
	assert.Equal(t, 0, got.SyncCount)
}

func testExpiredLeaseReclaimed(t *testing.T, s queue.Storage, clock *Clock) {
	ctx := context.Background()

	enqueue(t, s, "orders", "k", `{}`, 0)
	crashed := claim(t, s, "orders")

	requireEmpty(t, s, "orders")

	clock.Advance(LeaseTimeout / 2)
	n, err := s.ReleaseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	requireEmpty(t, s, "orders")

	clock.Advance(LeaseTimeout)
	n, err = s.ReleaseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again := claim(t, s, "orders")
	assert.Equal(t, crashed.ID, again.ID)
	assert.Equal(t, 0, again.SyncCount, "a crash is not a recorded failure")
	assert.NotEqual(t, crashed.Lease, again.Lease)

	// The crashed worker's late ack must not delete the reclaimed message.
	ok, err := s.Ack(ctx, crashed.ID, crashed.Lease)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testConcurrentClaimSingleMessage(t *testing.T, s queue.Storage, _ *Clock) {
	enqueue(t, s, "race", "only", `{}`, 0)

	const claimers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		errs    []error
	)
	for range claimers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := s.Claim(context.Background(), queue.DefaultGroup, "race")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, m.Lease)
			case !errors.Is(err, queue.ErrNoMessage):
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, winners, 1)
}

func testConcurrentDrain(t *testing.T, s queue.Storage, clock *Clock) {
	const total = 30
	for i := range total {
		enqueue(t, s, "drain", fmt.Sprintf("m%02d", i), `{}`, 0)
		clock.Advance(time.Millisecond)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]int)
	)
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.Background()
			for {
				m, err := s.Claim(ctx, queue.DefaultGroup, "drain")
				if err != nil {
					return
				}
				mu.Lock()
				seen[m.ID]++
				mu.Unlock()
				if _, err := s.Ack(ctx, m.ID, m.Lease); err != nil {
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "message %s claimed %d times", id, n)
	}
}

func testQueueIsolation(t *testing.T, s queue.Storage, _ *Clock) {
	ctx := context.Background()

	_, err := s.Enqueue(ctx, newMessage("reports", "orders", "k", `{"g":"reports"}`), 0)
	require.NoError(t, err)
	enqueue(t, s, "invoices", "k", `{}`, 0)

	requireEmpty(t, s, "orders")

	m, err := s.Claim(ctx, "reports", "orders")
	require.NoError(t, err)
	assert.JSONEq(t, `{"g":"reports"}`, string(m.Payload))

	assert.Equal(t, "invoices", claim(t, s, "invoices").Queue)
}

func testPeekAndLength(t *testing.T, s queue.Storage, clock *Clock) {
	ctx := context.Background()

	enqueue(t, s, "q", "a", `{}`, 0)
	clock.Advance(time.Second)
	enqueue(t, s, "q", "b", `{}`, 0)
	clock.Advance(time.Second)
	enqueue(t, s, "q", "c", `{}`, 0)
	enqueue(t, s, "q", "delayed", `{}`, time.Hour)

	claimed := claim(t, s, "q")
	require.Equal(t, "a", claimed.Key)

	peeked, err := s.Peek(ctx, queue.DefaultGroup, "q", 10)
	require.NoError(t, err)
	require.Len(t, peeked, 2)
	assert.Equal(t, "b", peeked[0].Key)
	assert.Equal(t, "c", peeked[1].Key)

	peeked, err = s.Peek(ctx, queue.DefaultGroup, "q", 1)
	require.NoError(t, err)
	require.Len(t, peeked, 1)
	assert.Equal(t, "b", peeked[0].Key)

	// Peeking does not claim.
	assert.Equal(t, "b", claim(t, s, "q").Key)

	n, err := s.Length(ctx, queue.DefaultGroup, "q")
	require.NoError(t, err)
	assert.Equal(t, 4, n, "length counts claimed and delayed messages too")

	n, err = s.Length(ctx, queue.DefaultGroup, "other")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func testClear(t *testing.T, s queue.Storage, _ *Clock) {
	ctx := context.Background()

	enqueue(t, s, "q", "a", `{}`, 0)
	enqueue(t, s, "q", "b", `{}`, time.Hour)
	claim(t, s, "q")
	keep := enqueue(t, s, "other", "a", `{}`, 0)

	n, err := s.Clear(ctx, queue.DefaultGroup, "q")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Length(ctx, queue.DefaultGroup, "q")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = s.Get(ctx, keep.ID)
	assert.NoError(t, err)
}

func testList(t *testing.T, s queue.Storage, clock *Clock) {
	ctx := context.Background()

	enqueue(t, s, "orders", "order-1", `{}`, 0)
	clock.Advance(time.Second)
	enqueue(t, s, "orders", "order-2", `{}`, 0)
	clock.Advance(time.Second)
	enqueue(t, s, "orders", "refund-1", `{}`, 0)
	clock.Advance(time.Second)
	enqueue(t, s, "mail", "welcome", `{}`, 0)

	locked := claim(t, s, "orders")
	require.Equal(t, "order-1", locked.Key)

	page, err := s.List(ctx, queue.Filter{Queue: "orders"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 3)

	page, err = s.List(ctx, queue.Filter{KeyContains: "order-"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = s.List(ctx, queue.Filter{Queue: "orders", Lock: queue.LockLocked})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, locked.ID, page.Items[0].ID)

	page, err = s.List(ctx, queue.Filter{Queue: "orders", Lock: queue.LockUnlocked})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	ok, err := s.Nack(ctx, locked.ID, locked.Lease, 0)
	require.NoError(t, err)
	require.True(t, ok)

	level := 1
	page, err = s.List(ctx, queue.Filter{RetryLevel: &level})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "order-1", page.Items[0].Key)

	page, err = s.List(ctx, queue.Filter{Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 1, page.Offset)
	assert.Equal(t, 2, page.Limit)

	page, err = s.List(ctx, queue.Filter{Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Empty(t, page.Items)
}

func testGetAndDelete(t *testing.T, s queue.Storage, _ *Clock) {
	ctx := context.Background()

	m := enqueue(t, s, "q", "k", `{"a":1}`, 0)

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, "k", got.Key)
	assert.Equal(t, queue.DefaultGroup, got.Group)

	require.NoError(t, s.Delete(ctx, m.ID))

	_, err = s.Get(ctx, m.ID)
	assert.ErrorIs(t, err, queue.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, m.ID), queue.ErrNotFound)
	requireEmpty(t, s, "q")
}

func testReset(t *testing.T, s queue.Storage, clock *Clock) {
	ctx := context.Background()

	enqueue(t, s, "q", "k", `{}`, 0)
	m := claim(t, s, "q")
	ok, err := s.Nack(ctx, m.ID, m.Lease, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	requireEmpty(t, s, "q")

	reset, err := s.Reset(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reset.SyncCount)
	assert.Empty(t, reset.Lease)
	assert.True(t, reset.VisibleAt.Equal(clock.Now()))

	assert.Equal(t, m.ID, claim(t, s, "q").ID)

	_, err = s.Reset(ctx, "missing")
	assert.ErrorIs(t, err, queue.ErrNotFound)
}

func testLockUnlock(t *testing.T, s queue.Storage, clock *Clock) {
	ctx := context.Background()

	m := enqueue(t, s, "q", "k", `{}`, time.Hour)

	// Lock ignores visibility.
	locked, err := s.Lock(ctx, m.ID)
	require.NoError(t, err)
	require.NotEmpty(t, locked.Lease)

	_, err = s.Lock(ctx, m.ID)
	assert.ErrorIs(t, err, queue.ErrLocked)

	_, err = s.Unlock(ctx, m.ID, "not-the-lease")
	assert.ErrorIs(t, err, queue.ErrLeaseLost)

	unlocked, err := s.Unlock(ctx, m.ID, locked.Lease)
	require.NoError(t, err)
	assert.Empty(t, unlocked.Lease)
	assert.Equal(t, 0, unlocked.SyncCount, "unlock is not a failed attempt")
	assert.True(t, unlocked.VisibleAt.Equal(clock.Now()))

	claimed := claim(t, s, "q")
	assert.Equal(t, m.ID, claimed.ID)

	// An empty lease releases whatever claim is held.
	_, err = s.Unlock(ctx, m.ID, "")
	require.NoError(t, err)
	relocked, err := s.Lock(ctx, m.ID)
	require.NoError(t, err)
	assert.NotEqual(t, claimed.Lease, relocked.Lease)

	_, err = s.Lock(ctx, "missing")
	assert.ErrorIs(t, err, queue.ErrNotFound)
	_, err = s.Unlock(ctx, "missing", "")
	assert.ErrorIs(t, err, queue.ErrNotFound)
}
