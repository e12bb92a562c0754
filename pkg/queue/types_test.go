package queue_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
)

func TestMessageID(t *testing.T) {
	t.Parallel()

	id := queue.MessageID("default", "default", "orders", "k1")
	assert.Equal(t, id, queue.MessageID("default", "default", "orders", "k1"), "ids are deterministic")
	assert.Len(t, id, 36)

	others := []string{
		queue.MessageID("other", "default", "orders", "k1"),
		queue.MessageID("default", "other", "orders", "k1"),
		queue.MessageID("default", "default", "invoices", "k1"),
		queue.MessageID("default", "default", "orders", "k2"),
		// Field boundaries must not be ambiguous.
		queue.MessageID("default", "default", "ordersk", "1"),
	}
	for _, other := range others {
		assert.NotEqual(t, id, other)
	}
}

func TestMessage_Claimable(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	lease := time.Minute
	claimedAt := func(ago time.Duration) *time.Time {
		at := now.Add(-ago)
		return &at
	}

	tests := []struct {
		name      string
		msg       queue.Message
		locked    bool
		claimable bool
	}{
		{
			name:      "fresh",
			msg:       queue.Message{VisibleAt: now},
			claimable: true,
		},
		{
			name: "delayed",
			msg:  queue.Message{VisibleAt: now.Add(time.Second)},
		},
		{
			name:   "claimed",
			msg:    queue.Message{VisibleAt: now, Lease: "l", ClaimedAt: claimedAt(30 * time.Second)},
			locked: true,
		},
		{
			name:      "claim expired",
			msg:       queue.Message{VisibleAt: now, Lease: "l", ClaimedAt: claimedAt(2 * time.Minute)},
			claimable: true,
		},
		{
			name: "claim expired but delayed",
			msg:  queue.Message{VisibleAt: now.Add(time.Hour), Lease: "l", ClaimedAt: claimedAt(2 * time.Minute)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.locked, tt.msg.Locked(now, lease))
			assert.Equal(t, tt.claimable, tt.msg.Claimable(now, lease))
		})
	}
}

func TestMessage_DecodeAndAttempt(t *testing.T) {
	t.Parallel()

	m := &queue.Message{Payload: json.RawMessage(`{"id":42}`), SyncCount: 2}

	var v struct {
		ID int `json:"id"`
	}
	require.NoError(t, m.Decode(&v))
	assert.Equal(t, 42, v.ID)
	assert.Equal(t, 3, m.Attempt())
}

func TestMessage_Clone(t *testing.T) {
	t.Parallel()

	at := time.Now()
	m := &queue.Message{Payload: json.RawMessage(`{"a":1}`), ClaimedAt: &at}
	cp := m.Clone()

	cp.Payload[2] = 'b'
	*cp.ClaimedAt = at.Add(time.Hour)

	assert.JSONEq(t, `{"a":1}`, string(m.Payload))
	assert.True(t, m.ClaimedAt.Equal(at))
}

func TestFilter_Normalize(t *testing.T) {
	t.Parallel()

	f := queue.Filter{Offset: -3}.Normalize()
	assert.Equal(t, 0, f.Offset)
	assert.Equal(t, queue.DefaultPageLimit, f.Limit)

	f = queue.Filter{Limit: 10_000}.Normalize()
	assert.Equal(t, queue.MaxPageLimit, f.Limit)
}

func TestFilter_Match(t *testing.T) {
	t.Parallel()

	now := time.Now()
	claimedAt := now.Add(-time.Second)
	m := &queue.Message{
		Group:     "billing",
		Queue:     "invoices",
		Key:       "invoice-2026-001",
		SyncCount: 1,
		Lease:     "l",
		ClaimedAt: &claimedAt,
	}
	one, two := 1, 2

	tests := []struct {
		name   string
		filter queue.Filter
		match  bool
	}{
		{"empty", queue.Filter{}, true},
		{"group", queue.Filter{Group: "billing"}, true},
		{"other group", queue.Filter{Group: "default"}, false},
		{"queue", queue.Filter{Queue: "invoices"}, true},
		{"other queue", queue.Filter{Queue: "orders"}, false},
		{"key substring", queue.Filter{KeyContains: "2026"}, true},
		{"key mismatch", queue.Filter{KeyContains: "refund"}, false},
		{"locked", queue.Filter{Lock: queue.LockLocked}, true},
		{"unlocked", queue.Filter{Lock: queue.LockUnlocked}, false},
		{"level", queue.Filter{RetryLevel: &one}, true},
		{"other level", queue.Filter{RetryLevel: &two}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.match, tt.filter.Match(m, now, time.Minute))
		})
	}
}

func TestLockState_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, queue.LockAny.Valid())
	assert.True(t, queue.LockLocked.Valid())
	assert.True(t, queue.LockUnlocked.Valid())
	assert.False(t, queue.LockState("stuck").Valid())
}
