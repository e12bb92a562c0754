package queue

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultVHost is the tenant used when a caller does not name one.
	DefaultVHost = "default"

	// DefaultGroup is the queue group used when a caller does not name one.
	DefaultGroup = "default"

	// DefaultLeaseTimeout is how long a claim stays valid before it is
	// treated as abandoned.
	DefaultLeaseTimeout = 5 * time.Minute
)

// messageNamespace seeds the name-based message ids. Changing it changes
// every id, so it must stay fixed.
var messageNamespace = uuid.MustParse("6f1c0a52-4b8e-4f0e-9a57-0d3c2b7e9a11")

// MessageID returns the identity of the message addressed by the tuple.
// The same tuple always maps to the same id, which is what makes
// re-enqueueing with a known key overwrite the pending message.
func MessageID(vhost, group, queue, key string) string {
	name := strings.Join([]string{vhost, group, queue, key}, "\x00")
	return uuid.NewSHA1(messageNamespace, []byte(name)).String()
}

// Message is a unit of work.
type Message struct {
	ID         string          `json:"id"`
	VHost      string          `json:"vhost"`
	Group      string          `json:"group"`
	Queue      string          `json:"queue"`
	Key        string          `json:"key"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	// SyncCount is the number of failed attempts. It also acts as the claim
	// priority level: lower levels are claimed first.
	SyncCount int       `json:"sync_count"`
	VisibleAt time.Time `json:"visible_at"`

	Lease     string     `json:"lease,omitempty"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attempt returns the 1-based number of the current processing attempt.
func (m *Message) Attempt() int {
	return m.SyncCount + 1
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// Locked reports whether the message holds a claim that has not expired.
func (m *Message) Locked(now time.Time, leaseTimeout time.Duration) bool {
	if m.Lease == "" || m.ClaimedAt == nil {
		return false
	}
	return now.Sub(*m.ClaimedAt) <= leaseTimeout
}

// Claimable reports whether a worker may claim the message at now.
func (m *Message) Claimable(now time.Time, leaseTimeout time.Duration) bool {
	return !m.Locked(now, leaseTimeout) && !m.VisibleAt.After(now)
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	cp := *m
	if m.Payload != nil {
		cp.Payload = append(json.RawMessage(nil), m.Payload...)
	}
	if m.ClaimedAt != nil {
		t := *m.ClaimedAt
		cp.ClaimedAt = &t
	}
	return &cp
}

// claimLess orders messages the way Claim serves them.
func claimLess(a, b *Message) int {
	switch {
	case a.SyncCount != b.SyncCount:
		if a.SyncCount < b.SyncCount {
			return -1
		}
		return 1
	case !a.CreatedAt.Equal(b.CreatedAt):
		return a.CreatedAt.Compare(b.CreatedAt)
	default:
		return strings.Compare(a.ID, b.ID)
	}
}

// LockState selects messages by claim state in List.
type LockState string

const (
	LockAny      LockState = ""
	LockLocked   LockState = "locked"
	LockUnlocked LockState = "unlocked"
)

// Valid reports whether s is a known lock state.
func (s LockState) Valid() bool {
	switch s {
	case LockAny, LockLocked, LockUnlocked:
		return true
	}
	return false
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 500
)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Group       string    `json:"group,omitempty"`
	Queue       string    `json:"queue,omitempty"`
	KeyContains string    `json:"key,omitempty"`
	Lock        LockState `json:"lock,omitempty"`
	RetryLevel  *int      `json:"level,omitempty"`
	Offset      int       `json:"offset"`
	Limit       int       `json:"limit"`
}

// Normalize clamps pagination to sane bounds.
func (f Filter) Normalize() Filter {
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	return f
}

// Match reports whether m passes every filter field except pagination.
func (f Filter) Match(m *Message, now time.Time, leaseTimeout time.Duration) bool {
	if f.Group != "" && m.Group != f.Group {
		return false
	}
	if f.Queue != "" && m.Queue != f.Queue {
		return false
	}
	if f.KeyContains != "" && !strings.Contains(m.Key, f.KeyContains) {
		return false
	}
	if f.RetryLevel != nil && m.SyncCount != *f.RetryLevel {
		return false
	}
	switch f.Lock {
	case LockLocked:
		return m.Locked(now, leaseTimeout)
	case LockUnlocked:
		return !m.Locked(now, leaseTimeout)
	}
	return true
}

// Page is one slice of a List result.
type Page struct {
	Items  []*Message `json:"items"`
	Total  int        `json:"total"`
	Offset int        `json:"offset"`
	Limit  int        `json:"limit"`
}
