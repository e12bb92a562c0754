package queue

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements Storage in process memory for tests and local
// development. One instance holds one virtual host.
type MemoryStorage struct {
	mu       sync.RWMutex
	messages map[string]*Message

	// Index for claim scans
	byQueue map[queueRef]map[string]struct{}

	leaseTimeout time.Duration
	now          func() time.Time
}

type queueRef struct {
	group string
	queue string
}

// MemoryOption configures a MemoryStorage.
type MemoryOption func(*MemoryStorage)

// WithMemoryLeaseTimeout sets how long a claim stays valid.
func WithMemoryLeaseTimeout(d time.Duration) MemoryOption {
	return func(s *MemoryStorage) {
		if d > 0 {
			s.leaseTimeout = d
		}
	}
}

// WithMemoryClock replaces the wall clock.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStorage) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStorage creates a new in-memory storage implementation
func NewMemoryStorage(opts ...MemoryOption) *MemoryStorage {
	s := &MemoryStorage{
		messages:     make(map[string]*Message),
		byQueue:      make(map[queueRef]map[string]struct{}),
		leaseTimeout: DefaultLeaseTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStorage) Enqueue(_ context.Context, msg *Message, delay time.Duration) (*Message, error) {
	if msg == nil {
		return nil, ErrPayloadNil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stored := msg.Clone()
	stored.SyncCount = 0
	stored.Lease = ""
	stored.ClaimedAt = nil
	stored.VisibleAt = now.Add(max(delay, 0))
	stored.EnqueuedAt = now
	stored.UpdatedAt = now
	stored.CreatedAt = now

	if prev, ok := s.messages[stored.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
		s.unindex(prev)
	}

	s.messages[stored.ID] = stored
	s.index(stored)

	return stored.Clone(), nil
}

func (s *MemoryStorage) Claim(_ context.Context, group, queue string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var best *Message

	// Lowest retry level first, oldest first within a level
	for id := range s.byQueue[queueRef{group, queue}] {
		m := s.messages[id]
		if !m.Claimable(now, s.leaseTimeout) {
			continue
		}
		if best == nil || claimLess(m, best) < 0 {
			best = m
		}
	}

	if best == nil {
		return nil, ErrNoMessage
	}

	s.claim(best, now)
	return best.Clone(), nil
}

func (s *MemoryStorage) Ack(_ context.Context, id, lease string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok || lease == "" || m.Lease != lease {
		return false, nil
	}
	s.remove(m)
	return true, nil
}

func (s *MemoryStorage) Nack(_ context.Context, id, lease string, delay time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok || lease == "" || m.Lease != lease {
		return false, nil
	}

	now := s.now()
	m.Lease = ""
	m.ClaimedAt = nil
	m.SyncCount++
	m.VisibleAt = now.Add(max(delay, 0))
	m.UpdatedAt = now
	return true, nil
}

func (s *MemoryStorage) Peek(_ context.Context, group, queue string, n int) ([]*Message, error) {
	if n <= 0 {
		return []*Message{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]*Message, 0)
	for id := range s.byQueue[queueRef{group, queue}] {
		if m := s.messages[id]; m.Claimable(now, s.leaseTimeout) {
			out = append(out, m.Clone())
		}
	}
	slices.SortFunc(out, claimLess)
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *MemoryStorage) Length(_ context.Context, group, queue string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.byQueue[queueRef{group, queue}]), nil
}

func (s *MemoryStorage) Clear(_ context.Context, group, queue string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := queueRef{group, queue}
	n := len(s.byQueue[ref])
	for id := range s.byQueue[ref] {
		delete(s.messages, id)
	}
	delete(s.byQueue, ref)
	return n, nil
}

func (s *MemoryStorage) List(_ context.Context, filter Filter) (*Page, error) {
	filter = filter.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	matched := make([]*Message, 0)
	for _, m := range s.messages {
		if filter.Match(m, now, s.leaseTimeout) {
			matched = append(matched, m)
		}
	}
	slices.SortFunc(matched, claimLess)

	page := &Page{
		Items:  make([]*Message, 0),
		Total:  len(matched),
		Offset: filter.Offset,
		Limit:  filter.Limit,
	}
	if filter.Offset < len(matched) {
		end := min(filter.Offset+filter.Limit, len(matched))
		for _, m := range matched[filter.Offset:end] {
			page.Items = append(page.Items, m.Clone())
		}
	}
	return page, nil
}

func (s *MemoryStorage) Get(_ context.Context, id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *MemoryStorage) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	s.remove(m)
	return nil
}

func (s *MemoryStorage) Reset(_ context.Context, id string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}

	now := s.now()
	m.SyncCount = 0
	m.Lease = ""
	m.ClaimedAt = nil
	m.VisibleAt = now
	m.UpdatedAt = now
	return m.Clone(), nil
}

func (s *MemoryStorage) Lock(_ context.Context, id string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}

	now := s.now()
	if m.Locked(now, s.leaseTimeout) {
		return nil, ErrLocked
	}
	s.claim(m, now)
	return m.Clone(), nil
}

func (s *MemoryStorage) Unlock(_ context.Context, id, lease string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	if lease != "" && m.Lease != lease {
		return nil, ErrLeaseLost
	}

	now := s.now()
	m.Lease = ""
	m.ClaimedAt = nil
	m.VisibleAt = now
	m.UpdatedAt = now
	return m.Clone(), nil
}

// ReleaseExpired recovers messages whose worker died mid-processing. The
// retry count is left untouched: a crash is not a recorded failure.
func (s *MemoryStorage) ReleaseExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	released := 0
	for _, m := range s.messages {
		if m.Lease != "" && !m.Locked(now, s.leaseTimeout) {
			m.Lease = ""
			m.ClaimedAt = nil
			m.UpdatedAt = now
			released++
		}
	}
	return released, nil
}

func (s *MemoryStorage) Ping(context.Context) error { return nil }

func (s *MemoryStorage) Close() error { return nil }

// Helper methods

func (s *MemoryStorage) claim(m *Message, now time.Time) {
	claimedAt := now
	m.Lease = uuid.NewString()
	m.ClaimedAt = &claimedAt
	m.UpdatedAt = now
}

func (s *MemoryStorage) index(m *Message) {
	ref := queueRef{m.Group, m.Queue}
	if s.byQueue[ref] == nil {
		s.byQueue[ref] = make(map[string]struct{})
	}
	s.byQueue[ref][m.ID] = struct{}{}
}

func (s *MemoryStorage) unindex(m *Message) {
	ref := queueRef{m.Group, m.Queue}
	delete(s.byQueue[ref], m.ID)
	if len(s.byQueue[ref]) == 0 {
		delete(s.byQueue, ref)
	}
}

func (s *MemoryStorage) remove(m *Message) {
	s.unindex(m)
	delete(s.messages, m.ID)
}
