package status

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Key]Record
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[Key]Record), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) Put(_ context.Context, rec *Record) error {
	if rec == nil {
		return ErrInvalidRecord
	}
	if err := rec.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = s.now()
	}
	s.records[cp.Key()] = cp
	return nil
}

func (s *MemoryStore) Update(_ context.Context, key Key, fn func(*Record)) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	fn(&rec)
	rec.UpdatedAt = s.now()
	s.records[key] = rec
	out := rec
	return &out, nil
}

func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}

func (s *MemoryStore) List(_ context.Context, role Role) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, len(s.records))
	for k, rec := range s.records {
		if k.Role != role {
			continue
		}
		cp := rec
		out = append(out, &cp)
	}
	sortRecords(out)
	return out, nil
}
