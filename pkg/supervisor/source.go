package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Source yields the current topology. The supervisor polls it and compares
// versions to detect changes.
type Source interface {
	Load(ctx context.Context) (*Topology, error)
}

// FileSource reads a YAML topology file on every Load.
type FileSource struct {
	path string
}

// NewFileSource returns a source reading path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Load(context.Context) (*Topology, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrTopologyRead, err)
	}
	t, err := ParseTopology(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return t, nil
}

// StaticSource serves a topology held in memory. Set replaces it and bumps
// the version.
type StaticSource struct {
	mu       sync.RWMutex
	topology *Topology
	version  uint64
}

// NewStaticSource returns a source serving t.
func NewStaticSource(t *Topology) (*StaticSource, error) {
	s := &StaticSource{}
	if err := s.Set(t); err != nil {
		return nil, err
	}
	return s, nil
}

// Set validates a copy of t and serves it. Later changes to t are not seen.
func (s *StaticSource) Set(t *Topology) error {
	cp := t.clone()
	if err := cp.normalize(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	cp.Version = s.version
	s.topology = cp
	return nil
}

func (s *StaticSource) Load(context.Context) (*Topology, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.topology.clone(), nil
}
