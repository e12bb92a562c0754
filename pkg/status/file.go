package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const fileExt = ".json"

// FileStore keeps one JSON file per record inside a directory. Writes go
// through a temporary file and a rename so readers in other processes never
// observe a partial record.
type FileStore struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty run directory", ErrInvalidRecord)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory %q: %w", dir, err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

// Dir returns the run directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Get(_ context.Context, key Key) (*Record, error) {
	return s.read(s.path(key))
}

func (s *FileStore) Put(_ context.Context, rec *Record) error {
	if rec == nil {
		return ErrInvalidRecord
	}
	if err := rec.validate(); err != nil {
		return err
	}

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	cp := *rec
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = s.now()
	}
	return s.write(&cp)
}

// Update re-reads the file right before applying fn so flags written by
// another party since the caller's last read are merged, not lost. The
// read-modify-write runs under an exclusive lock on the run directory, which
// the CLI and the supervisor share across processes.
func (s *FileStore) Update(_ context.Context, key Key, fn func(*Record)) (*Record, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.read(s.path(key))
	if err != nil {
		return nil, err
	}
	fn(rec)
	rec.UpdatedAt = s.now()
	if err := s.write(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *FileStore) Delete(_ context.Context, key Key) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete status record %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) List(_ context.Context, role Role) ([]*Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read run directory: %w", err)
	}

	prefix := string(role)
	out := make([]*Record, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		rec, err := s.read(filepath.Join(s.dir, name))
		if err != nil {
			// The owner may have removed it between ReadDir and read.
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if rec.Role == role {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

func (s *FileStore) path(key Key) string {
	if key.Role == RoleSupervisor {
		return filepath.Join(s.dir, string(RoleSupervisor)+fileExt)
	}
	name := fmt.Sprintf("%s.%s.%s.%d%s",
		key.Role, escapeName(key.VHost), escapeName(key.Queue), key.Index, fileExt)
	return filepath.Join(s.dir, name)
}

// escapeName keeps '.' out of a name segment so it stays a field separator.
func escapeName(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), ".", "%2E")
}

// lock serialises writers in this process and, where the platform allows it,
// in every other process sharing the run directory.
func (s *FileStore) lock() (func(), error) {
	s.mu.Lock()
	release, err := lockDir(s.dir)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	return func() {
		release()
		s.mu.Unlock()
	}, nil
}

func (s *FileStore) read(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read status record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Join(ErrInvalidRecord, err)
	}
	return &rec, nil
}

func (s *FileStore) write(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Join(ErrInvalidRecord, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".record-*")
	if err != nil {
		return fmt.Errorf("create temp status file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write status record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close status record: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(rec.Key())); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish status record: %w", err)
	}
	return nil
}
