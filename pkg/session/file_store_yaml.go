package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// YAMLFileStore persists values as a flat YAML map on disk. Every write
// replaces the file atomically.
type YAMLFileStore struct {
	mu     sync.RWMutex
	path   string
	store  *InMemoryStore
	closed bool
}

var _ Store = (*YAMLFileStore)(nil)

func NewYAMLFileStore(path string) (*YAMLFileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("yaml session store path is required")
	}

	s := &YAMLFileStore{
		path:  path,
		store: NewInMemoryStore(),
	}
	if err := s.loadFromDisk(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *YAMLFileStore) Path() string {
	return s.path
}

func (s *YAMLFileStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return "", false, err
	}
	return s.store.Get(ctx, key)
}

func (s *YAMLFileStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if current, ok, err := s.store.Get(ctx, key); err == nil && ok && current == value {
		return nil
	}
	if err := s.store.Set(ctx, key, value); err != nil {
		return err
	}
	return s.persistLocked()
}

func (s *YAMLFileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return err
	}
	return s.persistLocked()
}

func (s *YAMLFileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *YAMLFileStore) loadFromDisk() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	values := map[string]string{}
	if err := yaml.Unmarshal(b, &values); err != nil {
		return fmt.Errorf("could not parse %s: %w", s.path, err)
	}

	s.store = NewInMemoryStore()
	for k, v := range values {
		if k == "" || v == "" {
			continue
		}
		s.store.values[k] = v
	}
	return nil
}

func (s *YAMLFileStore) persistLocked() error {
	b, err := yaml.Marshal(s.store.snapshot())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

func (s *YAMLFileStore) ensureOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}
