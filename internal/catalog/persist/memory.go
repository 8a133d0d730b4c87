package persist

import (
	"context"
	"sync"

	"github.com/yungbote/materialmap/internal/catalog/materials"
)

// MemoryStore keeps datasets and validators in process. It backs the
// worker when no durable store is configured and in tests.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]*materials.Dataset
	validators materials.Validators
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*materials.Dataset)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*materials.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.entries[key]
	if !ok {
		return nil, ErrNotCached
	}
	return ds.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, key string, ds *materials.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = ds.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) LoadValidators(context.Context) (materials.Validators, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validators, nil
}

func (s *MemoryStore) SaveValidators(_ context.Context, v materials.Validators) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validators = v
	return nil
}

func (s *MemoryStore) Close() error { return nil }
