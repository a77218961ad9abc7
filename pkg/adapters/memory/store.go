// Package memory provides an in-memory ports.ContextStore, useful for
// tests and single-process embedding.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aretw0/espalier/pkg/domain"
)

// Store implements ports.ContextStore in memory.
// Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Save persists the run context. Contexts are stored serialized so callers
// cannot mutate stored state through retained pointers.
func (s *Store) Save(ctx context.Context, runCtx *domain.Context) error {
	raw, err := json.Marshal(runCtx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[runCtx.RunID] = raw
	return nil
}

// Load retrieves a run context by ID.
func (s *Store) Load(ctx context.Context, runID string) (*domain.Context, error) {
	s.mu.RLock()
	raw, ok := s.data[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, domain.ErrRunNotFound
	}

	var runCtx domain.Context
	if err := json.Unmarshal(raw, &runCtx); err != nil {
		return nil, err
	}
	return &runCtx, nil
}

// Delete removes a run context.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runID)
	return nil
}

// List returns the stored run IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]string, 0, len(s.data))
	for id := range s.data {
		runs = append(runs, id)
	}
	return runs, nil
}
