// Package redis provides a ports.ContextStore backed by Redis, for sharing
// run history across processes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/espalier/pkg/domain"
)

const (
	defaultPrefix = "espalier:run:"
	indexSuffix   = "_index"
)

// Store implements ports.ContextStore on Redis. Run contexts are stored as
// JSON values under a prefixed key; a sorted set scored by start time keeps
// the run index in chronological order.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets an expiration for stored run contexts. Zero means no expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// NewFromClient creates a store on an existing Redis client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(runID string) string {
	return s.prefix + runID
}

func (s *Store) indexKey() string {
	return s.prefix + indexSuffix
}

// Save persists the run context and indexes it by start time.
func (s *Store) Save(ctx context.Context, runCtx *domain.Context) error {
	raw, err := json.Marshal(runCtx)
	if err != nil {
		return fmt.Errorf("failed to serialize run context: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(runCtx.RunID), raw, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(runCtx.StartTime.UnixNano()),
		Member: runCtx.RunID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to persist run context: %w", err)
	}
	return nil
}

// Load retrieves a run context by ID.
func (s *Store) Load(ctx context.Context, runID string) (*domain.Context, error) {
	raw, err := s.client.Get(ctx, s.key(runID)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run context: %w", err)
	}

	var runCtx domain.Context
	if err := json.Unmarshal(raw, &runCtx); err != nil {
		return nil, fmt.Errorf("failed to deserialize run context: %w", err)
	}
	return &runCtx, nil
}

// Delete removes a run context and its index entry.
func (s *Store) Delete(ctx context.Context, runID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(runID))
	pipe.ZRem(ctx, s.indexKey(), runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete run context: %w", err)
	}
	return nil
}

// List returns run IDs in chronological order. Index entries whose value
// has expired are pruned lazily.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	alive := make([]string, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		exists, err := s.client.Exists(ctx, s.key(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check run %s: %w", id, err)
		}
		if exists == 0 {
			stale = append(stale, id)
			continue
		}
		alive = append(alive, id)
	}
	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune run index: %w", err)
		}
	}
	return alive, nil
}
