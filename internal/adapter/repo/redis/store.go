// Package redis provides a Redis-backed result store for multi-replica
// deployments. Results are stored as JSON under a TTL; the store stays
// transient, matching the in-memory semantics.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/johnmichaelkuczynski/texteval/internal/domain"
)

const keyPrefix = "texteval:result:"

// Store implements domain.ResultRepository on Redis.
type Store struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewStore constructs a Store. A non-positive ttl means no expiry.
func NewStore(rdb *goredis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Put stores r as JSON under its id.
func (s *Store) Put(ctx context.Context, r domain.AnalysisResult) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("op=redis.put marshal: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+r.ID, b, s.ttl).Err(); err != nil {
		return fmt.Errorf("op=redis.put: %w", err)
	}
	return nil
}

// Get returns the result stored under id.
func (s *Store) Get(ctx context.Context, id string) (domain.AnalysisResult, error) {
	b, err := s.rdb.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.AnalysisResult{}, fmt.Errorf("%w: result %s", domain.ErrNotFound, id)
		}
		return domain.AnalysisResult{}, fmt.Errorf("op=redis.get: %w", err)
	}
	var r domain.AnalysisResult
	if err := json.Unmarshal(b, &r); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("op=redis.get unmarshal: %w", err)
	}
	return r, nil
}

// Ping checks connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
