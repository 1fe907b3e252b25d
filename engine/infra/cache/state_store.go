package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/captep/studio/engine/integration"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

const stateKeyPrefix = "oauth:state:"

// StateClient is the subset of the redis client the state store needs.
type StateClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

// RedisStateStore keeps pending authorizations in Redis so any replica can
// serve the provider callback.
type RedisStateStore struct {
	client StateClient
}

func NewRedisStateStore(client StateClient) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func (s *RedisStateStore) Put(
	ctx context.Context,
	state string,
	pending *integration.PendingAuthorization,
	ttl time.Duration,
) error {
	payload, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("marshaling pending authorization: %w", err)
	}
	if err := s.client.Set(ctx, stateKeyPrefix+state, payload, ttl).Err(); err != nil {
		return fmt.Errorf("storing oauth state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Take(ctx context.Context, state string) (*integration.PendingAuthorization, error) {
	raw, err := s.client.GetDel(ctx, stateKeyPrefix+state).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, integration.ErrStateNotFound
		}
		return nil, fmt.Errorf("taking oauth state: %w", err)
	}
	var pending integration.PendingAuthorization
	if err := json.Unmarshal(raw, &pending); err != nil {
		return nil, fmt.Errorf("decoding pending authorization: %w", err)
	}
	return &pending, nil
}

type stateEntry struct {
	pending   *integration.PendingAuthorization
	expiresAt time.Time
}

// MemoryStateStore is the single-process fallback. The LRU bounds memory;
// per-entry deadlines honor a ttl shorter than the store-wide one.
type MemoryStateStore struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, stateEntry]
	now func() time.Time
}

func NewMemoryStateStore(capacity int, ttl time.Duration) *MemoryStateStore {
	return &MemoryStateStore{
		lru: expirable.NewLRU[string, stateEntry](capacity, nil, ttl),
		now: time.Now,
	}
}

func (s *MemoryStateStore) Put(
	_ context.Context,
	state string,
	pending *integration.PendingAuthorization,
	ttl time.Duration,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Add(state, stateEntry{pending: pending, expiresAt: s.now().Add(ttl)})
	return nil
}

func (s *MemoryStateStore) Take(_ context.Context, state string) (*integration.PendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.lru.Peek(state)
	if !ok {
		return nil, integration.ErrStateNotFound
	}
	s.lru.Remove(state)
	if !s.now().Before(entry.expiresAt) {
		return nil, integration.ErrStateNotFound
	}
	return entry.pending, nil
}

func (s *MemoryStateStore) Len() int {
	return s.lru.Len()
}
