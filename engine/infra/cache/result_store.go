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

const resultKeyPrefix = "oauth:result:"

// ResultClient is the subset of the redis client the result store needs.
type ResultClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetXX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisResultStore keeps authorization outcomes in Redis. A tracked state
// holds an empty value until its outcome is written over it.
type RedisResultStore struct {
	client ResultClient
}

func NewRedisResultStore(client ResultClient) *RedisResultStore {
	return &RedisResultStore{client: client}
}

func (s *RedisResultStore) Track(ctx context.Context, state string, ttl time.Duration) error {
	if err := s.client.Set(ctx, resultKeyPrefix+state, "", ttl).Err(); err != nil {
		return fmt.Errorf("tracking oauth state: %w", err)
	}
	return nil
}

func (s *RedisResultStore) Complete(
	ctx context.Context,
	state string,
	result *integration.AuthorizationResult,
	ttl time.Duration,
) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling authorization result: %w", err)
	}
	ok, err := s.client.SetXX(ctx, resultKeyPrefix+state, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("storing authorization result: %w", err)
	}
	if !ok {
		return integration.ErrStateNotFound
	}
	return nil
}

func (s *RedisResultStore) Lookup(ctx context.Context, state string) (*integration.AuthorizationResult, error) {
	raw, err := s.client.Get(ctx, resultKeyPrefix+state).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, integration.ErrStateNotFound
		}
		return nil, fmt.Errorf("reading authorization result: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var result integration.AuthorizationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding authorization result: %w", err)
	}
	return &result, nil
}

type resultEntry struct {
	result    *integration.AuthorizationResult
	expiresAt time.Time
}

// MemoryResultStore is the single-process fallback, bounded like
// MemoryStateStore.
type MemoryResultStore struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, resultEntry]
	now func() time.Time
}

func NewMemoryResultStore(capacity int, ttl time.Duration) *MemoryResultStore {
	return &MemoryResultStore{
		lru: expirable.NewLRU[string, resultEntry](capacity, nil, ttl),
		now: time.Now,
	}
}

func (s *MemoryResultStore) Track(_ context.Context, state string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Add(state, resultEntry{expiresAt: s.now().Add(ttl)})
	return nil
}

func (s *MemoryResultStore) Complete(
	_ context.Context,
	state string,
	result *integration.AuthorizationResult,
	ttl time.Duration,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(state); !ok {
		return integration.ErrStateNotFound
	}
	s.lru.Add(state, resultEntry{result: result, expiresAt: s.now().Add(ttl)})
	return nil
}

func (s *MemoryResultStore) Lookup(_ context.Context, state string) (*integration.AuthorizationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.live(state)
	if !ok {
		return nil, integration.ErrStateNotFound
	}
	return entry.result, nil
}

// live must be called with mu held.
func (s *MemoryResultStore) live(state string) (resultEntry, bool) {
	entry, ok := s.lru.Peek(state)
	if !ok {
		return resultEntry{}, false
	}
	if !s.now().Before(entry.expiresAt) {
		s.lru.Remove(state)
		return resultEntry{}, false
	}
	return entry, true
}
