package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/captep/studio/engine/integration"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pending(platform string) *integration.PendingAuthorization {
	return &integration.PendingAuthorization{
		Platform:  platform,
		Verifier:  "verifier-" + platform,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRedisStateStore(t *testing.T) {
	setup := func(t *testing.T) (*miniredis.Miniredis, *RedisStateStore) {
		t.Helper()
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		return mr, NewRedisStateStore(client)
	}

	t.Run("Should take a stored state exactly once", func(t *testing.T) {
		_, store := setup(t)
		require.NoError(t, store.Put(t.Context(), "s1", pending("gmail"), time.Minute))
		got, err := store.Take(t.Context(), "s1")
		require.NoError(t, err)
		assert.Equal(t, "gmail", got.Platform)
		assert.Equal(t, "verifier-gmail", got.Verifier)
		_, err = store.Take(t.Context(), "s1")
		assert.ErrorIs(t, err, integration.ErrStateNotFound)
	})

	t.Run("Should expire states after the ttl", func(t *testing.T) {
		mr, store := setup(t)
		require.NoError(t, store.Put(t.Context(), "s2", pending("slack"), time.Minute))
		assert.True(t, mr.Exists(stateKeyPrefix+"s2"))
		mr.FastForward(2 * time.Minute)
		_, err := store.Take(t.Context(), "s2")
		assert.ErrorIs(t, err, integration.ErrStateNotFound)
	})

	t.Run("Should reject unknown states", func(t *testing.T) {
		_, store := setup(t)
		_, err := store.Take(t.Context(), "never-issued")
		assert.ErrorIs(t, err, integration.ErrStateNotFound)
	})
}

func TestMemoryStateStore(t *testing.T) {
	t.Run("Should take a stored state exactly once", func(t *testing.T) {
		store := NewMemoryStateStore(10, time.Minute)
		require.NoError(t, store.Put(t.Context(), "s1", pending("gmail"), time.Minute))
		got, err := store.Take(t.Context(), "s1")
		require.NoError(t, err)
		assert.Equal(t, "gmail", got.Platform)
		_, err = store.Take(t.Context(), "s1")
		assert.ErrorIs(t, err, integration.ErrStateNotFound)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("Should honor a per-entry ttl", func(t *testing.T) {
		store := NewMemoryStateStore(10, time.Hour)
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		store.now = func() time.Time { return now }
		require.NoError(t, store.Put(t.Context(), "s1", pending("gmail"), time.Minute))
		now = now.Add(2 * time.Minute)
		_, err := store.Take(t.Context(), "s1")
		assert.ErrorIs(t, err, integration.ErrStateNotFound)
	})

	t.Run("Should evict the oldest state beyond capacity", func(t *testing.T) {
		store := NewMemoryStateStore(2, time.Minute)
		require.NoError(t, store.Put(t.Context(), "a", pending("a"), time.Minute))
		require.NoError(t, store.Put(t.Context(), "b", pending("b"), time.Minute))
		require.NoError(t, store.Put(t.Context(), "c", pending("c"), time.Minute))
		_, err := store.Take(t.Context(), "a")
		assert.ErrorIs(t, err, integration.ErrStateNotFound)
		got, err := store.Take(t.Context(), "c")
		require.NoError(t, err)
		assert.Equal(t, "c", got.Platform)
	})
}

var (
	_ integration.StateStore = (*RedisStateStore)(nil)
	_ integration.StateStore = (*MemoryStateStore)(nil)
)
