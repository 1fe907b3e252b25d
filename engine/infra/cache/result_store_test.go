package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/captep/studio/engine/integration"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseResultStore(t *testing.T, store integration.ResultStore) {
	t.Helper()
	ctx := context.Background()
	want := &integration.AuthorizationResult{Status: true, Message: integration.SuccessMessage, Data: "conn-1"}

	_, err := store.Lookup(ctx, "never-issued")
	assert.ErrorIs(t, err, integration.ErrStateNotFound)
	assert.ErrorIs(t, store.Complete(ctx, "never-issued", want, time.Minute), integration.ErrStateNotFound)

	require.NoError(t, store.Track(ctx, "st", time.Minute))
	got, err := store.Lookup(ctx, "st")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Complete(ctx, "st", want, time.Minute))
	got, err = store.Lookup(ctx, "st")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRedisResultStore(t *testing.T) {
	setup := func(t *testing.T) (*miniredis.Miniredis, *RedisResultStore) {
		t.Helper()
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		return mr, NewRedisResultStore(client)
	}

	t.Run("Should keep results only for tracked states", func(t *testing.T) {
		_, store := setup(t)
		exerciseResultStore(t, store)
	})

	t.Run("Should forget states after the ttl", func(t *testing.T) {
		mr, store := setup(t)
		require.NoError(t, store.Track(t.Context(), "st", time.Minute))
		assert.True(t, mr.Exists(resultKeyPrefix+"st"))
		mr.FastForward(2 * time.Minute)
		_, err := store.Lookup(t.Context(), "st")
		assert.ErrorIs(t, err, integration.ErrStateNotFound)
	})
}

func TestMemoryResultStore(t *testing.T) {
	t.Run("Should keep results only for tracked states", func(t *testing.T) {
		exerciseResultStore(t, NewMemoryResultStore(10, time.Minute))
	})

	t.Run("Should honor a per-entry ttl", func(t *testing.T) {
		store := NewMemoryResultStore(10, time.Hour)
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		store.now = func() time.Time { return now }
		require.NoError(t, store.Track(t.Context(), "st", time.Minute))
		now = now.Add(2 * time.Minute)
		_, err := store.Lookup(t.Context(), "st")
		assert.ErrorIs(t, err, integration.ErrStateNotFound)
		err = store.Complete(t.Context(), "st", &integration.AuthorizationResult{Status: true}, time.Minute)
		assert.ErrorIs(t, err, integration.ErrStateNotFound)
	})
}
