package runtime

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/captep/studio/engine/compiler"
	"github.com/captep/studio/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyRuntime struct {
	calls int
	err   error
}

func (f *flakyRuntime) Dispatch(_ context.Context, _ *compiler.Artifacts) error {
	f.calls++
	return f.err
}

func (f *flakyRuntime) Cancel(_ context.Context, _ core.ID) error {
	f.calls++
	return f.err
}

func TestBreaker(t *testing.T) {
	t.Run("Should return the runtime unchanged when disabled", func(t *testing.T) {
		next := &flakyRuntime{}
		assert.Same(t, next, NewBreaker(next, 0))
	})

	t.Run("Should open after repeated server errors", func(t *testing.T) {
		next := &flakyRuntime{err: &StatusError{Endpoint: "agents", Status: http.StatusBadGateway}}
		b := NewBreaker(next, time.Minute)
		var err error
		for range 10 {
			err = b.Dispatch(t.Context(), artifacts())
			if errors.Is(err, ErrRuntimeUnavailable) {
				break
			}
		}
		require.ErrorIs(t, err, ErrRuntimeUnavailable)
		assert.Less(t, next.calls, 10)
	})

	t.Run("Should keep passing client errors through", func(t *testing.T) {
		next := &flakyRuntime{err: &StatusError{Endpoint: "agents", Status: http.StatusBadRequest}}
		b := NewBreaker(next, time.Minute)
		for range 10 {
			err := b.Dispatch(t.Context(), artifacts())
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
		}
		assert.Equal(t, 10, next.calls)
	})

	t.Run("Should not count a missing cancel endpoint", func(t *testing.T) {
		next := &flakyRuntime{err: ErrCancelUnsupported}
		b := NewBreaker(next, time.Minute)
		for range 10 {
			require.ErrorIs(t, b.Cancel(t.Context(), core.MustNewID()), ErrCancelUnsupported)
		}
		assert.Equal(t, 10, next.calls)
	})

	t.Run("Should succeed through a closed breaker", func(t *testing.T) {
		next := &flakyRuntime{}
		b := NewBreaker(next, time.Minute)
		require.NoError(t, b.Dispatch(t.Context(), artifacts()))
		assert.Equal(t, 1, next.calls)
	})
}
