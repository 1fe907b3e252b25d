package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/captep/studio/engine/compiler"
	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/pkg/logger"
	"github.com/slok/goresilience"
	"github.com/slok/goresilience/circuitbreaker"
	gerrors "github.com/slok/goresilience/errors"
)

const (
	breakerErrorPercent      = 50
	breakerMinimumRequests   = 5
	breakerHalfOpenSuccesses = 1
	breakerWindowBuckets     = 10
	breakerBucketDuration    = time.Second
)

// ErrRuntimeUnavailable is returned while the breaker is open.
var ErrRuntimeUnavailable = errors.New("runtime is unavailable, retry later")

// Runtime is the surface the breaker guards.
type Runtime interface {
	Dispatch(ctx context.Context, artifacts *compiler.Artifacts) error
	Cancel(ctx context.Context, workflowID core.ID) error
}

// Breaker stops calling a runtime that keeps failing. Only transport errors
// and 5xx answers count against it; client errors pass through untouched.
type Breaker struct {
	next   Runtime
	runner goresilience.Runner
}

// NewBreaker wraps next. A non-positive openFor returns next unchanged.
func NewBreaker(next Runtime, openFor time.Duration) Runtime {
	if openFor <= 0 {
		return next
	}
	cb := circuitbreaker.NewMiddleware(circuitbreaker.Config{
		ErrorPercentThresholdToOpen:        breakerErrorPercent,
		MinimumRequestToOpen:               breakerMinimumRequests,
		SuccessfulRequiredOnHalfOpen:       breakerHalfOpenSuccesses,
		WaitDurationInOpenState:            openFor,
		MetricsSlidingWindowBucketQuantity: breakerWindowBuckets,
		MetricsBucketDuration:              breakerBucketDuration,
	})
	return &Breaker{next: next, runner: goresilience.RunnerChain(cb)}
}

func (b *Breaker) Dispatch(ctx context.Context, artifacts *compiler.Artifacts) error {
	return b.run(ctx, "dispatch", func(ctx context.Context) error {
		return b.next.Dispatch(ctx, artifacts)
	})
}

func (b *Breaker) Cancel(ctx context.Context, workflowID core.ID) error {
	return b.run(ctx, "cancel", func(ctx context.Context) error {
		return b.next.Cancel(ctx, workflowID)
	})
}

func (b *Breaker) run(ctx context.Context, op string, fn func(context.Context) error) error {
	var callErr error
	err := b.runner.Run(ctx, func(ctx context.Context) error {
		callErr = fn(ctx)
		if tripsBreaker(callErr) {
			return callErr
		}
		return nil
	})
	if errors.Is(err, gerrors.ErrCircuitOpen) {
		logger.FromContext(ctx).Warn("Runtime circuit open, skipping call", "operation", op)
		return fmt.Errorf("%s: %w", op, ErrRuntimeUnavailable)
	}
	return callErr
}

func tripsBreaker(err error) bool {
	if err == nil || errors.Is(err, ErrCancelUnsupported) || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status >= http.StatusInternalServerError
	}
	return true
}
