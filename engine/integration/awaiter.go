package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/captep/studio/engine/infra/pubsub"
	"github.com/captep/studio/pkg/logger"
)

const authorizationChannelPrefix = "oauth:authorization:"

// Awaiter lets a caller wait for the outcome of an authorization started in
// a browser popup. The callback handler resolves it by state. Outcomes are
// kept in the result store, so resolving before anyone waits is not lost.
type Awaiter struct {
	provider pubsub.Provider
	results  ResultStore
	timeout  time.Duration
}

func NewAwaiter(provider pubsub.Provider, results ResultStore, timeout time.Duration) *Awaiter {
	return &Awaiter{provider: provider, results: results, timeout: timeout}
}

// Track registers an issued state. Only tracked states can be awaited or
// resolved.
func (a *Awaiter) Track(ctx context.Context, state string) error {
	if err := a.results.Track(ctx, state, a.timeout); err != nil {
		return fmt.Errorf("failed to track authorization %s: %w", state, err)
	}
	return nil
}

func channelFor(state string) string {
	return authorizationChannelPrefix + state
}

// Subscribe registers interest in state before the caller blocks, so a
// result published right after cannot be missed. The stored result is read
// after subscribing to cover a callback that completed earlier.
func (a *Awaiter) Subscribe(ctx context.Context, state string) (*Pending, error) {
	sub, err := a.provider.Subscribe(ctx, channelFor(state))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to authorization %s: %w", state, err)
	}
	ready, err := a.results.Lookup(ctx, state)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}
	return &Pending{sub: sub, timeout: a.timeout, ready: ready}, nil
}

// Wait subscribes and blocks until the result arrives or the timeout passes.
func (a *Awaiter) Wait(ctx context.Context, state string) (*AuthorizationResult, error) {
	p, err := a.Subscribe(ctx, state)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

// Resolve stores the outcome of state and notifies current waiters. It
// returns ErrStateNotFound for states that were never tracked.
func (a *Awaiter) Resolve(ctx context.Context, state string, result *AuthorizationResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode authorization result: %w", err)
	}
	if err := a.results.Complete(ctx, state, result, a.timeout); err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return err
		}
		return fmt.Errorf("failed to store authorization result: %w", err)
	}
	if err := a.provider.Publish(ctx, channelFor(state), payload); err != nil {
		return fmt.Errorf("failed to publish authorization result: %w", err)
	}
	return nil
}

// Pending is a subscribed authorization, possibly already resolved.
type Pending struct {
	sub     pubsub.Subscription
	timeout time.Duration
	ready   *AuthorizationResult
}

func (p *Pending) Wait(ctx context.Context) (*AuthorizationResult, error) {
	defer p.sub.Close()
	if p.ready != nil {
		return p.ready, nil
	}
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrAuthorizationTimeout
		case <-p.sub.Done():
			if err := p.sub.Err(); err != nil {
				return nil, fmt.Errorf("authorization subscription closed: %w", err)
			}
			return nil, ErrAuthorizationTimeout
		case msg, ok := <-p.sub.Messages():
			if !ok {
				return nil, ErrAuthorizationTimeout
			}
			var result AuthorizationResult
			if err := json.Unmarshal(msg.Payload, &result); err != nil {
				logger.FromContext(ctx).Warn("Ignoring malformed authorization result", "error", err)
				continue
			}
			return &result, nil
		}
	}
}

func (p *Pending) Close() error {
	return p.sub.Close()
}
