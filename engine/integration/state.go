package integration

import (
	"context"
	"time"
)

// StateStore remembers pending authorizations until the callback consumes
// them. Take must be atomic: a state can be taken at most once.
type StateStore interface {
	Put(ctx context.Context, state string, pending *PendingAuthorization, ttl time.Duration) error
	// Take returns ErrStateNotFound for unknown, expired or already used states.
	Take(ctx context.Context, state string) (*PendingAuthorization, error)
}

// ResultStore keeps the outcome of an authorization so a waiter that arrives
// after the callback still receives it.
type ResultStore interface {
	// Track marks state as issued and not yet resolved.
	Track(ctx context.Context, state string, ttl time.Duration) error
	// Complete records the outcome of a tracked state. It returns
	// ErrStateNotFound when state was never tracked or has expired.
	Complete(ctx context.Context, state string, result *AuthorizationResult, ttl time.Duration) error
	// Lookup returns nil while state is unresolved and ErrStateNotFound when
	// it was never tracked or has expired.
	Lookup(ctx context.Context, state string) (*AuthorizationResult, error)
}
