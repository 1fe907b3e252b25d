package uc

import (
	"context"

	"github.com/captep/studio/engine/integration"
)

// AwaitAuthorization blocks until the callback for state reports an outcome.
type AwaitAuthorization struct {
	awaiter *integration.Awaiter
	state   string
}

func NewAwaitAuthorization(awaiter *integration.Awaiter, state string) *AwaitAuthorization {
	return &AwaitAuthorization{awaiter: awaiter, state: state}
}

func (uc *AwaitAuthorization) Execute(ctx context.Context) (*integration.AuthorizationResult, error) {
	if uc.state == "" {
		return nil, integration.ErrStateNotFound
	}
	return uc.awaiter.Wait(ctx, uc.state)
}
