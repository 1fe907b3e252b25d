package uc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/integration"
	"github.com/captep/studio/pkg/logger"
)

// CallbackInput carries the query parameters of a provider redirect.
type CallbackInput struct {
	Platform         string
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// HandleCallback exchanges the authorization code and stores the resulting
// connection. The outcome is always reported to anyone awaiting the state.
type HandleCallback struct {
	repo    integration.Repository
	states  integration.StateStore
	tokens  *integration.TokenClient
	awaiter *integration.Awaiter
	input   *CallbackInput
}

func NewHandleCallback(
	repo integration.Repository,
	states integration.StateStore,
	tokens *integration.TokenClient,
	awaiter *integration.Awaiter,
	input *CallbackInput,
) *HandleCallback {
	return &HandleCallback{repo: repo, states: states, tokens: tokens, awaiter: awaiter, input: input}
}

func (uc *HandleCallback) Execute(ctx context.Context) (*integration.AuthorizationResult, error) {
	conn, err := uc.exchange(ctx)
	if err != nil {
		// Only the callback that consumed the state may report for it.
		if !errors.Is(err, integration.ErrStateNotFound) {
			uc.report(ctx, &integration.AuthorizationResult{Status: false, Message: err.Error()})
		}
		return nil, err
	}
	result := &integration.AuthorizationResult{
		Status:  true,
		Message: integration.SuccessMessage,
		Data:    conn.ID.String(),
	}
	uc.report(ctx, result)
	return result, nil
}

func (uc *HandleCallback) exchange(ctx context.Context) (*integration.Connection, error) {
	log := logger.FromContext(ctx)
	in := uc.input
	if in.State == "" {
		return nil, integration.ErrStateNotFound
	}
	pending, err := uc.states.Take(ctx, in.State)
	if err != nil {
		return nil, err
	}
	if in.Error != "" {
		msg := in.ErrorDescription
		if msg == "" {
			msg = in.Error
		}
		return nil, fmt.Errorf("provider denied authorization: %s", msg)
	}
	if in.Code == "" {
		return nil, integration.ErrMissingCode
	}
	if !strings.EqualFold(pending.Platform, in.Platform) {
		return nil, integration.ErrPlatformMismatch
	}
	provider, err := uc.repo.GetProvider(ctx, pending.Platform)
	if err != nil {
		return nil, err
	}
	grant, err := uc.tokens.Exchange(ctx, provider, in.Code, pending.Verifier)
	if err != nil {
		return nil, err
	}
	id, err := core.NewID()
	if err != nil {
		return nil, err
	}
	now := uc.tokens.Now().UTC()
	conn := &integration.Connection{
		ID:           id,
		CustomToolID: provider.CustomToolID,
		AccessToken:  grant.AccessToken,
		RefreshToken: optional(grant.RefreshToken),
		InstanceURL:  optional(grant.InstanceURL),
		ExpiresAt:    grant.ExpiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.repo.CreateConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to store connection: %w", err)
	}
	log.Info("OAuth connection created",
		"connection_id", conn.ID,
		"custom_tool_id", conn.CustomToolID,
		"refreshable", conn.RefreshToken != nil,
	)
	return conn, nil
}

func (uc *HandleCallback) report(ctx context.Context, result *integration.AuthorizationResult) {
	if uc.awaiter == nil || uc.input.State == "" {
		return
	}
	err := uc.awaiter.Resolve(ctx, uc.input.State, result)
	switch {
	case errors.Is(err, integration.ErrStateNotFound):
		logger.FromContext(ctx).Debug("No waiter tracks this state", "state", uc.input.State)
	case err != nil:
		logger.FromContext(ctx).Warn("Failed to publish authorization result", "error", err)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
