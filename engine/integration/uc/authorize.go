package uc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/captep/studio/engine/integration"
	"github.com/captep/studio/pkg/logger"
	"golang.org/x/oauth2"
)

type AuthorizeOutput struct {
	Status       bool   `json:"status"`
	Platform     string `json:"platform"`
	AuthorizeURL string `json:"authorizeUrl"`
	State        string `json:"state"`
}

// Authorize starts an authorization-code flow for one provider.
type Authorize struct {
	repo     integration.Repository
	states   integration.StateStore
	tokens   *integration.TokenClient
	awaiter  *integration.Awaiter
	ttl      time.Duration
	platform string
}

func NewAuthorize(
	repo integration.Repository,
	states integration.StateStore,
	tokens *integration.TokenClient,
	awaiter *integration.Awaiter,
	ttl time.Duration,
	platform string,
) *Authorize {
	return &Authorize{repo: repo, states: states, tokens: tokens, awaiter: awaiter, ttl: ttl, platform: platform}
}

func (uc *Authorize) Execute(ctx context.Context) (*AuthorizeOutput, error) {
	log := logger.FromContext(ctx)
	platform := strings.TrimSpace(uc.platform)
	if platform == "" {
		return nil, integration.ErrMissingPlatform
	}
	provider, err := uc.repo.GetProvider(ctx, platform)
	if err != nil {
		return nil, err
	}
	state, err := integration.NewState()
	if err != nil {
		return nil, err
	}
	var verifier string
	if provider.PKCE {
		verifier = oauth2.GenerateVerifier()
	}
	pending := &integration.PendingAuthorization{
		Platform:  platform,
		Verifier:  verifier,
		CreatedAt: uc.tokens.Now().UTC(),
	}
	if err := uc.states.Put(ctx, state, pending, uc.ttl); err != nil {
		return nil, fmt.Errorf("failed to remember authorization state: %w", err)
	}
	if uc.awaiter != nil {
		if err := uc.awaiter.Track(ctx, state); err != nil {
			return nil, err
		}
	}
	log.Info("Authorization started", "platform", platform, "custom_tool_id", provider.CustomToolID, "pkce", provider.PKCE)
	return &AuthorizeOutput{
		Status:       true,
		Platform:     platform,
		AuthorizeURL: uc.tokens.AuthCodeURL(provider, state, verifier),
		State:        state,
	}, nil
}
