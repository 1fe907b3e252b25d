package uc

import (
	"context"
	"time"

	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/integration"
)

type Settings struct {
	RefreshBuffer        time.Duration
	AuthorizationTimeout time.Duration
}

// Factory builds the integration use cases over one set of dependencies.
type Factory struct {
	repo     integration.Repository
	states   integration.StateStore
	tokens   *integration.TokenClient
	awaiter  *integration.Awaiter
	metrics  integration.Metrics
	settings Settings
}

func NewFactory(
	repo integration.Repository,
	states integration.StateStore,
	tokens *integration.TokenClient,
	awaiter *integration.Awaiter,
	metrics integration.Metrics,
	settings Settings,
) *Factory {
	return &Factory{
		repo:     repo,
		states:   states,
		tokens:   tokens,
		awaiter:  awaiter,
		metrics:  metrics,
		settings: settings,
	}
}

func (f *Factory) Authorize(platform string) *Authorize {
	return NewAuthorize(f.repo, f.states, f.tokens, f.awaiter, f.settings.AuthorizationTimeout, platform)
}

func (f *Factory) HandleCallback(input *CallbackInput) *HandleCallback {
	return NewHandleCallback(f.repo, f.states, f.tokens, f.awaiter, input)
}

func (f *Factory) FinalizeConnection(input *FinalizeInput) *FinalizeConnection {
	return NewFinalizeConnection(f.repo, input)
}

func (f *Factory) AwaitAuthorization(state string) *AwaitAuthorization {
	return NewAwaitAuthorization(f.awaiter, state)
}

func (f *Factory) RefreshWorkflowTokens() *RefreshWorkflowTokens {
	return NewRefreshWorkflowTokens(f.repo, f.tokens, f.settings.RefreshBuffer, f.metrics)
}

// RefreshWorkflow lets the compile pipeline depend on a narrow interface.
func (f *Factory) RefreshWorkflow(ctx context.Context, workflowID core.ID) (*integration.RefreshReport, error) {
	return f.RefreshWorkflowTokens().Execute(ctx, workflowID)
}
