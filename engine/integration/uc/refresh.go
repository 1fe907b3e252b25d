package uc

import (
	"context"
	"fmt"
	"time"

	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/integration"
	"github.com/captep/studio/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// RefreshWorkflowTokens refreshes every connection a workflow's tools use,
// one goroutine per connection, and waits for all of them to settle.
type RefreshWorkflowTokens struct {
	repo    integration.Repository
	tokens  *integration.TokenClient
	buffer  time.Duration
	metrics integration.Metrics
}

func NewRefreshWorkflowTokens(
	repo integration.Repository,
	tokens *integration.TokenClient,
	buffer time.Duration,
	metrics integration.Metrics,
) *RefreshWorkflowTokens {
	if metrics == nil {
		metrics = integration.NopMetrics{}
	}
	return &RefreshWorkflowTokens{repo: repo, tokens: tokens, buffer: buffer, metrics: metrics}
}

func (uc *RefreshWorkflowTokens) Execute(ctx context.Context, workflowID core.ID) (*integration.RefreshReport, error) {
	log := logger.FromContext(ctx).With("workflow_id", workflowID)
	candidates, err := uc.repo.ListRefreshCandidates(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("listing connections of workflow %s: %w", workflowID, err)
	}
	results := make([]integration.RefreshResult, len(candidates))
	// Goroutines never fail the group; each outcome lands in its own result
	// so every connection settles.
	var g errgroup.Group
	for i, cand := range candidates {
		g.Go(func() error {
			results[i] = uc.refreshOne(ctx, cand)
			return nil
		})
	}
	_ = g.Wait()
	report := &integration.RefreshReport{Results: results}
	log.Info("Token refresh settled",
		"connections", len(results),
		"refreshed", len(report.With(integration.OutcomeRefreshed)),
		"reauth_required", len(report.With(integration.OutcomeReauthRequired)),
		"transient_failures", len(report.With(integration.OutcomeTransient)),
	)
	return report, nil
}

func (uc *RefreshWorkflowTokens) refreshOne(
	ctx context.Context,
	cand *integration.RefreshCandidate,
) (res integration.RefreshResult) {
	log := logger.FromContext(ctx).With("connection_id", cand.ConnectionID)
	start := time.Now()
	now := uc.tokens.Now()
	res = integration.RefreshResult{
		ConnectionID: cand.ConnectionID,
		Expired:      cand.ExpiresAt == nil || !cand.ExpiresAt.After(now),
	}
	defer func() {
		uc.metrics.RecordRefresh(ctx, res.Outcome, time.Since(start))
	}()
	if !cand.Due(now, uc.buffer) {
		res.Outcome = integration.OutcomeSkipped
		return res
	}
	grant, err := uc.tokens.Refresh(ctx, cand)
	if err != nil {
		res.Error = err.Error()
		if integration.ClassifyTokenError(err) == integration.FailurePermanent {
			log.Warn("Refresh token rejected, re-authorization required", "error", err)
			if markErr := uc.repo.MarkReauthRequired(ctx, cand.ConnectionID); markErr != nil {
				log.Error("Failed to mark connection for re-authorization", "error", markErr)
			}
			res.Outcome = integration.OutcomeReauthRequired
			res.Expired = true
			return res
		}
		log.Warn("Token refresh failed", "error", err)
		res.Outcome = integration.OutcomeTransient
		return res
	}
	if err := uc.repo.UpdateTokens(ctx, cand.ConnectionID, grant); err != nil {
		log.Error("Failed to store refreshed token", "error", err)
		res.Outcome = integration.OutcomeTransient
		res.Error = err.Error()
		return res
	}
	res.Outcome = integration.OutcomeRefreshed
	res.Expired = false
	return res
}
