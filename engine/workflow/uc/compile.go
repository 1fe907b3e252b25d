package uc

import (
	"context"
	"errors"
	"time"

	"github.com/captep/studio/engine/compiler"
	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/integration"
	"github.com/captep/studio/engine/workflow"
	"github.com/captep/studio/pkg/logger"
)

// Refresher brings the tokens of a workflow's connections up to date.
type Refresher interface {
	RefreshWorkflow(ctx context.Context, workflowID core.ID) (*integration.RefreshReport, error)
}

// Runtime is the downstream service that executes compiled workflows.
type Runtime interface {
	Dispatch(ctx context.Context, artifacts *compiler.Artifacts) error
	Cancel(ctx context.Context, workflowID core.ID) error
}

type CompileOutput struct {
	Status     bool                       `json:"status"`
	WorkflowID core.ID                    `json:"workflow_id"`
	Agents     int                        `json:"agents"`
	Tasks      int                        `json:"tasks"`
	Tools      int                        `json:"tools"`
	Refresh    *integration.RefreshReport `json:"refresh,omitempty"`
}

// CompileWorkflow refreshes credentials, assembles the runtime documents
// from the stored graph and hands them to the runtime.
type CompileWorkflow struct {
	repo      workflow.Repository
	refresher Refresher
	assembler *compiler.Assembler
	runtime   Runtime
	metrics   workflow.Metrics
	id        core.ID
}

func NewCompileWorkflow(
	repo workflow.Repository,
	refresher Refresher,
	assembler *compiler.Assembler,
	runtime Runtime,
	metrics workflow.Metrics,
	id core.ID,
) *CompileWorkflow {
	if metrics == nil {
		metrics = workflow.NopMetrics{}
	}
	return &CompileWorkflow{
		repo:      repo,
		refresher: refresher,
		assembler: assembler,
		runtime:   runtime,
		metrics:   metrics,
		id:        id,
	}
}

func (uc *CompileWorkflow) Execute(ctx context.Context) (out *CompileOutput, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(workflow.KindOf(err))
		}
		uc.metrics.RecordCompile(ctx, outcome, time.Since(start))
	}()
	log := logger.FromContext(ctx).With("workflow_id", uc.id)
	if _, err := uc.repo.GetWorkflow(ctx, uc.id); err != nil {
		if errors.Is(err, workflow.ErrWorkflowNotFound) {
			return nil, workflow.NewCompileError(workflow.KindInvalid, "workflow not found", err)
		}
		return nil, workflow.NewCompileError(workflow.KindTransient, "failed to read workflow", err)
	}
	report, err := uc.refresher.RefreshWorkflow(ctx, uc.id)
	if err != nil {
		return nil, workflow.NewCompileError(workflow.KindTransient, "failed to refresh integration tokens", err)
	}
	if err := checkRefresh(log, report); err != nil {
		return nil, err
	}
	artifacts, err := uc.assemble(ctx)
	if err != nil {
		return nil, err
	}
	if err := uc.runtime.Dispatch(ctx, artifacts); err != nil {
		return nil, workflow.NewCompileError(workflow.KindTransient, "failed to dispatch to runtime", err)
	}
	out = &CompileOutput{
		Status:     true,
		WorkflowID: uc.id,
		Agents:     artifacts.Agents.Agents.Len(),
		Tasks:      artifacts.Tasks.Tasks.Len(),
		Tools:      len(artifacts.Config.ToolInput),
		Refresh:    report,
	}
	log.Info("Workflow compiled", "agents", out.Agents, "tasks", out.Tasks, "tools", out.Tools)
	return out, nil
}

// checkRefresh fails the compile when a connection needs the user, or when a
// retryable failure left a connection without a usable token. Failures on a
// token that is still valid are only logged.
func checkRefresh(log logger.Logger, report *integration.RefreshReport) error {
	var reauth []core.ID
	for _, r := range report.With(integration.OutcomeReauthRequired) {
		reauth = append(reauth, r.ConnectionID)
	}
	if len(reauth) > 0 {
		return &workflow.CompileError{
			Kind:          workflow.KindNeedsReauth,
			Message:       "integrations need to be re-authorized",
			ConnectionIDs: connectionIDs(reauth),
		}
	}
	var expired []core.ID
	for _, r := range report.With(integration.OutcomeTransient) {
		if r.Expired {
			expired = append(expired, r.ConnectionID)
			continue
		}
		log.Warn("Token refresh failed, using current token", "connection_id", r.ConnectionID, "error", r.Error)
	}
	if len(expired) > 0 {
		return &workflow.CompileError{
			Kind:          workflow.KindTransient,
			Message:       "could not refresh expired tokens",
			ConnectionIDs: connectionIDs(expired),
		}
	}
	return nil
}

func (uc *CompileWorkflow) assemble(ctx context.Context) (*compiler.Artifacts, error) {
	stored, err := uc.repo.LoadGraph(ctx, uc.id)
	if err != nil {
		if errors.Is(err, workflow.ErrWorkflowNotFound) {
			return nil, workflow.NewCompileError(workflow.KindInvalid, "workflow not found", err)
		}
		return nil, workflow.NewCompileError(workflow.KindTransient, "failed to load workflow", err)
	}
	creds, err := uc.repo.ListCredentials(ctx, uc.id)
	if err != nil {
		return nil, workflow.NewCompileError(workflow.KindTransient, "failed to load credentials", err)
	}
	snap, err := buildSnapshot(stored, creds)
	if err != nil {
		return nil, workflow.NewCompileError(workflow.KindInvalid, "stored workflow cannot be compiled", err)
	}
	artifacts, err := uc.assembler.Assemble(ctx, snap)
	if err != nil {
		return nil, workflow.NewCompileError(workflow.KindTransient, "failed to assemble workflow", err)
	}
	return artifacts, nil
}
