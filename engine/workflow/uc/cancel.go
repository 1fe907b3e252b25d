package uc

import (
	"context"
	"errors"

	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/runtime"
	"github.com/captep/studio/engine/workflow"
	"github.com/captep/studio/pkg/logger"
)

// CancelWorkflow asks the runtime to stop a running workflow.
type CancelWorkflow struct {
	repo    workflow.Repository
	runtime Runtime
	id      core.ID
}

func NewCancelWorkflow(repo workflow.Repository, runtime Runtime, id core.ID) *CancelWorkflow {
	return &CancelWorkflow{repo: repo, runtime: runtime, id: id}
}

func (uc *CancelWorkflow) Execute(ctx context.Context) error {
	if _, err := uc.repo.GetWorkflow(ctx, uc.id); err != nil {
		return err
	}
	if err := uc.runtime.Cancel(ctx, uc.id); err != nil {
		if errors.Is(err, runtime.ErrCancelUnsupported) {
			return err
		}
		return workflow.NewCompileError(workflow.KindTransient, "failed to cancel workflow", err)
	}
	logger.FromContext(ctx).Info("Workflow cancel requested", "workflow_id", uc.id)
	return nil
}
