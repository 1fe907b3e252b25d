package uc

import (
	"context"
	"time"

	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/graph"
	"github.com/captep/studio/engine/workflow"
)

type LoadOutput struct {
	ID        core.ID   `json:"id"`
	CreatedBy *string   `json:"created_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	*graph.Document
}

// LoadWorkflow returns a saved workflow in the shape the editor saved it.
type LoadWorkflow struct {
	repo workflow.Repository
	id   core.ID
}

func NewLoadWorkflow(repo workflow.Repository, id core.ID) *LoadWorkflow {
	return &LoadWorkflow{repo: repo, id: id}
}

func (uc *LoadWorkflow) Execute(ctx context.Context) (*LoadOutput, error) {
	stored, err := uc.repo.LoadGraph(ctx, uc.id)
	if err != nil {
		return nil, err
	}
	doc, err := assembleDocument(stored, workflow.DisplayLLMSettings())
	if err != nil {
		return nil, err
	}
	return &LoadOutput{
		ID:        stored.Workflow.ID,
		CreatedBy: stored.Workflow.CreatedBy,
		UpdatedAt: stored.Workflow.UpdatedAt,
		Document:  doc,
	}, nil
}
