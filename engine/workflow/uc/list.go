package uc

import (
	"context"
	"strings"

	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/workflow"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type ListInput struct {
	CreatedBy string
	After     core.ID
	Limit     int
}

type ListOutput struct {
	Items []workflow.Summary
	// Next is the cursor value of the following page, empty on the last one.
	Next core.ID
}

type ListWorkflows struct {
	repo  workflow.Repository
	input *ListInput
}

func NewListWorkflows(repo workflow.Repository, input *ListInput) *ListWorkflows {
	return &ListWorkflows{repo: repo, input: input}
}

func (uc *ListWorkflows) Execute(ctx context.Context) (*ListOutput, error) {
	limit := uc.input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	items, err := uc.repo.ListWorkflows(ctx, &workflow.ListFilter{
		CreatedBy: strings.TrimSpace(uc.input.CreatedBy),
		After:     uc.input.After,
		Limit:     limit + 1,
	})
	if err != nil {
		return nil, err
	}
	out := &ListOutput{Items: items}
	if len(items) > limit {
		out.Items = items[:limit]
		out.Next = out.Items[limit-1].ID
	}
	if out.Items == nil {
		out.Items = []workflow.Summary{}
	}
	return out, nil
}
