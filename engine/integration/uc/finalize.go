package uc

import (
	"context"
	"strings"

	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/integration"
	"github.com/captep/studio/pkg/logger"
)

type FinalizeInput struct {
	ID        core.ID `json:"id"         binding:"required"`
	Name      string  `json:"name"       binding:"required"`
	CreatedBy string  `json:"created_by"`
}

// FinalizeConnection labels a freshly created connection and records its owner.
type FinalizeConnection struct {
	repo  integration.Repository
	input *FinalizeInput
}

func NewFinalizeConnection(repo integration.Repository, input *FinalizeInput) *FinalizeConnection {
	return &FinalizeConnection{repo: repo, input: input}
}

func (uc *FinalizeConnection) Execute(ctx context.Context) (*integration.Connection, error) {
	conn, err := uc.repo.FinalizeConnection(
		ctx,
		uc.input.ID,
		strings.TrimSpace(uc.input.Name),
		strings.TrimSpace(uc.input.CreatedBy),
	)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("OAuth connection finalized", "connection_id", conn.ID)
	return conn, nil
}
