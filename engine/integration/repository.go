package integration

import (
	"context"

	"github.com/captep/studio/engine/core"
)

// Repository is the persistence port of the OAuth domain.
type Repository interface {
	// GetProvider looks a provider up by custom tool id or, case-insensitively,
	// by name. Returns ErrProviderNotFound.
	GetProvider(ctx context.Context, platform string) (*Provider, error)
	CreateConnection(ctx context.Context, conn *Connection) error
	GetConnection(ctx context.Context, id core.ID) (*Connection, error)
	FinalizeConnection(ctx context.Context, id core.ID, name, createdBy string) (*Connection, error)
	// ListRefreshCandidates returns the distinct refreshable connections
	// referenced by the tools of a workflow.
	ListRefreshCandidates(ctx context.Context, workflowID core.ID) ([]*RefreshCandidate, error)
	UpdateTokens(ctx context.Context, id core.ID, grant *Grant) error
	// MarkReauthRequired forces the stored expiry into the past.
	MarkReauthRequired(ctx context.Context, id core.ID) error
}
