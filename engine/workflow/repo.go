package workflow

import (
	"context"

	"github.com/captep/studio/engine/compiler"
	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/graph"
)

// Repository persists workflows and the rows their graph nodes map to.
type Repository interface {
	// WithTx runs fn in one transaction. Any error returned by fn rolls the
	// whole save back.
	WithTx(ctx context.Context, fn func(ctx context.Context, w GraphWriter) error) error
	GetWorkflow(ctx context.Context, id core.ID) (*Workflow, error)
	ListWorkflows(ctx context.Context, filter *ListFilter) ([]Summary, error)
	LoadGraph(ctx context.Context, id core.ID) (*StoredGraph, error)
	// ListCredentials returns the connections bound to the workflow's tools.
	ListCredentials(ctx context.Context, workflowID core.ID) ([]compiler.Credential, error)
}

// GraphWriter is the transactional side of Repository used by save.
type GraphWriter interface {
	InsertWorkflow(ctx context.Context, wf *Workflow) error
	// UpdateWorkflow returns ErrWorkflowNotFound when no row matches.
	UpdateWorkflow(ctx context.Context, wf *Workflow) error
	// ExistingIDs returns the durable row ids of the workflow by kind.
	ExistingIDs(ctx context.Context, workflowID core.ID) (map[core.ID]graph.NodeKind, error)
	UpsertAgent(ctx context.Context, rec *AgentRecord) error
	UpsertAgentModel(ctx context.Context, rec *ModelRecord) error
	UpsertTool(ctx context.Context, rec *ToolRecord) error
	UpsertTask(ctx context.Context, rec *TaskRecord) error
	// DeleteOrphans removes rows of kind in the workflow whose id is not kept.
	DeleteOrphans(ctx context.Context, workflowID core.ID, kind graph.NodeKind, keep []core.ID) (int64, error)
	SaveLayout(ctx context.Context, workflowID core.ID, layout *Layout) error
}
