package wfrouter

import (
	"github.com/captep/studio/engine/graph"
	"github.com/captep/studio/engine/workflow"
)

// SaveRequest is the editor document plus the caller-supplied owner.
type SaveRequest struct {
	graph.Document
	CreatedBy string `json:"created_by"`
}

type WorkflowsListResponse struct {
	Workflows  []workflow.Summary `json:"workflows"`
	NextCursor string             `json:"next_cursor,omitempty"`
}
