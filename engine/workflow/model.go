package workflow

import (
	"encoding/json"
	"time"

	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/graph"
)

// Workflow is the stored header of a workflow graph.
type Workflow struct {
	ID            core.ID   `db:"id"             json:"id"`
	Name          string    `db:"name"           json:"name"`
	MemoryEnabled bool      `db:"memory_enabled" json:"memory_enabled"`
	AgentType     string    `db:"agent_type"     json:"agent_type"`
	ExecType      string    `db:"exec_type"      json:"exec_type"`
	CreatedBy     *string   `db:"created_by"     json:"created_by,omitempty"`
	CreatedAt     time.Time `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"     json:"updated_at"`
}

// Summary is one entry of a workflow listing.
type Summary struct {
	ID        core.ID   `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	ExecType  string    `db:"exec_type"  json:"exec_type"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type ListFilter struct {
	CreatedBy string
	// After is the id of the last summary of the previous page.
	After core.ID
	Limit int
}

// AuxNode is a start or terminal node. They have no table of their own and
// are kept with the workflow so the editor gets them back on load.
type AuxNode struct {
	SortIndex int        `json:"sort_index"`
	Node      graph.Node `json:"node"`
}

// Layout is the part of a workflow stored as JSON documents.
type Layout struct {
	Edges    []graph.Edge `json:"edges"`
	AuxNodes []AuxNode    `json:"aux_nodes"`
}

// StoredGraph is everything persisted for one workflow.
type StoredGraph struct {
	Workflow *Workflow
	Layout   *Layout
	Agents   []AgentRecord
	Models   map[core.ID]ModelRecord
	Tools    []ToolRecord
	Tasks    []TaskRecord
}

// SaveResult tells the editor which durable id replaced each ephemeral id.
type SaveResult struct {
	WorkflowID core.ID           `json:"workflow_id"`
	IDMap      map[string]string `json:"id_map"`
}

func marshalJSONB(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}
