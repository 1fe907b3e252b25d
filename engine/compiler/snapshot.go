package compiler

import "github.com/captep/studio/engine/graph"

// Credential is the token material of an OAuth connection a tool is bound to.
type Credential struct {
	ConnectionID string `db:"id"`
	CustomToolID string `db:"custom_tool_id"`
	AccessToken  string `db:"access_token"`
	InstanceURL  string `db:"instance_url"`
}

// Snapshot is a persisted workflow read back for compilation. Graph nodes
// carry durable ids; agent LLM settings come from their Model record and are
// empty when the agent has none.
type Snapshot struct {
	WorkflowID    string
	Name          string
	MemoryEnabled bool
	ExecType      string
	Graph         *graph.Model
	// ToolOwners maps a tool id to its owning agent id as stored.
	ToolOwners map[string]string
	// Credentials are keyed by connection id.
	Credentials map[string]Credential
}
