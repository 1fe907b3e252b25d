package graph

import "strings"

const DefaultAgentType = "react"

// Document is the graph as the editor saves and loads it.
type Document struct {
	Name          string `json:"name"`
	MemoryEnabled bool   `json:"memoryEnabled"`
	AgentType     string `json:"agentType"`
	ExecutionType string `json:"executionType"`
	Nodes         []Node `json:"nodes"`
	Edges         []Edge `json:"edges"`
}

// Normalize fills document level defaults.
func (d *Document) Normalize() {
	d.Name = strings.TrimSpace(d.Name)
	if d.AgentType == "" {
		d.AgentType = DefaultAgentType
	}
	if d.ExecutionType == "" {
		d.ExecutionType = ExecSequential
	}
	if d.Nodes == nil {
		d.Nodes = []Node{}
	}
	if d.Edges == nil {
		d.Edges = []Edge{}
	}
}

func (d *Document) Model() (*Model, error) {
	return New(d.Nodes, d.Edges)
}
