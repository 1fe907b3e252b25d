package uc

import (
	"fmt"
	"slices"

	"github.com/captep/studio/engine/compiler"
	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/graph"
	"github.com/captep/studio/engine/workflow"
)

type indexedNode struct {
	index int
	node  graph.Node
}

// assembleDocument rebuilds the editor document from stored rows. Agents
// without a model record get fallback as their LLM settings.
func assembleDocument(stored *workflow.StoredGraph, fallback graph.LLMSettings) (*graph.Document, error) {
	wf := stored.Workflow
	var nodes []indexedNode
	for i := range stored.Agents {
		rec := &stored.Agents[i]
		llm := fallback
		if m, ok := stored.Models[rec.ID]; ok {
			llm = m.Settings()
		}
		n, err := rec.Node(llm)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, indexedNode{rec.SortIndex, n})
	}
	for i := range stored.Tools {
		rec := &stored.Tools[i]
		n, err := rec.Node()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, indexedNode{rec.SortIndex, n})
	}
	for i := range stored.Tasks {
		nodes = append(nodes, indexedNode{stored.Tasks[i].SortIndex, stored.Tasks[i].Node()})
	}
	edges := []graph.Edge{}
	if stored.Layout != nil {
		for _, aux := range stored.Layout.AuxNodes {
			nodes = append(nodes, indexedNode{aux.SortIndex, aux.Node})
		}
		if stored.Layout.Edges != nil {
			edges = stored.Layout.Edges
		}
	}
	slices.SortStableFunc(nodes, func(a, b indexedNode) int { return a.index - b.index })
	doc := &graph.Document{
		Name:          wf.Name,
		MemoryEnabled: wf.MemoryEnabled,
		AgentType:     wf.AgentType,
		ExecutionType: wf.ExecType,
		Nodes:         make([]graph.Node, 0, len(nodes)),
		Edges:         edges,
	}
	for _, n := range nodes {
		doc.Nodes = append(doc.Nodes, n.node)
	}
	doc.Normalize()
	return doc, nil
}

// buildSnapshot turns stored rows and the workflow's connections into the
// compiler input. Agents without a model record compile with an empty
// provider and model.
func buildSnapshot(stored *workflow.StoredGraph, creds []compiler.Credential) (*compiler.Snapshot, error) {
	doc, err := assembleDocument(stored, graph.DefaultLLMSettings())
	if err != nil {
		return nil, err
	}
	model, err := doc.Model()
	if err != nil {
		return nil, fmt.Errorf("stored graph of workflow %s is inconsistent: %w", stored.Workflow.ID, err)
	}
	owners := make(map[string]string, len(stored.Tools))
	for _, t := range stored.Tools {
		if t.AgentID != nil {
			owners[t.ID.String()] = t.AgentID.String()
		}
	}
	credentials := make(map[string]compiler.Credential, len(creds))
	for _, c := range creds {
		credentials[c.ConnectionID] = c
	}
	return &compiler.Snapshot{
		WorkflowID:    stored.Workflow.ID.String(),
		Name:          doc.Name,
		MemoryEnabled: doc.MemoryEnabled,
		ExecType:      doc.ExecutionType,
		Graph:         model,
		ToolOwners:    owners,
		Credentials:   credentials,
	}, nil
}

func connectionIDs(results []core.ID) []core.ID {
	out := slices.Clone(results)
	slices.Sort(out)
	return slices.Compact(out)
}
