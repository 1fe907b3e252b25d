package graph

import (
	"encoding/json"
	"fmt"
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Node struct {
	ID       string
	Kind     NodeKind
	Position Position
	Data     NodeData
}

func (n Node) Agent() *AgentData {
	a, _ := n.Data.(*AgentData)
	return a
}

func (n Node) Tool() *ToolData {
	t, _ := n.Data.(*ToolData)
	return t
}

func (n Node) Task() *TaskData {
	t, _ := n.Data.(*TaskData)
	return t
}

type nodeJSON struct {
	ID       string          `json:"id"`
	NodeType string          `json:"nodeType"`
	Position Position        `json:"position"`
	Data     json.RawMessage `json:"data"`
}

func (n Node) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data of node %s: %w", n.ID, err)
	}
	return json.Marshal(nodeJSON{ID: n.ID, NodeType: n.Kind.NodeType(), Position: n.Position, Data: data})
}

func (n *Node) UnmarshalJSON(b []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	kind, err := ParseNodeType(raw.NodeType)
	if err != nil {
		return err
	}
	data, err := DecodeData(kind, raw.Data)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}
	*n = Node{ID: raw.ID, Kind: kind, Position: raw.Position, Data: data}
	return nil
}

const (
	DefaultSourceHandle = "output"
	DefaultTargetHandle = "input"
)

type Edge struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle"`
	TargetHandle string `json:"targetHandle"`
}

func (e Edge) withDefaults() Edge {
	if e.SourceHandle == "" {
		e.SourceHandle = DefaultSourceHandle
	}
	if e.TargetHandle == "" {
		e.TargetHandle = DefaultTargetHandle
	}
	return e
}

// Rewrite maps both endpoints through ids. Unmapped endpoints are kept.
func (e Edge) Rewrite(ids map[string]string) Edge {
	if to, ok := ids[e.Source]; ok {
		e.Source = to
	}
	if to, ok := ids[e.Target]; ok {
		e.Target = to
	}
	return e
}
