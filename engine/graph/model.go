package graph

import "fmt"

// Model is an immutable view over one version of a workflow graph.
type Model struct {
	nodes    []Node
	index    map[string]int
	edges    []Edge
	dropped  []Edge
	incoming map[string][]Edge
	outgoing map[string][]Edge
}

// New builds a Model. Edges that reference a node outside of nodes are
// dropped and reported by Dropped.
func New(nodes []Node, edges []Edge) (*Model, error) {
	m := &Model{
		nodes:    make([]Node, len(nodes)),
		index:    make(map[string]int, len(nodes)),
		incoming: make(map[string][]Edge),
		outgoing: make(map[string][]Edge),
	}
	copy(m.nodes, nodes)
	for i, n := range m.nodes {
		if _, dup := m.index[n.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
		}
		m.index[n.ID] = i
	}
	for _, e := range edges {
		e = e.withDefaults()
		_, okSource := m.index[e.Source]
		_, okTarget := m.index[e.Target]
		if !okSource || !okTarget {
			m.dropped = append(m.dropped, e)
			continue
		}
		m.edges = append(m.edges, e)
		m.outgoing[e.Source] = append(m.outgoing[e.Source], e)
		m.incoming[e.Target] = append(m.incoming[e.Target], e)
	}
	return m, nil
}

func (m *Model) Nodes() []Node {
	out := make([]Node, len(m.nodes))
	copy(out, m.nodes)
	return out
}

func (m *Model) Edges() []Edge {
	out := make([]Edge, len(m.edges))
	copy(out, m.edges)
	return out
}

func (m *Model) Dropped() []Edge {
	return m.dropped
}

func (m *Model) Node(id string) (Node, bool) {
	i, ok := m.index[id]
	if !ok {
		return Node{}, false
	}
	return m.nodes[i], true
}

func (m *Model) OfKind(kind NodeKind) []Node {
	var out []Node
	for _, n := range m.nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (m *Model) Agents() []Node { return m.OfKind(KindAgent) }
func (m *Model) Tools() []Node  { return m.OfKind(KindTool) }
func (m *Model) Tasks() []Node  { return m.OfKind(KindTask) }

func (m *Model) Incoming(id string) []Edge { return m.incoming[id] }
func (m *Model) Outgoing(id string) []Edge { return m.outgoing[id] }

// DirectAgentSource returns the first agent with an edge into id.
func (m *Model) DirectAgentSource(id string) (Node, bool) {
	for _, e := range m.incoming[id] {
		if n, ok := m.Node(e.Source); ok && n.Kind == KindAgent {
			return n, true
		}
	}
	return Node{}, false
}
