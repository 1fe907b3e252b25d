package graph

// UnknownAgent is emitted as the owner of a task no agent reaches.
const UnknownAgent = "Unknown Agent"

// ResolveTaskOwner finds the agent that owns a task from adjacency alone.
// An agent feeding the task directly wins. Otherwise edges into the task's
// feeders are scanned in graph order. The search stops at two hops.
func ResolveTaskOwner(m *Model, taskID string) (Node, bool) {
	if agent, ok := m.DirectAgentSource(taskID); ok {
		return agent, true
	}
	feeders := make(map[string]struct{})
	for _, e := range m.Incoming(taskID) {
		feeders[e.Source] = struct{}{}
	}
	if len(feeders) == 0 {
		return Node{}, false
	}
	for _, e := range m.edges {
		if _, ok := feeders[e.Target]; !ok {
			continue
		}
		if n, ok := m.Node(e.Source); ok && n.Kind == KindAgent {
			return n, true
		}
	}
	return Node{}, false
}
