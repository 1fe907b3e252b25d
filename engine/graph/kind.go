package graph

import (
	"fmt"
	"regexp"
)

// NodeKind identifies the role a node plays in a workflow graph.
type NodeKind string

const (
	KindStart    NodeKind = "start"
	KindAgent    NodeKind = "agent"
	KindTool     NodeKind = "tool"
	KindTask     NodeKind = "task"
	KindTerminal NodeKind = "terminal"
)

// Wire names used by the editor's persisted document.
const (
	nodeTypeStart    = "start node"
	nodeTypeAgent    = "agent node"
	nodeTypeTool     = "tool node"
	nodeTypeTask     = "task node"
	nodeTypeTerminal = "term node"
)

func (k NodeKind) NodeType() string {
	switch k {
	case KindStart:
		return nodeTypeStart
	case KindAgent:
		return nodeTypeAgent
	case KindTool:
		return nodeTypeTool
	case KindTask:
		return nodeTypeTask
	case KindTerminal:
		return nodeTypeTerminal
	default:
		return "unknown node"
	}
}

func ParseNodeType(s string) (NodeKind, error) {
	switch s {
	case nodeTypeStart:
		return KindStart, nil
	case nodeTypeAgent:
		return KindAgent, nil
	case nodeTypeTool:
		return KindTool, nil
	case nodeTypeTask:
		return KindTask, nil
	case nodeTypeTerminal:
		return KindTerminal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownNodeType, s)
	}
}

// Client-side ids look like "agent-1712345678901". Durable ids are KSUIDs and
// never contain a dash.
var ephemeralPattern = regexp.MustCompile(`^(?:start|agent|tool|task|term)-\d`)

// IsEphemeral reports whether id was minted by the editor and has not been
// persisted yet. An empty id is treated as ephemeral.
func IsEphemeral(id string) bool {
	return id == "" || ephemeralPattern.MatchString(id)
}
