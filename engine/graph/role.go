package graph

import (
	"cmp"
	"slices"
	"strings"
)

// AgentRole ranks agents for ordering and manager selection.
type AgentRole int

const (
	RoleSupervisor AgentRole = 1
	RoleAssistant  AgentRole = 2
	RoleUnranked   AgentRole = 99
)

const (
	serviceSupervisor = "supervisor agent"
	serviceAssistant  = "assistant agent"
)

// ExecSequential workflows run their tasks in order and have no manager agent.
const ExecSequential = "sequential"

func ParseRole(service string) AgentRole {
	switch strings.ToLower(strings.TrimSpace(service)) {
	case serviceSupervisor:
		return RoleSupervisor
	case serviceAssistant:
		return RoleAssistant
	default:
		return RoleUnranked
	}
}

func (r AgentRole) String() string {
	switch r {
	case RoleSupervisor:
		return serviceSupervisor
	case RoleAssistant:
		return serviceAssistant
	default:
		return "unranked"
	}
}

// OrderAgents returns the agent nodes of nodes sorted by role rank. Ties keep
// their input order. Non-agent nodes are left out.
func OrderAgents(nodes []Node) []Node {
	agents := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Kind == KindAgent {
			agents = append(agents, n)
		}
	}
	slices.SortStableFunc(agents, func(a, b Node) int {
		return cmp.Compare(a.Agent().Role(), b.Agent().Role())
	})
	return agents
}

// SelectManager picks the coordinating agent for non-sequential execution.
// An agent flagged as manager wins over the ordering winner.
func SelectManager(execType string, ordered []Node) (Node, bool) {
	if strings.EqualFold(strings.TrimSpace(execType), ExecSequential) || len(ordered) == 0 {
		return Node{}, false
	}
	for _, n := range ordered {
		if a := n.Agent(); a != nil && a.Manager {
			return n, true
		}
	}
	return ordered[0], true
}
