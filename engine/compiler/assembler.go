package compiler

import (
	"context"
	"strings"
	"unicode"

	"github.com/captep/studio/engine/graph"
	"github.com/captep/studio/pkg/logger"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	inputOperation       = "operation"
	inputToolDescription = "tool_description"
	credAccessToken      = "access_token"
	credInstanceURL      = "instance_url"
)

// Assembler builds the runtime documents for a workflow snapshot.
type Assembler struct {
	resolver *ToolBindingResolver
}

func NewAssembler(resolver *ToolBindingResolver) *Assembler {
	return &Assembler{resolver: resolver}
}

func (a *Assembler) Assemble(ctx context.Context, snap *Snapshot) (*Artifacts, error) {
	log := logger.FromContext(ctx).With("workflow_id", snap.WorkflowID)
	for _, e := range snap.Graph.Dropped() {
		log.Warn("Dropping dangling edge", "source", e.Source, "target", e.Target)
	}
	ordered := graph.OrderAgents(snap.Graph.Nodes())
	agentNames := make(map[string]string, len(ordered))
	for _, n := range ordered {
		agentNames[n.ID] = n.Agent().Name
	}
	config := &ExecutionConfig{
		WorkflowID:       snap.WorkflowID,
		ClassName:        ClassName(snap.Name),
		MemoryEnabled:    snap.MemoryEnabled,
		ExecType:         snap.ExecType,
		ToolInput:        []string{},
		ToolAgentMapping: orderedmap.New[string, []string](),
		ToolParams:       orderedmap.New[string, ToolParams](),
		EnvDatas:         orderedmap.New[string, EnvData](),
	}
	if manager, ok := graph.SelectManager(snap.ExecType, ordered); ok {
		name := manager.Agent().Name
		config.ManagerAgent = &name
	}
	if err := a.bindTools(ctx, log, snap, ordered, agentNames, config); err != nil {
		return nil, err
	}
	for _, n := range ordered {
		config.EnvDatas.Set(n.Agent().Name, envData(n.Agent()))
	}
	return &Artifacts{
		Agents: buildAgentMap(log, snap.WorkflowID, ordered),
		Tasks:  buildTaskMap(log, snap, agentNames),
		Config: config,
	}, nil
}

func buildAgentMap(log logger.Logger, workflowID string, ordered []graph.Node) *AgentMap {
	agents := orderedmap.New[string, AgentDefinition]()
	for _, n := range ordered {
		a := n.Agent()
		if _, dup := agents.Set(a.Name, AgentDefinition{
			Role:      a.RoleText,
			Goal:      a.Goal,
			Backstory: a.Backstory,
			Tuning:    a.Tuning,
		}); dup {
			log.Warn("Duplicate agent name, later agent wins", "agent", a.Name, "agent_id", n.ID)
		}
	}
	return &AgentMap{WorkflowID: workflowID, Agents: agents}
}

func buildTaskMap(log logger.Logger, snap *Snapshot, agentNames map[string]string) *TaskMap {
	tasks := orderedmap.New[string, TaskDefinition]()
	for _, n := range snap.Graph.Tasks() {
		t := n.Task()
		owner := graph.UnknownAgent
		if agent, ok := graph.ResolveTaskOwner(snap.Graph, n.ID); ok {
			owner = agentNames[agent.ID]
		} else {
			log.Warn("Task has no agent within two hops", "task", t.Name, "task_id", n.ID)
		}
		if _, dup := tasks.Set(t.Name, TaskDefinition{
			Description:         t.Description,
			ExpectedOutput:      t.ExpectedOutput,
			AsyncExecution:      t.AsyncExecution,
			HumanInput:          t.HumanInput,
			Markdown:            t.Markdown,
			GuardrailMaxRetries: t.GuardrailMaxRetries,
			Agent:               owner,
		}); dup {
			log.Warn("Duplicate task name, later task wins", "task", t.Name, "task_id", n.ID)
		}
	}
	return &TaskMap{WorkflowID: snap.WorkflowID, Tasks: tasks}
}

// bindTools fills tool_agent_mapping, tool_params and tool_input. Both the
// mapping and the params go through resolveTool so they always agree.
func (a *Assembler) bindTools(
	ctx context.Context,
	log logger.Logger,
	snap *Snapshot,
	ordered []graph.Node,
	agentNames map[string]string,
	config *ExecutionConfig,
) error {
	byAgent := make(map[string][]graph.Node)
	for _, n := range snap.Graph.Tools() {
		owner := snap.ToolOwners[n.ID]
		if owner == "" {
			if agent, ok := snap.Graph.DirectAgentSource(n.ID); ok {
				owner = agent.ID
			}
		}
		if _, ok := agentNames[owner]; !ok {
			log.Warn("Tool is not attached to an agent", "tool_id", n.ID)
			continue
		}
		byAgent[owner] = append(byAgent[owner], n)
	}
	seen := make(map[string]struct{})
	for _, agent := range ordered {
		var ids []string
		for _, n := range byAgent[agent.ID] {
			tool := n.Tool()
			cred, ok := snap.Credentials[tool.OAuth.ID]
			if !ok {
				log.Warn("Tool has no OAuth connection, skipping", "tool_id", n.ID, "service", tool.Service)
				continue
			}
			id, err := a.resolveTool(ctx, tool, cred)
			if err != nil {
				return err
			}
			ids = append(ids, id)
			config.ToolParams.Set(id, toolParams(tool, cred))
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				config.ToolInput = append(config.ToolInput, id)
			}
		}
		if len(ids) > 0 {
			config.ToolAgentMapping.Set(agentNames[agent.ID], ids)
		}
	}
	return nil
}

func (a *Assembler) resolveTool(ctx context.Context, tool *graph.ToolData, cred Credential) (string, error) {
	return a.resolver.Resolve(ctx, tool.SelectedObject, cred.CustomToolID)
}

func toolParams(tool *graph.ToolData, cred Credential) ToolParams {
	creds := orderedmap.New[string, string]()
	if cred.AccessToken != "" {
		creds.Set(credAccessToken, cred.AccessToken)
	}
	if cred.InstanceURL != "" {
		creds.Set(credInstanceURL, cred.InstanceURL)
	}
	inputs := orderedmap.New[string, string]()
	inputs.Set(inputOperation, tool.ToolAction)
	inputs.Set(inputToolDescription, tool.Description)
	for _, f := range tool.InputFields {
		if f.Name == "" {
			continue
		}
		inputs.Set(f.Name, f.Value.Flatten())
	}
	return ToolParams{Credentials: creds, UserInputs: inputs}
}

func envData(a *graph.AgentData) EnvData {
	return EnvData{
		LLM:                 true,
		Tool:                false,
		APIKey:              a.APIKey,
		Model:               a.Model,
		Provider:            a.Provider,
		Temperature:         a.Temperature,
		MaxCompletionTokens: a.MaxTokens,
		TopP:                a.TopP,
		Stream:              false,
	}
}

// ClassName derives a PascalCase class name from a workflow name,
// e.g. "lead follow-up v2" -> "LeadFollowUpV2".
func ClassName(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, w := range words {
		runes := []rune(w)
		b.WriteRune(unicode.ToUpper(runes[0]))
		b.WriteString(string(runes[1:]))
	}
	out := b.String()
	if out == "" || unicode.IsDigit([]rune(out)[0]) {
		out = "Workflow" + out
	}
	return out
}
