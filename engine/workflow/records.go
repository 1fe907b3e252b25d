package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/graph"
)

// Load-time LLM defaults for agents saved without a model record.
const (
	DefaultProvider = "google"
	DefaultModel    = "gemini-1.5-flash"
)

func DisplayLLMSettings() graph.LLMSettings {
	s := graph.DefaultLLMSettings()
	s.Provider = DefaultProvider
	s.Model = DefaultModel
	return s
}

type AgentRecord struct {
	ID            core.ID  `db:"id"`
	WorkflowID    core.ID  `db:"workflow_id"`
	ParentAgentID *core.ID `db:"parent_agent_id"`
	SortIndex     int      `db:"sort_index"`
	PositionX     float64  `db:"position_x"`
	PositionY     float64  `db:"position_y"`
	Name          string   `db:"name"`
	Description   string   `db:"description"`
	Service       string   `db:"service"`
	Manager       bool     `db:"manager"`
	Role          string   `db:"role"`
	Goal          string   `db:"goal"`
	Backstory     string   `db:"backstory"`
	SystemPrompt  string   `db:"system_prompt"`
	Tuning        []byte   `db:"tuning"`
}

// ModelRecord is the LLM identity of an agent, one per agent.
type ModelRecord struct {
	AgentID     core.ID `db:"agent_id"`
	Provider    string  `db:"provider"`
	Model       string  `db:"model"`
	APIKey      string  `db:"api_key"`
	Temperature float64 `db:"temperature"`
	MaxTokens   int     `db:"max_tokens"`
	TopP        float64 `db:"top_p"`
}

type ToolRecord struct {
	ID                  core.ID  `db:"id"`
	WorkflowID          core.ID  `db:"workflow_id"`
	AgentID             *core.ID `db:"agent_id"`
	SortIndex           int      `db:"sort_index"`
	PositionX           float64  `db:"position_x"`
	PositionY           float64  `db:"position_y"`
	Service             string   `db:"service"`
	Connected           bool     `db:"connected"`
	Object              string   `db:"object"`
	Operation           string   `db:"operation"`
	ToolName            string   `db:"tool_name"`
	Description         string   `db:"description"`
	Inputs              []byte   `db:"inputs"`
	OAuthID             *string  `db:"oauth_id"`
	OAuthConnectionName *string  `db:"oauth_connection_name"`
	BaseToolID          *string  `db:"base_tool_id"`
}

type TaskRecord struct {
	ID                  core.ID  `db:"id"`
	WorkflowID          core.ID  `db:"workflow_id"`
	AgentID             *core.ID `db:"agent_id"`
	SortIndex           int      `db:"sort_index"`
	PositionX           float64  `db:"position_x"`
	PositionY           float64  `db:"position_y"`
	Name                string   `db:"name"`
	Description         string   `db:"description"`
	ExpectedOutput      string   `db:"expected_output"`
	AsyncExecution      bool     `db:"async_execution"`
	HumanInput          bool     `db:"human_input"`
	Markdown            bool     `db:"markdown"`
	GuardrailMaxRetries int      `db:"guardrail_max_retries"`
}

func NewAgentRecord(workflowID core.ID, n graph.Node, sortIndex int) (*AgentRecord, error) {
	a := n.Agent()
	if a == nil {
		return nil, fmt.Errorf("%w: node %s is not an agent", graph.ErrInvalidNodeData, n.ID)
	}
	tuning, err := json.Marshal(a.Tuning)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tuning of agent %s: %w", n.ID, err)
	}
	return &AgentRecord{
		ID:           core.ID(n.ID),
		WorkflowID:   workflowID,
		SortIndex:    sortIndex,
		PositionX:    n.Position.X,
		PositionY:    n.Position.Y,
		Name:         a.Name,
		Description:  a.Description,
		Service:      a.Service,
		Manager:      a.Manager,
		Role:         a.RoleText,
		Goal:         a.Goal,
		Backstory:    a.Backstory,
		SystemPrompt: a.SystemPrompt,
		Tuning:       tuning,
	}, nil
}

func NewModelRecord(agentID core.ID, s graph.LLMSettings) *ModelRecord {
	return &ModelRecord{
		AgentID:     agentID,
		Provider:    s.Provider,
		Model:       s.Model,
		APIKey:      s.APIKey,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
		TopP:        s.TopP,
	}
}

// Settings fills zero numeric fields with the graph defaults.
func (m *ModelRecord) Settings() graph.LLMSettings {
	s := graph.LLMSettings{
		Provider:    m.Provider,
		Model:       m.Model,
		APIKey:      m.APIKey,
		Temperature: m.Temperature,
		MaxTokens:   m.MaxTokens,
		TopP:        m.TopP,
	}
	if s.Temperature == 0 {
		s.Temperature = graph.DefaultTemperature
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = graph.DefaultMaxTokens
	}
	if s.TopP == 0 {
		s.TopP = graph.DefaultTopP
	}
	return s
}

// Node rebuilds the graph node. llm is used as-is by the caller: the agent's
// model record when present, a fallback otherwise.
func (r *AgentRecord) Node(llm graph.LLMSettings) (graph.Node, error) {
	tuning := graph.DefaultTuning()
	if len(r.Tuning) > 0 {
		if err := json.Unmarshal(r.Tuning, &tuning); err != nil {
			return graph.Node{}, fmt.Errorf("failed to decode tuning of agent %s: %w", r.ID, err)
		}
	}
	return graph.Node{
		ID:       r.ID.String(),
		Kind:     graph.KindAgent,
		Position: graph.Position{X: r.PositionX, Y: r.PositionY},
		Data: &graph.AgentData{
			Name:         r.Name,
			Description:  r.Description,
			Service:      r.Service,
			Manager:      r.Manager,
			RoleText:     r.Role,
			Goal:         r.Goal,
			Backstory:    r.Backstory,
			SystemPrompt: r.SystemPrompt,
			LLMSettings:  llm,
			Tuning:       tuning,
		},
	}, nil
}

func NewToolRecord(workflowID core.ID, n graph.Node, sortIndex int, owner *core.ID) (*ToolRecord, error) {
	t := n.Tool()
	if t == nil {
		return nil, fmt.Errorf("%w: node %s is not a tool", graph.ErrInvalidNodeData, n.ID)
	}
	inputs, err := marshalJSONB(t.InputFields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inputs of tool %s: %w", n.ID, err)
	}
	return &ToolRecord{
		ID:                  core.ID(n.ID),
		WorkflowID:          workflowID,
		AgentID:             owner,
		SortIndex:           sortIndex,
		PositionX:           n.Position.X,
		PositionY:           n.Position.Y,
		Service:             t.Service,
		Connected:           t.Connected,
		Object:              t.SelectedObject,
		Operation:           t.ToolAction,
		ToolName:            t.ToolName,
		Description:         t.Description,
		Inputs:              inputs,
		OAuthID:             nonEmpty(t.OAuth.ID),
		OAuthConnectionName: nonEmpty(t.OAuth.Name),
		BaseToolID:          nonEmpty(t.BaseToolID),
	}, nil
}

func (r *ToolRecord) Node() (graph.Node, error) {
	fields := []graph.InputField{}
	if len(r.Inputs) > 0 {
		if err := json.Unmarshal(r.Inputs, &fields); err != nil {
			return graph.Node{}, fmt.Errorf("failed to decode inputs of tool %s: %w", r.ID, err)
		}
		if fields == nil {
			fields = []graph.InputField{}
		}
	}
	return graph.Node{
		ID:       r.ID.String(),
		Kind:     graph.KindTool,
		Position: graph.Position{X: r.PositionX, Y: r.PositionY},
		Data: &graph.ToolData{
			Service:        r.Service,
			Connected:      r.Connected,
			SelectedObject: r.Object,
			ToolAction:     r.Operation,
			InputFields:    fields,
			ToolName:       r.ToolName,
			Description:    r.Description,
			OAuth:          graph.ConnectionRef{ID: deref(r.OAuthID), Name: deref(r.OAuthConnectionName)},
			BaseToolID:     deref(r.BaseToolID),
		},
	}, nil
}

func NewTaskRecord(workflowID core.ID, n graph.Node, sortIndex int, owner *core.ID) (*TaskRecord, error) {
	t := n.Task()
	if t == nil {
		return nil, fmt.Errorf("%w: node %s is not a task", graph.ErrInvalidNodeData, n.ID)
	}
	return &TaskRecord{
		ID:                  core.ID(n.ID),
		WorkflowID:          workflowID,
		AgentID:             owner,
		SortIndex:           sortIndex,
		PositionX:           n.Position.X,
		PositionY:           n.Position.Y,
		Name:                t.Name,
		Description:         t.Description,
		ExpectedOutput:      t.ExpectedOutput,
		AsyncExecution:      t.AsyncExecution,
		HumanInput:          t.HumanInput,
		Markdown:            t.Markdown,
		GuardrailMaxRetries: t.GuardrailMaxRetries,
	}, nil
}

func (r *TaskRecord) Node() graph.Node {
	return graph.Node{
		ID:       r.ID.String(),
		Kind:     graph.KindTask,
		Position: graph.Position{X: r.PositionX, Y: r.PositionY},
		Data: &graph.TaskData{
			Name:                r.Name,
			Description:         r.Description,
			ExpectedOutput:      r.ExpectedOutput,
			AsyncExecution:      r.AsyncExecution,
			HumanInput:          r.HumanInput,
			Markdown:            r.Markdown,
			GuardrailMaxRetries: r.GuardrailMaxRetries,
		},
	}
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
