package compiler

import (
	"encoding/json"

	"github.com/captep/studio/engine/graph"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// AgentDefinition is one entry of the agent map. LLM identity lives in
// ExecutionConfig.EnvDatas instead.
type AgentDefinition struct {
	Role      string `json:"role"`
	Goal      string `json:"goal"`
	Backstory string `json:"backstory"`
	graph.Tuning
}

type TaskDefinition struct {
	Description         string `json:"description"`
	ExpectedOutput      string `json:"expected_output"`
	AsyncExecution      bool   `json:"async_execution"`
	HumanInput          bool   `json:"human_input"`
	Markdown            bool   `json:"markdown"`
	GuardrailMaxRetries int    `json:"guardrail_max_retries"`
	Agent               string `json:"agent"`
}

// AgentMap serializes as {"workflow_id": ..., "<agent name>": {...}, ...}
// with agents in ordering rank.
type AgentMap struct {
	WorkflowID string
	Agents     *orderedmap.OrderedMap[string, AgentDefinition]
}

func (m *AgentMap) MarshalJSON() ([]byte, error) {
	return marshalKeyed(m.WorkflowID, m.Agents)
}

// TaskMap serializes like AgentMap, keyed by task name.
type TaskMap struct {
	WorkflowID string
	Tasks      *orderedmap.OrderedMap[string, TaskDefinition]
}

func (m *TaskMap) MarshalJSON() ([]byte, error) {
	return marshalKeyed(m.WorkflowID, m.Tasks)
}

func marshalKeyed[V any](workflowID string, entries *orderedmap.OrderedMap[string, V]) ([]byte, error) {
	out := orderedmap.New[string, any]()
	out.Set("workflow_id", workflowID)
	if entries != nil {
		for pair := entries.Oldest(); pair != nil; pair = pair.Next() {
			out.Set(pair.Key, pair.Value)
		}
	}
	return json.Marshal(out)
}

type ToolParams struct {
	Credentials *orderedmap.OrderedMap[string, string] `json:"credentials"`
	UserInputs  *orderedmap.OrderedMap[string, string] `json:"user_inputs"`
}

type EnvData struct {
	LLM                 bool    `json:"llm"`
	Tool                bool    `json:"tool"`
	APIKey              string  `json:"api_key"`
	Model               string  `json:"model"`
	Provider            string  `json:"provider"`
	Temperature         float64 `json:"temperature"`
	MaxCompletionTokens int     `json:"max_completion_tokens"`
	TopP                float64 `json:"top_p"`
	Stream              bool    `json:"stream"`
}

type ExecutionConfig struct {
	WorkflowID       string                                     `json:"workflow_id"`
	ClassName        string                                     `json:"class_name"`
	MemoryEnabled    bool                                       `json:"memory_enabled"`
	ExecType         string                                     `json:"exec_type"`
	ManagerAgent     *string                                    `json:"manager_agent"`
	ToolInput        []string                                   `json:"tool_input"`
	ToolAgentMapping *orderedmap.OrderedMap[string, []string]   `json:"tool_agent_mapping"`
	ToolParams       *orderedmap.OrderedMap[string, ToolParams] `json:"tool_params"`
	EnvDatas         *orderedmap.OrderedMap[string, EnvData]    `json:"env_datas"`
}

// Artifacts are the three documents handed to the agent runtime.
type Artifacts struct {
	Agents *AgentMap
	Tasks  *TaskMap
	Config *ExecutionConfig
}
