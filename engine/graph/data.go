package graph

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// NodeData is the kind specific payload of a node. Only fields the compiler
// and the store care about are kept; editor-only state is dropped on decode.
type NodeData interface {
	Kind() NodeKind
	isNodeData()
}

// LLM settings stored in an agent's Model record.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
	DefaultTopP        = 1.0
)

type LLMSettings struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	APIKey      string  `json:"apiKey"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
	TopP        float64 `json:"topP"`
}

// DefaultLLMSettings leaves provider and model empty.
func DefaultLLMSettings() LLMSettings {
	return LLMSettings{Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens, TopP: DefaultTopP}
}

// Tuning holds the execution knobs forwarded to the agent runtime as-is.
type Tuning struct {
	FunctionCallingLLM   *string         `json:"function_calling_llm"`
	Verbose              bool            `json:"verbose"`
	AllowDelegation      bool            `json:"allow_delegation"`
	MaxIter              int             `json:"max_iter"`
	MaxRPM               *int            `json:"max_rpm"`
	MaxExecutionTime     *int            `json:"max_execution_time"`
	MaxRetryLimit        int             `json:"max_retry_limit"`
	AllowCodeExecution   bool            `json:"allow_code_execution"`
	CodeExecutionMode    string          `json:"code_execution_mode"`
	RespectContextWindow bool            `json:"respect_context_window"`
	UseSystemPrompt      bool            `json:"use_system_prompt"`
	Multimodal           bool            `json:"multimodal"`
	InjectDate           bool            `json:"inject_date"`
	DateFormat           string          `json:"date_format"`
	Reasoning            bool            `json:"reasoning"`
	MaxReasoningAttempts *int            `json:"max_reasoning_attempts"`
	KnowledgeSources     []string        `json:"knowledge_sources"`
	Embedder             json.RawMessage `json:"embedder"`
	SystemTemplate       *string         `json:"system_template"`
	PromptTemplate       *string         `json:"prompt_template"`
	ResponseTemplate     *string         `json:"response_template"`
}

func DefaultTuning() Tuning {
	return Tuning{
		MaxIter:              20,
		MaxRetryLimit:        2,
		CodeExecutionMode:    "safe",
		RespectContextWindow: true,
		UseSystemPrompt:      true,
		DateFormat:           "%Y-%m-%d",
		KnowledgeSources:     []string{},
		Embedder:             json.RawMessage("null"),
	}
}

type AgentData struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Service      string `json:"service"`
	Manager      bool   `json:"manager,omitempty"`
	RoleText     string `json:"role"`
	Goal         string `json:"goal"`
	Backstory    string `json:"backstory"`
	SystemPrompt string `json:"systemprompt"`
	LLMSettings
	Tuning
}

func (*AgentData) Kind() NodeKind { return KindAgent }
func (*AgentData) isNodeData()    {}

// Role is derived from the service tag.
func (a *AgentData) Role() AgentRole {
	return ParseRole(a.Service)
}

type FillMode string

const (
	FillCustom  FillMode = "custom"
	FillDynamic FillMode = "dynamic"
)

// FieldRef is the object form of an input value, used by dynamic fields.
type FieldRef struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// FieldValue is either a plain string or a FieldRef.
type FieldValue struct {
	Text string
	Ref  *FieldRef
}

func (v FieldValue) Flatten() string {
	if v.Ref != nil {
		return v.Ref.Name
	}
	return v.Text
}

func (v FieldValue) MarshalJSON() ([]byte, error) {
	if v.Ref != nil {
		return json.Marshal(v.Ref)
	}
	return json.Marshal(v.Text)
}

func (v *FieldValue) UnmarshalJSON(b []byte) error {
	*v = parseFieldValue(gjson.ParseBytes(b))
	return nil
}

func parseFieldValue(r gjson.Result) FieldValue {
	if r.IsObject() {
		return FieldValue{Ref: &FieldRef{Name: r.Get("name").String(), Description: r.Get("description").String()}}
	}
	if !r.Exists() || r.Type == gjson.Null {
		return FieldValue{}
	}
	return FieldValue{Text: r.String()}
}

type InputField struct {
	Name      string     `json:"name"`
	FillUsing FillMode   `json:"fillUsing"`
	Value     FieldValue `json:"value"`
}

// ConnectionRef points a tool at an OAuth connection.
type ConnectionRef struct {
	ID   string `json:"oauth_id"`
	Name string `json:"oauth_connecname"`
}

type ToolData struct {
	Service        string        `json:"service"`
	Connected      bool          `json:"connected"`
	SelectedObject string        `json:"selectedObject"`
	ToolAction     string        `json:"toolAction"`
	InputFields    []InputField  `json:"inputFields"`
	ToolName       string        `json:"toolName"`
	Description    string        `json:"description"`
	OAuth          ConnectionRef `json:"configOauth"`
	BaseToolID     string        `json:"basetoolId,omitempty"`
}

func (*ToolData) Kind() NodeKind { return KindTool }
func (*ToolData) isNodeData()    {}

// DefaultGuardrailRetries applies when the editor did not send a value.
const DefaultGuardrailRetries = 3

type TaskData struct {
	Name                string `json:"name"`
	Description         string `json:"description"`
	ExpectedOutput      string `json:"expected_output"`
	AsyncExecution      bool   `json:"async_execution"`
	HumanInput          bool   `json:"human_input"`
	Markdown            bool   `json:"markdown"`
	GuardrailMaxRetries int    `json:"guardrail_max_retries"`
}

func (*TaskData) Kind() NodeKind { return KindTask }
func (*TaskData) isNodeData()    {}

// MarshalJSON nests the fields under "task" the way the editor stores them.
func (t *TaskData) MarshalJSON() ([]byte, error) {
	type plain TaskData
	return json.Marshal(struct {
		Task *plain `json:"task"`
	}{(*plain)(t)})
}

// TerminalData is shared by start and terminal nodes.
type TerminalData struct {
	kind  NodeKind
	Label string `json:"label,omitempty"`
}

func NewTerminalData(kind NodeKind, label string) *TerminalData {
	return &TerminalData{kind: kind, Label: label}
}

func (d *TerminalData) Kind() NodeKind { return d.kind }
func (*TerminalData) isNodeData()      {}

// DecodeData parses a raw node payload for the given kind.
func DecodeData(kind NodeKind, raw []byte) (NodeData, error) {
	if len(raw) > 0 && !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: %s payload is not valid JSON", ErrInvalidNodeData, kind)
	}
	r := gjson.ParseBytes(raw)
	switch kind {
	case KindAgent:
		return decodeAgent(r), nil
	case KindTool:
		return decodeTool(r), nil
	case KindTask:
		return decodeTask(r), nil
	case KindStart, KindTerminal:
		return NewTerminalData(kind, r.Get("label").String()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, kind)
	}
}

func decodeAgent(r gjson.Result) *AgentData {
	a := &AgentData{
		Name:         r.Get("name").String(),
		Description:  r.Get("description").String(),
		Service:      r.Get("service").String(),
		Manager:      r.Get("manager").Bool(),
		RoleText:     r.Get("role").String(),
		Goal:         r.Get("goal").String(),
		Backstory:    r.Get("backstory").String(),
		SystemPrompt: r.Get("systemprompt").String(),
		LLMSettings: LLMSettings{
			Provider:    r.Get("provider").String(),
			Model:       r.Get("model").String(),
			APIKey:      r.Get("apiKey").String(),
			Temperature: floatOr(r.Get("temperature"), DefaultTemperature),
			MaxTokens:   intOr(r.Get("maxTokens"), DefaultMaxTokens),
			TopP:        floatOr(r.Get("topP"), DefaultTopP),
		},
		Tuning: DefaultTuning(),
	}
	a.Tuning = decodeTuning(r, a.Tuning)
	return a
}

func decodeTuning(r gjson.Result, t Tuning) Tuning {
	t.FunctionCallingLLM = optString(r.Get("function_calling_llm"))
	t.Verbose = boolOr(r.Get("verbose"), t.Verbose)
	t.AllowDelegation = boolOr(r.Get("allow_delegation"), t.AllowDelegation)
	t.MaxIter = intOr(r.Get("max_iter"), t.MaxIter)
	t.MaxRPM = optInt(r.Get("max_rpm"))
	t.MaxExecutionTime = optInt(r.Get("max_execution_time"))
	t.MaxRetryLimit = intOr(r.Get("max_retry_limit"), t.MaxRetryLimit)
	t.AllowCodeExecution = boolOr(r.Get("allow_code_execution"), t.AllowCodeExecution)
	t.CodeExecutionMode = stringOr(r.Get("code_execution_mode"), t.CodeExecutionMode)
	t.RespectContextWindow = boolOr(r.Get("respect_context_window"), t.RespectContextWindow)
	t.UseSystemPrompt = boolOr(r.Get("use_system_prompt"), t.UseSystemPrompt)
	t.Multimodal = boolOr(r.Get("multimodal"), t.Multimodal)
	t.InjectDate = boolOr(r.Get("inject_date"), t.InjectDate)
	t.DateFormat = stringOr(r.Get("date_format"), t.DateFormat)
	t.Reasoning = boolOr(r.Get("reasoning"), t.Reasoning)
	t.MaxReasoningAttempts = optInt(r.Get("max_reasoning_attempts"))
	if ks := r.Get("knowledge_sources"); ks.IsArray() {
		t.KnowledgeSources = make([]string, 0, len(ks.Array()))
		for _, s := range ks.Array() {
			t.KnowledgeSources = append(t.KnowledgeSources, s.String())
		}
	}
	if e := r.Get("embedder"); e.Exists() {
		t.Embedder = json.RawMessage(e.Raw)
	}
	t.SystemTemplate = optString(r.Get("system_template"))
	t.PromptTemplate = optString(r.Get("prompt_template"))
	t.ResponseTemplate = optString(r.Get("response_template"))
	return t
}

func decodeTool(r gjson.Result) *ToolData {
	t := &ToolData{
		Service:        r.Get("service").String(),
		Connected:      r.Get("connected").Bool(),
		SelectedObject: r.Get("selectedObject").String(),
		ToolAction:     r.Get("toolAction").String(),
		ToolName:       r.Get("toolName").String(),
		Description:    r.Get("description").String(),
		BaseToolID:     r.Get("basetoolId").String(),
		OAuth: ConnectionRef{
			ID:   r.Get("configOauth.oauth_id").String(),
			Name: r.Get("configOauth.oauth_connecname").String(),
		},
		InputFields: []InputField{},
	}
	for _, f := range r.Get("inputFields").Array() {
		t.InputFields = append(t.InputFields, InputField{
			Name:      f.Get("name").String(),
			FillUsing: FillMode(f.Get("fillUsing").String()),
			Value:     parseFieldValue(f.Get("value")),
		})
	}
	return t
}

// decodeTask reads data.task.* and falls back to data.* per field; older
// editor builds wrote the flags at the top level.
func decodeTask(r gjson.Result) *TaskData {
	get := func(key string) gjson.Result {
		if v := r.Get("task." + key); v.Exists() {
			return v
		}
		return r.Get(key)
	}
	return &TaskData{
		Name:                get("name").String(),
		Description:         get("description").String(),
		ExpectedOutput:      get("expected_output").String(),
		AsyncExecution:      get("async_execution").Bool(),
		HumanInput:          get("human_input").Bool(),
		Markdown:            get("markdown").Bool(),
		GuardrailMaxRetries: intOr(get("guardrail_max_retries"), DefaultGuardrailRetries),
	}
}

func present(r gjson.Result) bool {
	return r.Exists() && r.Type != gjson.Null && !(r.Type == gjson.String && r.Str == "")
}

func floatOr(r gjson.Result, def float64) float64 {
	if !present(r) {
		return def
	}
	return r.Float()
}

func intOr(r gjson.Result, def int) int {
	if !present(r) {
		return def
	}
	return int(r.Int())
}

func boolOr(r gjson.Result, def bool) bool {
	if !present(r) {
		return def
	}
	return r.Bool()
}

func stringOr(r gjson.Result, def string) string {
	if !present(r) {
		return def
	}
	return r.String()
}

func optInt(r gjson.Result) *int {
	if !present(r) {
		return nil
	}
	v := int(r.Int())
	return &v
}

func optString(r gjson.Result) *string {
	if !present(r) {
		return nil
	}
	v := r.String()
	return &v
}
