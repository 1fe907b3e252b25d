package uc

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/captep/studio/engine/compiler"
	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/graph"
	"github.com/captep/studio/engine/integration"
	"github.com/captep/studio/engine/runtime"
	"github.com/captep/studio/engine/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memState struct {
	workflows map[core.ID]workflow.Workflow
	layouts   map[core.ID]workflow.Layout
	agents    map[core.ID]workflow.AgentRecord
	models    map[core.ID]workflow.ModelRecord
	tools     map[core.ID]workflow.ToolRecord
	tasks     map[core.ID]workflow.TaskRecord
	failTask  bool
}

func (s *memState) clone() *memState {
	return &memState{
		workflows: maps.Clone(s.workflows),
		layouts:   maps.Clone(s.layouts),
		agents:    maps.Clone(s.agents),
		models:    maps.Clone(s.models),
		tools:     maps.Clone(s.tools),
		tasks:     maps.Clone(s.tasks),
		failTask:  s.failTask,
	}
}

func (s *memState) InsertWorkflow(_ context.Context, wf *workflow.Workflow) error {
	s.workflows[wf.ID] = *wf
	return nil
}

func (s *memState) UpdateWorkflow(_ context.Context, wf *workflow.Workflow) error {
	cur, ok := s.workflows[wf.ID]
	if !ok {
		return workflow.ErrWorkflowNotFound
	}
	cur.Name = wf.Name
	cur.MemoryEnabled = wf.MemoryEnabled
	cur.AgentType = wf.AgentType
	cur.ExecType = wf.ExecType
	s.workflows[wf.ID] = cur
	return nil
}

func (s *memState) ExistingIDs(_ context.Context, workflowID core.ID) (map[core.ID]graph.NodeKind, error) {
	out := map[core.ID]graph.NodeKind{}
	for id, r := range s.agents {
		if r.WorkflowID == workflowID {
			out[id] = graph.KindAgent
		}
	}
	for id, r := range s.tools {
		if r.WorkflowID == workflowID {
			out[id] = graph.KindTool
		}
	}
	for id, r := range s.tasks {
		if r.WorkflowID == workflowID {
			out[id] = graph.KindTask
		}
	}
	return out, nil
}

func (s *memState) UpsertAgent(_ context.Context, rec *workflow.AgentRecord) error {
	s.agents[rec.ID] = *rec
	return nil
}

func (s *memState) UpsertAgentModel(_ context.Context, rec *workflow.ModelRecord) error {
	s.models[rec.AgentID] = *rec
	return nil
}

func (s *memState) UpsertTool(_ context.Context, rec *workflow.ToolRecord) error {
	s.tools[rec.ID] = *rec
	return nil
}

func (s *memState) UpsertTask(_ context.Context, rec *workflow.TaskRecord) error {
	if s.failTask {
		return errors.New("disk full")
	}
	s.tasks[rec.ID] = *rec
	return nil
}

func (s *memState) DeleteOrphans(
	_ context.Context,
	workflowID core.ID,
	kind graph.NodeKind,
	keep []core.ID,
) (int64, error) {
	var n int64
	drop := func(id core.ID, wf core.ID) bool {
		if wf != workflowID || slices.Contains(keep, id) {
			return false
		}
		n++
		return true
	}
	switch kind {
	case graph.KindAgent:
		maps.DeleteFunc(s.agents, func(id core.ID, r workflow.AgentRecord) bool { return drop(id, r.WorkflowID) })
	case graph.KindTool:
		maps.DeleteFunc(s.tools, func(id core.ID, r workflow.ToolRecord) bool { return drop(id, r.WorkflowID) })
	case graph.KindTask:
		maps.DeleteFunc(s.tasks, func(id core.ID, r workflow.TaskRecord) bool { return drop(id, r.WorkflowID) })
	}
	return n, nil
}

func (s *memState) SaveLayout(_ context.Context, workflowID core.ID, layout *workflow.Layout) error {
	s.layouts[workflowID] = *layout
	return nil
}

type memRepo struct {
	mu    sync.Mutex
	state *memState
	creds []compiler.Credential
}

func newMemRepo() *memRepo {
	return &memRepo{state: &memState{
		workflows: map[core.ID]workflow.Workflow{},
		layouts:   map[core.ID]workflow.Layout{},
		agents:    map[core.ID]workflow.AgentRecord{},
		models:    map[core.ID]workflow.ModelRecord{},
		tools:     map[core.ID]workflow.ToolRecord{},
		tasks:     map[core.ID]workflow.TaskRecord{},
	}}
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, workflow.GraphWriter) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := r.state.clone()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = tx
	return nil
}

func (r *memRepo) GetWorkflow(_ context.Context, id core.ID) (*workflow.Workflow, error) {
	wf, ok := r.state.workflows[id]
	if !ok {
		return nil, workflow.ErrWorkflowNotFound
	}
	return &wf, nil
}

func (r *memRepo) ListWorkflows(_ context.Context, filter *workflow.ListFilter) ([]workflow.Summary, error) {
	var out []workflow.Summary
	for _, id := range slices.Sorted(maps.Keys(r.state.workflows)) {
		wf := r.state.workflows[id]
		if filter.CreatedBy != "" && (wf.CreatedBy == nil || *wf.CreatedBy != filter.CreatedBy) {
			continue
		}
		if !filter.After.IsZero() && id <= filter.After {
			continue
		}
		out = append(out, workflow.Summary{ID: id, Name: wf.Name, ExecType: wf.ExecType})
		if len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *memRepo) LoadGraph(ctx context.Context, id core.ID) (*workflow.StoredGraph, error) {
	wf, err := r.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	layout := r.state.layouts[id]
	stored := &workflow.StoredGraph{Workflow: wf, Layout: &layout, Models: map[core.ID]workflow.ModelRecord{}}
	for _, a := range r.state.agents {
		if a.WorkflowID == id {
			stored.Agents = append(stored.Agents, a)
			if m, ok := r.state.models[a.ID]; ok {
				stored.Models[a.ID] = m
			}
		}
	}
	for _, t := range r.state.tools {
		if t.WorkflowID == id {
			stored.Tools = append(stored.Tools, t)
		}
	}
	for _, t := range r.state.tasks {
		if t.WorkflowID == id {
			stored.Tasks = append(stored.Tasks, t)
		}
	}
	return stored, nil
}

func (r *memRepo) ListCredentials(context.Context, core.ID) ([]compiler.Credential, error) {
	return r.creds, nil
}

const leadDocument = `{
  "name": "Lead follow up",
  "memoryEnabled": true,
  "executionType": "hierarchical",
  "nodes": [
    {"id": "start-1", "nodeType": "start node", "position": {"x": 0, "y": 0}, "data": {"label": "Start"}},
    {"id": "agent-1", "nodeType": "agent node", "position": {"x": 10, "y": 20},
     "data": {"name": "Researcher", "service": "assistant agent", "role": "r", "goal": "g", "backstory": "b",
              "provider": "openai", "model": "gpt-4o", "apiKey": "sk"}},
    {"id": "agent-2", "nodeType": "agent node", "data": {"name": "Lead", "service": "supervisor agent"}},
    {"id": "tool-1", "nodeType": "tool node",
     "data": {"service": "crm", "selectedObject": "Lead", "toolAction": "search",
              "configOauth": {"oauth_id": "conn-1", "oauth_connecname": "Sales"},
              "inputFields": [{"name": "query", "fillUsing": "custom", "value": "acme"}]}},
    {"id": "task-1", "nodeType": "task node",
     "data": {"task": {"name": "Find leads", "description": "d", "expected_output": "e"}}},
    {"id": "term-1", "nodeType": "term node", "data": {"label": "End"}}
  ],
  "edges": [
    {"source": "start-1", "target": "agent-2"},
    {"source": "agent-2", "target": "agent-1"},
    {"source": "agent-1", "target": "tool-1"},
    {"source": "tool-1", "target": "task-1"},
    {"source": "task-1", "target": "term-1"},
    {"source": "agent-1", "target": "ghost-9"}
  ]
}`

func decodeDoc(t *testing.T, raw string) *graph.Document {
	t.Helper()
	var doc graph.Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return &doc
}

func saveLead(t *testing.T, repo *memRepo) *workflow.SaveResult {
	t.Helper()
	input := &SaveInput{Document: decodeDoc(t, leadDocument), CreatedBy: "u1"}
	res, err := NewSaveWorkflow(repo, nil, input).Execute(t.Context())
	require.NoError(t, err)
	return res
}

func TestSaveWorkflow(t *testing.T) {
	t.Run("Should assign durable ids and persist owners on create", func(t *testing.T) {
		repo := newMemRepo()
		res := saveLead(t, repo)
		require.False(t, res.WorkflowID.IsZero())
		require.Len(t, res.IDMap, 4)
		for _, eph := range []string{"agent-1", "agent-2", "tool-1", "task-1"} {
			assert.False(t, graph.IsEphemeral(res.IDMap[eph]), eph)
		}
		researcher := core.ID(res.IDMap["agent-1"])
		lead := core.ID(res.IDMap["agent-2"])
		st := repo.state
		require.Len(t, st.agents, 2)
		require.NotNil(t, st.agents[researcher].ParentAgentID)
		assert.Equal(t, lead, *st.agents[researcher].ParentAgentID)
		assert.Nil(t, st.agents[lead].ParentAgentID)
		assert.Equal(t, "gpt-4o", st.models[researcher].Model)

		tool := st.tools[core.ID(res.IDMap["tool-1"])]
		require.NotNil(t, tool.AgentID)
		assert.Equal(t, researcher, *tool.AgentID)
		assert.Equal(t, "conn-1", *tool.OAuthID)
		task := st.tasks[core.ID(res.IDMap["task-1"])]
		require.NotNil(t, task.AgentID)
		assert.Equal(t, researcher, *task.AgentID)

		wf := st.workflows[res.WorkflowID]
		assert.Equal(t, "u1", *wf.CreatedBy)
		assert.Equal(t, "hierarchical", wf.ExecType)
		assert.Equal(t, graph.DefaultAgentType, wf.AgentType)

		layout := st.layouts[res.WorkflowID]
		require.Len(t, layout.Edges, 5)
		for _, e := range layout.Edges {
			assert.False(t, strings.HasPrefix(e.Source, "agent-"), e.Source)
			assert.False(t, strings.HasPrefix(e.Target, "tool-"), e.Target)
		}
		require.Len(t, layout.AuxNodes, 2)
		assert.Equal(t, "start-1", layout.AuxNodes[0].Node.ID)
		assert.Equal(t, 0, layout.AuxNodes[0].SortIndex)
		assert.Equal(t, 5, layout.AuxNodes[1].SortIndex)
	})

	t.Run("Should keep durable ids, remap foreign ids and delete orphans on update", func(t *testing.T) {
		repo := newMemRepo()
		res := saveLead(t, repo)
		loaded, err := NewLoadWorkflow(repo, res.WorkflowID).Execute(t.Context())
		require.NoError(t, err)
		doc := loaded.Document
		foreign := core.MustNewID().String()
		var nodes []graph.Node
		for _, n := range doc.Nodes {
			switch n.Kind {
			case graph.KindTask:
				continue
			case graph.KindTool:
				n.ID = foreign
			}
			nodes = append(nodes, n)
		}
		nodes = append(nodes, graph.Node{
			ID:   "task-99",
			Kind: graph.KindTask,
			Data: &graph.TaskData{Name: "Write email"},
		})
		doc.Nodes = nodes
		doc.Edges = append(doc.Edges, graph.Edge{Source: res.IDMap["agent-1"], Target: "task-99"})

		upd, err := NewSaveWorkflow(repo, nil, &SaveInput{WorkflowID: res.WorkflowID, Document: doc}).
			Execute(t.Context())
		require.NoError(t, err)
		assert.Equal(t, res.WorkflowID, upd.WorkflowID)
		assert.Len(t, upd.IDMap, 2)
		assert.Contains(t, upd.IDMap, foreign)
		assert.Contains(t, upd.IDMap, "task-99")

		st := repo.state
		assert.Contains(t, st.agents, core.ID(res.IDMap["agent-1"]))
		assert.Contains(t, st.agents, core.ID(res.IDMap["agent-2"]))
		assert.NotContains(t, st.tasks, core.ID(res.IDMap["task-1"]))
		assert.NotContains(t, st.tools, core.ID(res.IDMap["tool-1"]))
		assert.NotContains(t, st.tools, core.ID(foreign))
		require.Len(t, st.tools, 1)
		require.Len(t, st.tasks, 1)
		newTask := st.tasks[core.ID(upd.IDMap["task-99"])]
		assert.Equal(t, "Write email", newTask.Name)
		assert.Equal(t, core.ID(res.IDMap["agent-1"]), *newTask.AgentID)
	})

	t.Run("Should return not found when updating a missing workflow", func(t *testing.T) {
		repo := newMemRepo()
		input := &SaveInput{WorkflowID: core.MustNewID(), Document: decodeDoc(t, leadDocument)}
		_, err := NewSaveWorkflow(repo, nil, input).Execute(t.Context())
		assert.ErrorIs(t, err, workflow.ErrWorkflowNotFound)
		assert.Empty(t, repo.state.agents)
	})

	t.Run("Should leave storage untouched when a write fails", func(t *testing.T) {
		repo := newMemRepo()
		repo.state.failTask = true
		_, err := NewSaveWorkflow(repo, nil, &SaveInput{Document: decodeDoc(t, leadDocument)}).Execute(t.Context())
		require.Error(t, err)
		assert.Empty(t, repo.state.workflows)
		assert.Empty(t, repo.state.agents)
		assert.Empty(t, repo.state.tools)
	})

	t.Run("Should reject documents with duplicate node ids", func(t *testing.T) {
		doc := decodeDoc(t, leadDocument)
		doc.Nodes = append(doc.Nodes, doc.Nodes[1])
		_, err := NewSaveWorkflow(newMemRepo(), nil, &SaveInput{Document: doc}).Execute(t.Context())
		assert.ErrorIs(t, err, ErrInvalidDocument)
	})
}

func TestLoadWorkflow(t *testing.T) {
	t.Run("Should rebuild the document in saved order", func(t *testing.T) {
		repo := newMemRepo()
		res := saveLead(t, repo)
		out, err := NewLoadWorkflow(repo, res.WorkflowID).Execute(t.Context())
		require.NoError(t, err)
		kinds := make([]graph.NodeKind, 0, len(out.Nodes))
		for _, n := range out.Nodes {
			kinds = append(kinds, n.Kind)
		}
		assert.Equal(t, []graph.NodeKind{
			graph.KindStart, graph.KindAgent, graph.KindAgent, graph.KindTool, graph.KindTask, graph.KindTerminal,
		}, kinds)
		assert.Equal(t, "Lead follow up", out.Name)
		assert.True(t, out.MemoryEnabled)
		assert.Len(t, out.Edges, 5)
		researcher := out.Nodes[1].Agent()
		assert.Equal(t, "openai", researcher.Provider)
		assert.Equal(t, graph.Position{X: 10, Y: 20}, out.Nodes[1].Position)
		tool := out.Nodes[3].Tool()
		assert.Equal(t, "acme", tool.InputFields[0].Value.Flatten())
		assert.Equal(t, "Sales", tool.OAuth.Name)
	})

	t.Run("Should apply display defaults to agents without a model", func(t *testing.T) {
		repo := newMemRepo()
		res := saveLead(t, repo)
		delete(repo.state.models, core.ID(res.IDMap["agent-2"]))
		out, err := NewLoadWorkflow(repo, res.WorkflowID).Execute(t.Context())
		require.NoError(t, err)
		lead := out.Nodes[2].Agent()
		assert.Equal(t, workflow.DefaultProvider, lead.Provider)
		assert.Equal(t, workflow.DefaultModel, lead.Model)
		assert.InDelta(t, graph.DefaultTemperature, lead.Temperature, 1e-9)
		assert.Equal(t, graph.DefaultMaxTokens, lead.MaxTokens)
	})

	t.Run("Should return not found for unknown workflows", func(t *testing.T) {
		_, err := NewLoadWorkflow(newMemRepo(), core.MustNewID()).Execute(t.Context())
		assert.ErrorIs(t, err, workflow.ErrWorkflowNotFound)
	})
}

func TestListWorkflows(t *testing.T) {
	t.Run("Should page through workflows of one creator", func(t *testing.T) {
		repo := newMemRepo()
		for range 3 {
			saveLead(t, repo)
		}
		_, err := NewSaveWorkflow(repo, nil, &SaveInput{Document: decodeDoc(t, leadDocument), CreatedBy: "u2"}).
			Execute(t.Context())
		require.NoError(t, err)

		first, err := NewListWorkflows(repo, &ListInput{CreatedBy: "u1", Limit: 2}).Execute(t.Context())
		require.NoError(t, err)
		require.Len(t, first.Items, 2)
		require.False(t, first.Next.IsZero())
		second, err := NewListWorkflows(repo, &ListInput{CreatedBy: "u1", Limit: 2, After: first.Next}).
			Execute(t.Context())
		require.NoError(t, err)
		require.Len(t, second.Items, 1)
		assert.True(t, second.Next.IsZero())
	})
}

type refresherStub struct {
	report *integration.RefreshReport
	err    error
}

func (r *refresherStub) RefreshWorkflow(context.Context, core.ID) (*integration.RefreshReport, error) {
	return r.report, r.err
}

type runtimeStub struct {
	dispatched *compiler.Artifacts
	cancelled  core.ID
	err        error
}

func (r *runtimeStub) Dispatch(_ context.Context, a *compiler.Artifacts) error {
	r.dispatched = a
	return r.err
}

func (r *runtimeStub) Cancel(_ context.Context, id core.ID) error {
	r.cancelled = id
	return r.err
}

type noNestedTools struct{}

func (noNestedTools) NestedTools(context.Context, string) ([]compiler.NestedTool, error) {
	return nil, nil
}

func compileFixture(t *testing.T, results ...integration.RefreshResult) (*memRepo, core.ID, *runtimeStub, *Factory) {
	t.Helper()
	repo := newMemRepo()
	res := saveLead(t, repo)
	repo.creds = []compiler.Credential{{ConnectionID: "conn-1", CustomToolID: "ct-crm", AccessToken: "at"}}
	rt := &runtimeStub{}
	refresher := &refresherStub{report: &integration.RefreshReport{Results: results}}
	assembler := compiler.NewAssembler(compiler.NewToolBindingResolver(noNestedTools{}))
	return repo, res.WorkflowID, rt, NewFactory(repo, refresher, assembler, rt, nil)
}

func TestCompileWorkflow(t *testing.T) {
	t.Run("Should dispatch the assembled documents", func(t *testing.T) {
		_, id, rt, f := compileFixture(t, integration.RefreshResult{
			ConnectionID: "conn-1",
			Outcome:      integration.OutcomeSkipped,
		})
		out, err := f.Compile(id).Execute(t.Context())
		require.NoError(t, err)
		assert.True(t, out.Status)
		assert.Equal(t, 2, out.Agents)
		assert.Equal(t, 1, out.Tasks)
		assert.Equal(t, 1, out.Tools)
		require.NotNil(t, rt.dispatched)
		cfg := rt.dispatched.Config
		assert.Equal(t, []string{"ct-crm"}, cfg.ToolInput)
		require.NotNil(t, cfg.ManagerAgent)
		assert.Equal(t, "Lead", *cfg.ManagerAgent)
		assert.Equal(t, "LeadFollowUp", cfg.ClassName)
		mapping, ok := cfg.ToolAgentMapping.Get("Researcher")
		require.True(t, ok)
		assert.Equal(t, []string{"ct-crm"}, mapping)
		task, ok := rt.dispatched.Tasks.Tasks.Get("Find leads")
		require.True(t, ok)
		assert.Equal(t, "Researcher", task.Agent)
		lead, ok := cfg.EnvDatas.Get("Lead")
		require.True(t, ok)
		assert.Empty(t, lead.Provider)
	})

	t.Run("Should require re-authorization for rejected refresh tokens", func(t *testing.T) {
		_, id, rt, f := compileFixture(t,
			integration.RefreshResult{ConnectionID: "conn-2", Outcome: integration.OutcomeReauthRequired, Expired: true},
			integration.RefreshResult{ConnectionID: "conn-1", Outcome: integration.OutcomeRefreshed},
		)
		_, err := f.Compile(id).Execute(t.Context())
		require.Error(t, err)
		assert.ErrorIs(t, err, workflow.ErrReauthRequired)
		var ce *workflow.CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, []core.ID{"conn-2"}, ce.ConnectionIDs)
		assert.Nil(t, rt.dispatched)
	})

	t.Run("Should fail transiently when an expired token could not be refreshed", func(t *testing.T) {
		_, id, rt, f := compileFixture(t, integration.RefreshResult{
			ConnectionID: "conn-1",
			Outcome:      integration.OutcomeTransient,
			Expired:      true,
		})
		_, err := f.Compile(id).Execute(t.Context())
		assert.ErrorIs(t, err, workflow.ErrTransient)
		assert.Nil(t, rt.dispatched)
	})

	t.Run("Should proceed when a still valid token failed to refresh", func(t *testing.T) {
		_, id, rt, f := compileFixture(t, integration.RefreshResult{
			ConnectionID: "conn-1",
			Outcome:      integration.OutcomeTransient,
		})
		_, err := f.Compile(id).Execute(t.Context())
		require.NoError(t, err)
		assert.NotNil(t, rt.dispatched)
	})

	t.Run("Should report unknown workflows as invalid", func(t *testing.T) {
		_, _, _, f := compileFixture(t)
		_, err := f.Compile(core.MustNewID()).Execute(t.Context())
		assert.ErrorIs(t, err, workflow.ErrInvalid)
		assert.ErrorIs(t, err, workflow.ErrWorkflowNotFound)
	})

	t.Run("Should report runtime failures as transient", func(t *testing.T) {
		_, id, rt, f := compileFixture(t)
		rt.err = errors.New("connection refused")
		_, err := f.Compile(id).Execute(t.Context())
		assert.Equal(t, workflow.KindTransient, workflow.KindOf(err))
	})
}

func TestCancelWorkflow(t *testing.T) {
	t.Run("Should forward the cancel to the runtime", func(t *testing.T) {
		_, id, rt, f := compileFixture(t)
		require.NoError(t, f.Cancel(id).Execute(t.Context()))
		assert.Equal(t, id, rt.cancelled)
	})

	t.Run("Should not call the runtime for unknown workflows", func(t *testing.T) {
		_, _, rt, f := compileFixture(t)
		err := f.Cancel(core.MustNewID()).Execute(t.Context())
		assert.ErrorIs(t, err, workflow.ErrWorkflowNotFound)
		assert.True(t, rt.cancelled.IsZero())
	})

	t.Run("Should pass through a runtime without a cancel endpoint", func(t *testing.T) {
		_, id, rt, f := compileFixture(t)
		rt.err = runtime.ErrCancelUnsupported
		err := f.Cancel(id).Execute(t.Context())
		assert.ErrorIs(t, err, runtime.ErrCancelUnsupported)
		var ce *workflow.CompileError
		assert.False(t, errors.As(err, &ce))
	})
}
