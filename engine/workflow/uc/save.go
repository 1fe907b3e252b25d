package uc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/graph"
	"github.com/captep/studio/engine/workflow"
	"github.com/captep/studio/pkg/logger"
)

var ErrInvalidDocument = errors.New("invalid workflow document")

type SaveInput struct {
	// WorkflowID is empty when creating a workflow.
	WorkflowID core.ID
	Document   *graph.Document
	CreatedBy  string
}

// SaveWorkflow persists an editor graph and assigns durable ids to nodes the
// editor created since the last save.
type SaveWorkflow struct {
	repo    workflow.Repository
	metrics workflow.Metrics
	input   *SaveInput
}

func NewSaveWorkflow(repo workflow.Repository, metrics workflow.Metrics, input *SaveInput) *SaveWorkflow {
	if metrics == nil {
		metrics = workflow.NopMetrics{}
	}
	return &SaveWorkflow{repo: repo, metrics: metrics, input: input}
}

func (uc *SaveWorkflow) Execute(ctx context.Context) (*workflow.SaveResult, error) {
	start := time.Now()
	doc := uc.input.Document
	if doc == nil {
		return nil, ErrInvalidDocument
	}
	doc.Normalize()
	model, err := doc.Model()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	var result *workflow.SaveResult
	err = uc.repo.WithTx(ctx, func(ctx context.Context, w workflow.GraphWriter) error {
		r := &reconciler{writer: w, doc: doc, model: model, createdBy: strings.TrimSpace(uc.input.CreatedBy)}
		var runErr error
		result, runErr = r.run(ctx, uc.input.WorkflowID)
		return runErr
	})
	if err != nil {
		return nil, err
	}
	created := uc.input.WorkflowID.IsZero()
	uc.metrics.RecordSave(ctx, created, len(model.Nodes()), time.Since(start))
	logger.FromContext(ctx).Info("Workflow saved",
		"workflow_id", result.WorkflowID,
		"created", created,
		"nodes", len(model.Nodes()),
		"new_ids", len(result.IDMap),
	)
	return result, nil
}

type reconciler struct {
	writer    workflow.GraphWriter
	doc       *graph.Document
	model     *graph.Model
	createdBy string
	idMap     map[string]string
}

func (r *reconciler) run(ctx context.Context, workflowID core.ID) (*workflow.SaveResult, error) {
	existing, wfID, err := r.upsertWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	mapped, err := r.assignIDs(existing)
	if err != nil {
		return nil, err
	}
	if err := r.writeNodes(ctx, wfID, mapped); err != nil {
		return nil, err
	}
	if !workflowID.IsZero() {
		if err := r.deleteOrphans(ctx, wfID, mapped); err != nil {
			return nil, err
		}
	}
	layout := &workflow.Layout{Edges: mapped.Edges(), AuxNodes: auxNodes(mapped)}
	if err := r.writer.SaveLayout(ctx, wfID, layout); err != nil {
		return nil, err
	}
	return &workflow.SaveResult{WorkflowID: wfID, IDMap: r.idMap}, nil
}

func (r *reconciler) upsertWorkflow(
	ctx context.Context,
	workflowID core.ID,
) (map[core.ID]graph.NodeKind, core.ID, error) {
	wf := &workflow.Workflow{
		ID:            workflowID,
		Name:          r.doc.Name,
		MemoryEnabled: r.doc.MemoryEnabled,
		AgentType:     r.doc.AgentType,
		ExecType:      r.doc.ExecutionType,
	}
	if workflowID.IsZero() {
		id, err := core.NewID()
		if err != nil {
			return nil, "", err
		}
		wf.ID = id
		if r.createdBy != "" {
			wf.CreatedBy = &r.createdBy
		}
		if err := r.writer.InsertWorkflow(ctx, wf); err != nil {
			return nil, "", err
		}
		return map[core.ID]graph.NodeKind{}, wf.ID, nil
	}
	if err := r.writer.UpdateWorkflow(ctx, wf); err != nil {
		return nil, "", err
	}
	existing, err := r.writer.ExistingIDs(ctx, workflowID)
	if err != nil {
		return nil, "", err
	}
	return existing, workflowID, nil
}

// assignIDs keeps the id of every node already stored for this workflow
// under the same kind and mints one for everything else, including durable
// looking ids that belong to another workflow. The returned model uses the
// durable ids throughout, with dangling edges dropped.
func (r *reconciler) assignIDs(existing map[core.ID]graph.NodeKind) (*graph.Model, error) {
	r.idMap = make(map[string]string)
	nodes := r.model.Nodes()
	for i, n := range nodes {
		if !hasRow(n.Kind) {
			continue
		}
		if !graph.IsEphemeral(n.ID) && existing[core.ID(n.ID)] == n.Kind {
			continue
		}
		id, err := core.NewID()
		if err != nil {
			return nil, err
		}
		if n.ID != "" {
			r.idMap[n.ID] = id.String()
		}
		nodes[i].ID = id.String()
	}
	edges := r.model.Edges()
	for i := range edges {
		edges[i] = edges[i].Rewrite(r.idMap)
	}
	mapped, err := graph.New(nodes, edges)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return mapped, nil
}

func (r *reconciler) writeNodes(ctx context.Context, wfID core.ID, mapped *graph.Model) error {
	nodes := mapped.Nodes()
	parents := parentAgents(mapped)
	// agents first so tool and task owners reference stored rows
	for i, n := range nodes {
		if n.Kind != graph.KindAgent {
			continue
		}
		rec, err := workflow.NewAgentRecord(wfID, n, i)
		if err != nil {
			return err
		}
		if parent, ok := parents[n.ID]; ok {
			pid := core.ID(parent)
			rec.ParentAgentID = &pid
		}
		if err := r.writer.UpsertAgent(ctx, rec); err != nil {
			return err
		}
		if err := r.writer.UpsertAgentModel(ctx, workflow.NewModelRecord(rec.ID, n.Agent().LLMSettings)); err != nil {
			return err
		}
	}
	for i, n := range nodes {
		switch n.Kind {
		case graph.KindTool:
			var owner *core.ID
			if agent, ok := mapped.DirectAgentSource(n.ID); ok {
				owner = idPtr(agent.ID)
			}
			rec, err := workflow.NewToolRecord(wfID, n, i, owner)
			if err != nil {
				return err
			}
			if err := r.writer.UpsertTool(ctx, rec); err != nil {
				return err
			}
		case graph.KindTask:
			var owner *core.ID
			if agent, ok := graph.ResolveTaskOwner(mapped, n.ID); ok {
				owner = idPtr(agent.ID)
			}
			rec, err := workflow.NewTaskRecord(wfID, n, i, owner)
			if err != nil {
				return err
			}
			if err := r.writer.UpsertTask(ctx, rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *reconciler) deleteOrphans(ctx context.Context, wfID core.ID, mapped *graph.Model) error {
	log := logger.FromContext(ctx)
	for _, kind := range []graph.NodeKind{graph.KindTool, graph.KindTask, graph.KindAgent} {
		nodes := mapped.OfKind(kind)
		keep := make([]core.ID, 0, len(nodes))
		for _, n := range nodes {
			keep = append(keep, core.ID(n.ID))
		}
		removed, err := r.writer.DeleteOrphans(ctx, wfID, kind, keep)
		if err != nil {
			return err
		}
		if removed > 0 {
			log.Debug("Removed nodes no longer in graph", "workflow_id", wfID, "kind", kind, "count", removed)
		}
	}
	return nil
}

// parentAgents maps an agent to the first agent with an edge into it.
func parentAgents(m *graph.Model) map[string]string {
	parents := make(map[string]string)
	for _, n := range m.Agents() {
		if parent, ok := m.DirectAgentSource(n.ID); ok && parent.ID != n.ID {
			parents[n.ID] = parent.ID
		}
	}
	return parents
}

func auxNodes(m *graph.Model) []workflow.AuxNode {
	aux := []workflow.AuxNode{}
	for i, n := range m.Nodes() {
		if !hasRow(n.Kind) {
			aux = append(aux, workflow.AuxNode{SortIndex: i, Node: n})
		}
	}
	return aux
}

func hasRow(kind graph.NodeKind) bool {
	return kind == graph.KindAgent || kind == graph.KindTool || kind == graph.KindTask
}

func idPtr(id string) *core.ID {
	v := core.ID(id)
	return &v
}
