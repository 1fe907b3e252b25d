package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/captep/studio/engine/compiler"
	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/graph"
	"github.com/captep/studio/engine/workflow"
	"github.com/captep/studio/pkg/logger"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// ErrForeignRow is returned when an upsert hits a row owned by another workflow.
var ErrForeignRow = errors.New("row belongs to another workflow")

var (
	agentColumns = []string{
		"id", "workflow_id", "parent_agent_id", "sort_index", "position_x", "position_y",
		"name", "description", "service", "manager", "role", "goal", "backstory",
		"system_prompt", "tuning",
	}
	modelColumns = []string{"agent_id", "provider", "model", "api_key", "temperature", "max_tokens", "top_p"}
	toolColumns  = []string{
		"id", "workflow_id", "agent_id", "sort_index", "position_x", "position_y",
		"service", "connected", "object", "operation", "tool_name", "description",
		"inputs", "oauth_id", "oauth_connection_name", "base_tool_id",
	}
	taskColumns = []string{
		"id", "workflow_id", "agent_id", "sort_index", "position_x", "position_y",
		"name", "description", "expected_output", "async_execution", "human_input",
		"markdown", "guardrail_max_retries",
	}
	workflowColumns = []string{
		"id", "name", "memory_enabled", "agent_type", "exec_type", "created_by", "created_at", "updated_at",
	}
)

var kindTables = map[graph.NodeKind]string{
	graph.KindAgent: "agents",
	graph.KindTool:  "registered_tools",
	graph.KindTask:  "tasks",
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WorkflowRepo implements workflow.Repository.
type WorkflowRepo struct {
	db DB
}

func NewWorkflowRepo(db DB) *WorkflowRepo {
	return &WorkflowRepo{db: db}
}

func (r *WorkflowRepo) withTransaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				logger.FromContext(ctx).Warn("Transaction rollback failed after panic", "error", rbErr)
			}
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				logger.FromContext(ctx).Warn("Transaction rollback failed", "error", rbErr)
			}
		} else if cErr := tx.Commit(ctx); cErr != nil {
			err = fmt.Errorf("committing transaction: %w", cErr)
		}
	}()
	err = fn(tx)
	return err
}

func (r *WorkflowRepo) WithTx(ctx context.Context, fn func(context.Context, workflow.GraphWriter) error) error {
	return r.withTransaction(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &graphWriter{q: tx})
	})
}

func (r *WorkflowRepo) GetWorkflow(ctx context.Context, id core.ID) (*workflow.Workflow, error) {
	return getWorkflow(ctx, r.db, id)
}

func getWorkflow(ctx context.Context, q querier, id core.ID) (*workflow.Workflow, error) {
	query, args, err := psql.Select(workflowColumns...).From("workflows").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building workflow query: %w", err)
	}
	var wf workflow.Workflow
	if err := pgxscan.Get(ctx, q, &wf, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, workflow.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("scanning workflow: %w", err)
	}
	return &wf, nil
}

func (r *WorkflowRepo) ListWorkflows(ctx context.Context, filter *workflow.ListFilter) ([]workflow.Summary, error) {
	sb := psql.Select("id", "name", "exec_type", "updated_at").From("workflows").OrderBy("id")
	if filter.CreatedBy != "" {
		sb = sb.Where(squirrel.Eq{"created_by": filter.CreatedBy})
	}
	if !filter.After.IsZero() {
		sb = sb.Where(squirrel.Gt{"id": filter.After})
	}
	if filter.Limit > 0 {
		sb = sb.Limit(uint64(filter.Limit))
	}
	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list query: %w", err)
	}
	var items []workflow.Summary
	if err := pgxscan.Select(ctx, r.db, &items, query, args...); err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}
	return items, nil
}

type layoutRow struct {
	Edges    []byte `db:"edges"`
	AuxNodes []byte `db:"aux_nodes"`
}

// LoadGraph reads every row of a workflow in one transaction.
func (r *WorkflowRepo) LoadGraph(ctx context.Context, id core.ID) (*workflow.StoredGraph, error) {
	var stored *workflow.StoredGraph
	err := r.withTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		stored, err = loadGraph(ctx, tx, id)
		return err
	})
	return stored, err
}

func loadGraph(ctx context.Context, q querier, id core.ID) (*workflow.StoredGraph, error) {
	wf, err := getWorkflow(ctx, q, id)
	if err != nil {
		return nil, err
	}
	layout, err := loadLayout(ctx, q, id)
	if err != nil {
		return nil, err
	}
	stored := &workflow.StoredGraph{Workflow: wf, Layout: layout, Models: map[core.ID]workflow.ModelRecord{}}
	if err := selectByWorkflow(ctx, q, &stored.Agents, "agents", agentColumns, id); err != nil {
		return nil, err
	}
	if err := selectByWorkflow(ctx, q, &stored.Tools, "registered_tools", toolColumns, id); err != nil {
		return nil, err
	}
	if err := selectByWorkflow(ctx, q, &stored.Tasks, "tasks", taskColumns, id); err != nil {
		return nil, err
	}
	models, err := loadModels(ctx, q, id)
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		stored.Models[m.AgentID] = m
	}
	return stored, nil
}

func loadLayout(ctx context.Context, q querier, id core.ID) (*workflow.Layout, error) {
	query, args, err := psql.Select("edges", "aux_nodes").From("workflows").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building layout query: %w", err)
	}
	var row layoutRow
	if err := pgxscan.Get(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, workflow.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("scanning layout: %w", err)
	}
	layout := &workflow.Layout{}
	if err := unmarshalColumn(row.Edges, &layout.Edges); err != nil {
		return nil, fmt.Errorf("decoding edges: %w", err)
	}
	if err := unmarshalColumn(row.AuxNodes, &layout.AuxNodes); err != nil {
		return nil, fmt.Errorf("decoding aux nodes: %w", err)
	}
	return layout, nil
}

func unmarshalColumn(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func selectByWorkflow(ctx context.Context, q querier, dst any, table string, cols []string, id core.ID) error {
	query, args, err := psql.Select(cols...).
		From(table).
		Where(squirrel.Eq{"workflow_id": id}).
		OrderBy("sort_index", "id").
		ToSql()
	if err != nil {
		return fmt.Errorf("building %s query: %w", table, err)
	}
	if err := pgxscan.Select(ctx, q, dst, query, args...); err != nil {
		return fmt.Errorf("scanning %s: %w", table, err)
	}
	return nil
}

func loadModels(ctx context.Context, q querier, id core.ID) ([]workflow.ModelRecord, error) {
	cols := make([]string, len(modelColumns))
	for i, c := range modelColumns {
		cols[i] = "m." + c
	}
	query, args, err := psql.Select(cols...).
		From("agent_models m").
		Join("agents a ON a.id = m.agent_id").
		Where(squirrel.Eq{"a.workflow_id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building model query: %w", err)
	}
	var models []workflow.ModelRecord
	if err := pgxscan.Select(ctx, q, &models, query, args...); err != nil {
		return nil, fmt.Errorf("scanning agent models: %w", err)
	}
	return models, nil
}

func (r *WorkflowRepo) ListCredentials(ctx context.Context, workflowID core.ID) ([]compiler.Credential, error) {
	query, args, err := psql.Select(
		"c.id", "c.custom_tool_id", "c.access_token", "COALESCE(c.instance_url, '') AS instance_url",
	).
		Distinct().
		From("oauth_connections c").
		Join("registered_tools t ON t.oauth_id = c.id").
		Where(squirrel.Eq{"t.workflow_id": workflowID}).
		OrderBy("c.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building credential query: %w", err)
	}
	var creds []compiler.Credential
	if err := pgxscan.Select(ctx, r.db, &creds, query, args...); err != nil {
		return nil, fmt.Errorf("scanning credentials: %w", err)
	}
	return creds, nil
}

// graphWriter runs the save statements on one transaction.
type graphWriter struct {
	q querier
}

func (w *graphWriter) InsertWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	query, args, err := psql.Insert("workflows").
		Columns("id", "name", "memory_enabled", "agent_type", "exec_type", "created_by").
		Values(wf.ID, wf.Name, wf.MemoryEnabled, wf.AgentType, wf.ExecType, wf.CreatedBy).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building workflow insert: %w", err)
	}
	if err := w.q.QueryRow(ctx, query, args...).Scan(&wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return fmt.Errorf("inserting workflow: %w", err)
	}
	return nil
}

func (w *graphWriter) UpdateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	query, args, err := psql.Update("workflows").
		Set("name", wf.Name).
		Set("memory_enabled", wf.MemoryEnabled).
		Set("agent_type", wf.AgentType).
		Set("exec_type", wf.ExecType).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": wf.ID}).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building workflow update: %w", err)
	}
	if err := w.q.QueryRow(ctx, query, args...).Scan(&wf.CreatedAt, &wf.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return workflow.ErrWorkflowNotFound
		}
		return fmt.Errorf("updating workflow: %w", err)
	}
	return nil
}

type existingRow struct {
	ID   core.ID        `db:"id"`
	Kind graph.NodeKind `db:"kind"`
}

const selectExistingIDs = "SELECT id, 'agent' AS kind FROM agents WHERE workflow_id = $1 " +
	"UNION ALL SELECT id, 'tool' AS kind FROM registered_tools WHERE workflow_id = $1 " +
	"UNION ALL SELECT id, 'task' AS kind FROM tasks WHERE workflow_id = $1"

func (w *graphWriter) ExistingIDs(ctx context.Context, workflowID core.ID) (map[core.ID]graph.NodeKind, error) {
	var rows []existingRow
	if err := pgxscan.Select(ctx, w.q, &rows, selectExistingIDs, workflowID); err != nil {
		return nil, fmt.Errorf("scanning existing ids: %w", err)
	}
	out := make(map[core.ID]graph.NodeKind, len(rows))
	for _, row := range rows {
		out[row.ID] = row.Kind
	}
	return out, nil
}

// upsert inserts a row or rewrites it in place when the id exists and the
// row belongs to the same workflow.
func (w *graphWriter) upsert(ctx context.Context, table string, cols []string, values []any) error {
	updates := make([]string, 0, len(cols)-2)
	for _, c := range cols {
		if c == "id" || c == "workflow_id" {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	suffix := fmt.Sprintf("ON CONFLICT (id) DO UPDATE SET %s WHERE %s.workflow_id = EXCLUDED.workflow_id",
		strings.Join(updates, ", "), table)
	query, args, err := psql.Insert(table).Columns(cols...).Values(values...).Suffix(suffix).ToSql()
	if err != nil {
		return fmt.Errorf("building %s upsert: %w", table, err)
	}
	tag, err := w.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("upserting %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upserting %s %v: %w", table, values[0], ErrForeignRow)
	}
	return nil
}

func (w *graphWriter) UpsertAgent(ctx context.Context, rec *workflow.AgentRecord) error {
	return w.upsert(ctx, "agents", agentColumns, []any{
		rec.ID, rec.WorkflowID, rec.ParentAgentID, rec.SortIndex, rec.PositionX, rec.PositionY,
		rec.Name, rec.Description, rec.Service, rec.Manager, rec.Role, rec.Goal, rec.Backstory,
		rec.SystemPrompt, rec.Tuning,
	})
}

func (w *graphWriter) UpsertAgentModel(ctx context.Context, rec *workflow.ModelRecord) error {
	query, args, err := psql.Insert("agent_models").
		Columns(modelColumns...).
		Values(rec.AgentID, rec.Provider, rec.Model, rec.APIKey, rec.Temperature, rec.MaxTokens, rec.TopP).
		Suffix("ON CONFLICT (agent_id) DO UPDATE SET provider = EXCLUDED.provider, model = EXCLUDED.model, " +
			"api_key = EXCLUDED.api_key, temperature = EXCLUDED.temperature, " +
			"max_tokens = EXCLUDED.max_tokens, top_p = EXCLUDED.top_p").
		ToSql()
	if err != nil {
		return fmt.Errorf("building model upsert: %w", err)
	}
	if _, err := w.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting agent model: %w", err)
	}
	return nil
}

func (w *graphWriter) UpsertTool(ctx context.Context, rec *workflow.ToolRecord) error {
	return w.upsert(ctx, "registered_tools", toolColumns, []any{
		rec.ID, rec.WorkflowID, rec.AgentID, rec.SortIndex, rec.PositionX, rec.PositionY,
		rec.Service, rec.Connected, rec.Object, rec.Operation, rec.ToolName, rec.Description,
		rec.Inputs, rec.OAuthID, rec.OAuthConnectionName, rec.BaseToolID,
	})
}

func (w *graphWriter) UpsertTask(ctx context.Context, rec *workflow.TaskRecord) error {
	return w.upsert(ctx, "tasks", taskColumns, []any{
		rec.ID, rec.WorkflowID, rec.AgentID, rec.SortIndex, rec.PositionX, rec.PositionY,
		rec.Name, rec.Description, rec.ExpectedOutput, rec.AsyncExecution, rec.HumanInput,
		rec.Markdown, rec.GuardrailMaxRetries,
	})
}

func (w *graphWriter) DeleteOrphans(
	ctx context.Context,
	workflowID core.ID,
	kind graph.NodeKind,
	keep []core.ID,
) (int64, error) {
	table, ok := kindTables[kind]
	if !ok {
		return 0, fmt.Errorf("no table for node kind %q", kind)
	}
	db := psql.Delete(table).Where(squirrel.Eq{"workflow_id": workflowID})
	if len(keep) > 0 {
		db = db.Where(squirrel.NotEq{"id": keep})
	}
	query, args, err := db.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building %s delete: %w", table, err)
	}
	tag, err := w.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting orphan %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func (w *graphWriter) SaveLayout(ctx context.Context, workflowID core.ID, layout *workflow.Layout) error {
	edges, err := json.Marshal(nonNil(layout.Edges))
	if err != nil {
		return fmt.Errorf("encoding edges: %w", err)
	}
	aux, err := json.Marshal(nonNil(layout.AuxNodes))
	if err != nil {
		return fmt.Errorf("encoding aux nodes: %w", err)
	}
	query, args, err := psql.Update("workflows").
		Set("edges", edges).
		Set("aux_nodes", aux).
		Where(squirrel.Eq{"id": workflowID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building layout update: %w", err)
	}
	if _, err := w.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("saving layout: %w", err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
