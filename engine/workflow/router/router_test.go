package wfrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/captep/studio/engine/compiler"
	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/infra/server/router"
	"github.com/captep/studio/engine/integration"
	"github.com/captep/studio/engine/runtime"
	"github.com/captep/studio/engine/workflow"
	"github.com/captep/studio/engine/workflow/uc"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	workflow.Repository
	wf        *workflow.Workflow
	summaries []workflow.Summary
}

func (r *stubRepo) GetWorkflow(_ context.Context, id core.ID) (*workflow.Workflow, error) {
	if r.wf != nil && r.wf.ID == id {
		return r.wf, nil
	}
	return nil, workflow.ErrWorkflowNotFound
}

func (r *stubRepo) LoadGraph(ctx context.Context, id core.ID) (*workflow.StoredGraph, error) {
	wf, err := r.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	return &workflow.StoredGraph{Workflow: wf, Layout: &workflow.Layout{}}, nil
}

func (r *stubRepo) ListWorkflows(_ context.Context, filter *workflow.ListFilter) ([]workflow.Summary, error) {
	return r.summaries[:min(filter.Limit, len(r.summaries))], nil
}

func (r *stubRepo) ListCredentials(context.Context, core.ID) ([]compiler.Credential, error) {
	return nil, nil
}

type reportRefresher struct {
	report *integration.RefreshReport
}

func (r reportRefresher) RefreshWorkflow(context.Context, core.ID) (*integration.RefreshReport, error) {
	return r.report, nil
}

type nopRuntime struct {
	cancelErr error
}

func (nopRuntime) Dispatch(context.Context, *compiler.Artifacts) error { return nil }
func (r nopRuntime) Cancel(context.Context, core.ID) error             { return r.cancelErr }

func newEngine(repo *stubRepo, report *integration.RefreshReport) *gin.Engine {
	return newEngineWithRuntime(repo, report, nopRuntime{})
}

func newEngineWithRuntime(repo *stubRepo, report *integration.RefreshReport, rt uc.Runtime) *gin.Engine {
	gin.SetMode(gin.TestMode)
	assembler := compiler.NewAssembler(compiler.NewToolBindingResolver(nil))
	factory := uc.NewFactory(repo, reportRefresher{report: report}, assembler, rt, nil)
	engine := gin.New()
	Register(engine.Group("/api/v0"), factory)
	return engine
}

func serve(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWorkflowRoutes(t *testing.T) {
	t.Run("Should reject documents with unknown node types", func(t *testing.T) {
		engine := newEngine(&stubRepo{}, nil)
		body := `{"name":"x","nodes":[{"id":"n-1","nodeType":"mystery node","data":{}}],"edges":[]}`
		w := serve(engine, http.MethodPost, "/api/v0/workflows", body)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Should reject malformed workflow ids", func(t *testing.T) {
		engine := newEngine(&stubRepo{}, nil)
		w := serve(engine, http.MethodGet, "/api/v0/workflows/not-a-ksuid", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Should return 404 for unknown workflows", func(t *testing.T) {
		engine := newEngine(&stubRepo{}, nil)
		w := serve(engine, http.MethodGet, "/api/v0/workflows/"+core.MustNewID().String(), "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, router.ErrNotFoundCode, decodeProblem(t, w)["code"])
	})

	t.Run("Should paginate the listing with a Link header", func(t *testing.T) {
		repo := &stubRepo{summaries: []workflow.Summary{
			{ID: core.MustNewID(), Name: "a"},
			{ID: core.MustNewID(), Name: "b"},
			{ID: core.MustNewID(), Name: "c"},
		}}
		engine := newEngine(repo, nil)
		w := serve(engine, http.MethodGet, "/api/v0/workflows?limit=2&created_by=u1", "")
		require.Equal(t, http.StatusOK, w.Code)
		var out WorkflowsListResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		assert.Len(t, out.Workflows, 2)
		assert.NotEmpty(t, out.NextCursor)
		assert.Contains(t, w.Header().Get("Link"), `rel="next"`)
	})

	t.Run("Should answer 409 with connection ids when re-authorization is needed", func(t *testing.T) {
		wf := &workflow.Workflow{ID: core.MustNewID(), Name: "wf"}
		report := &integration.RefreshReport{Results: []integration.RefreshResult{
			{ConnectionID: "conn-1", Outcome: integration.OutcomeReauthRequired, Expired: true},
		}}
		engine := newEngine(&stubRepo{wf: wf}, report)
		w := serve(engine, http.MethodPost, "/api/v0/workflows/"+wf.ID.String()+"/compile", "")
		require.Equal(t, http.StatusConflict, w.Code)
		body := decodeProblem(t, w)
		assert.Equal(t, "needs_reauth", body["code"])
		assert.Equal(t, []any{"conn-1"}, body["connection_ids"])
	})

	t.Run("Should answer 503 when an expired token could not be refreshed", func(t *testing.T) {
		wf := &workflow.Workflow{ID: core.MustNewID(), Name: "wf"}
		report := &integration.RefreshReport{Results: []integration.RefreshResult{
			{ConnectionID: "conn-1", Outcome: integration.OutcomeTransient, Expired: true},
		}}
		engine := newEngine(&stubRepo{wf: wf}, report)
		w := serve(engine, http.MethodPost, "/api/v0/workflows/"+wf.ID.String()+"/compile", "")
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "transient", decodeProblem(t, w)["code"])
	})

	t.Run("Should accept a cancel for a known workflow", func(t *testing.T) {
		wf := &workflow.Workflow{ID: core.MustNewID(), Name: "wf"}
		engine := newEngine(&stubRepo{wf: wf}, nil)
		w := serve(engine, http.MethodPost, "/api/v0/workflows/"+wf.ID.String()+"/cancel", "")
		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("Should answer 501 when the runtime has no cancel endpoint", func(t *testing.T) {
		wf := &workflow.Workflow{ID: core.MustNewID(), Name: "wf"}
		engine := newEngineWithRuntime(&stubRepo{wf: wf}, nil, nopRuntime{cancelErr: runtime.ErrCancelUnsupported})
		w := serve(engine, http.MethodPost, "/api/v0/workflows/"+wf.ID.String()+"/cancel", "")
		assert.Equal(t, http.StatusNotImplemented, w.Code)
		assert.Equal(t, router.ErrNotImplementedCode, decodeProblem(t, w)["code"])
	})
}
