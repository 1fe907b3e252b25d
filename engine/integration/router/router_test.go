package introuter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/infra/cache"
	"github.com/captep/studio/engine/infra/pubsub"
	"github.com/captep/studio/engine/integration"
	"github.com/captep/studio/engine/integration/uc"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	integration.Repository
	providers   map[string]*integration.Provider
	connections map[core.ID]*integration.Connection
}

func (r *stubRepo) GetProvider(_ context.Context, platform string) (*integration.Provider, error) {
	if p, ok := r.providers[platform]; ok {
		return p, nil
	}
	return nil, integration.ErrProviderNotFound
}

func (r *stubRepo) CreateConnection(_ context.Context, conn *integration.Connection) error {
	r.connections[conn.ID] = conn
	return nil
}

func (r *stubRepo) FinalizeConnection(
	_ context.Context,
	id core.ID,
	name, createdBy string,
) (*integration.Connection, error) {
	conn, ok := r.connections[id]
	if !ok {
		return nil, integration.ErrConnectionNotFound
	}
	conn.Name = &name
	conn.CreatedBy = &createdBy
	return conn, nil
}

type fixture struct {
	engine *gin.Engine
	repo   *stubRepo
	states *cache.MemoryStateStore
}

func setup(t *testing.T, tokenURL string) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := &stubRepo{
		providers: map[string]*integration.Provider{
			"crm": {CustomToolID: "ct-crm", ClientID: "cid", AuthorizeURL: "https://crm.test/auth", TokenURL: tokenURL},
		},
		connections: map[core.ID]*integration.Connection{},
	}
	states := cache.NewMemoryStateStore(10, time.Minute)
	awaiter := integration.NewAwaiter(pubsub.NewMemoryProvider(), cache.NewMemoryResultStore(10, time.Minute), 20*time.Millisecond)
	factory := uc.NewFactory(
		repo,
		states,
		integration.NewTokenClient(time.Second),
		awaiter,
		nil,
		uc.Settings{RefreshBuffer: 5 * time.Minute, AuthorizationTimeout: time.Minute},
	)
	engine := gin.New()
	Register(engine.Group("/api/v0"), factory, []string{" ", "http://app.test"})
	return &fixture{engine: engine, repo: repo, states: states}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestAuthorizeRoute(t *testing.T) {
	t.Run("Should return the authorize url and state", func(t *testing.T) {
		f := setup(t, "")
		w := f.do(http.MethodPost, "/api/v0/integration/authorize", `{"platform":"crm"}`)
		require.Equal(t, http.StatusOK, w.Code)
		var out uc.AuthorizeOutput
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		assert.True(t, out.Status)
		assert.True(t, strings.HasPrefix(out.AuthorizeURL, "https://crm.test/auth?"))
		assert.Contains(t, out.AuthorizeURL, "state="+out.State)
	})

	t.Run("Should return 404 for unknown platforms", func(t *testing.T) {
		f := setup(t, "")
		w := f.do(http.MethodPost, "/api/v0/integration/authorize", `{"platform":"nope"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")
	})

	t.Run("Should return 400 without platform", func(t *testing.T) {
		f := setup(t, "")
		w := f.do(http.MethodPost, "/api/v0/integration/authorize", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCallbackRoute(t *testing.T) {
	t.Run("Should render a page posting the connection id to the opener", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"at","expires_in":3600}`))
		}))
		defer srv.Close()
		f := setup(t, srv.URL)
		require.NoError(t, f.states.Put(t.Context(), "st", &integration.PendingAuthorization{Platform: "crm"}, time.Minute))
		w := f.do(http.MethodGet, "/api/v0/integration/oauth/crm/callback?code=c&state=st", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
		body := w.Body.String()
		assert.Contains(t, body, "window.opener.postMessage")
		assert.Contains(t, body, integration.SuccessMessage)
		require.Len(t, f.repo.connections, 1)
		for id := range f.repo.connections {
			assert.Contains(t, body, id.String())
		}
	})

	t.Run("Should post the result only to the configured origin", func(t *testing.T) {
		f := setup(t, "")
		w := f.do(http.MethodGet, "/api/v0/integration/oauth/crm/callback?code=c&state=missing", "")
		body := w.Body.String()
		assert.Contains(t, body, "app.test")
		assert.NotContains(t, body, `"*"`)
	})

	t.Run("Should render a failure page for unknown state", func(t *testing.T) {
		f := setup(t, "")
		w := f.do(http.MethodGet, "/api/v0/integration/oauth/crm/callback?code=c&state=missing", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), `"status":false`)
	})
}

func TestFinalizeRoute(t *testing.T) {
	t.Run("Should label an existing connection", func(t *testing.T) {
		f := setup(t, "")
		f.repo.connections["c1"] = &integration.Connection{ID: "c1"}
		w := f.do(http.MethodPost, "/api/v0/integration/connections", `{"id":"c1","name":"Sales","created_by":"u"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"name":"Sales"`)
	})

	t.Run("Should return 404 for unknown connections", func(t *testing.T) {
		f := setup(t, "")
		w := f.do(http.MethodPost, "/api/v0/integration/connections", `{"id":"c9","name":"Sales"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func authorize(t *testing.T, f *fixture) string {
	t.Helper()
	w := f.do(http.MethodPost, "/api/v0/integration/authorize", `{"platform":"crm"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var out uc.AuthorizeOutput
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.State
}

func TestAwaitRoute(t *testing.T) {
	t.Run("Should time out when nobody resolves the state", func(t *testing.T) {
		f := setup(t, "")
		state := authorize(t, f)
		w := f.do(http.MethodGet, "/api/v0/integration/authorizations/"+state, "")
		assert.Equal(t, http.StatusRequestTimeout, w.Code)
	})

	t.Run("Should return 404 for states that were never issued", func(t *testing.T) {
		f := setup(t, "")
		w := f.do(http.MethodGet, "/api/v0/integration/authorizations/forged", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Should return the outcome of a callback that finished first", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"at","expires_in":3600}`))
		}))
		defer srv.Close()
		f := setup(t, srv.URL)
		state := authorize(t, f)
		w := f.do(http.MethodGet, "/api/v0/integration/oauth/crm/callback?code=c&state="+state, "")
		require.Equal(t, http.StatusOK, w.Code)
		w = f.do(http.MethodGet, "/api/v0/integration/authorizations/"+state, "")
		require.Equal(t, http.StatusOK, w.Code)
		var got integration.AuthorizationResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.True(t, got.Status)
		require.Len(t, f.repo.connections, 1)
		for id := range f.repo.connections {
			assert.Equal(t, id.String(), got.Data)
		}
	})
}
