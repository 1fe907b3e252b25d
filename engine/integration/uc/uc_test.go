package uc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/infra/cache"
	"github.com/captep/studio/engine/infra/pubsub"
	"github.com/captep/studio/engine/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

type fakeRepo struct {
	mu          sync.Mutex
	providers   map[string]*integration.Provider
	connections map[core.ID]*integration.Connection
	candidates  []*integration.RefreshCandidate
	updated     map[core.ID]*integration.Grant
	reauth      map[core.ID]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		providers:   map[string]*integration.Provider{},
		connections: map[core.ID]*integration.Connection{},
		updated:     map[core.ID]*integration.Grant{},
		reauth:      map[core.ID]bool{},
	}
}

func (r *fakeRepo) GetProvider(_ context.Context, platform string) (*integration.Provider, error) {
	p, ok := r.providers[platform]
	if !ok {
		return nil, integration.ErrProviderNotFound
	}
	return p, nil
}

func (r *fakeRepo) CreateConnection(_ context.Context, conn *integration.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.ID] = conn
	return nil
}

func (r *fakeRepo) GetConnection(_ context.Context, id core.ID) (*integration.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.connections[id]
	if !ok {
		return nil, integration.ErrConnectionNotFound
	}
	return c, nil
}

func (r *fakeRepo) FinalizeConnection(_ context.Context, id core.ID, name, createdBy string) (*integration.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.connections[id]
	if !ok {
		return nil, integration.ErrConnectionNotFound
	}
	c.Name = &name
	c.CreatedBy = &createdBy
	return c, nil
}

func (r *fakeRepo) ListRefreshCandidates(context.Context, core.ID) ([]*integration.RefreshCandidate, error) {
	return r.candidates, nil
}

func (r *fakeRepo) UpdateTokens(_ context.Context, id core.ID, grant *integration.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated[id] = grant
	return nil
}

func (r *fakeRepo) MarkReauthRequired(_ context.Context, id core.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reauth[id] = true
	return nil
}

func tokenServer(t *testing.T, handle func(form url.Values) (int, map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		status, body := handle(r.PostForm)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTokens() *integration.TokenClient {
	return integration.NewTokenClient(time.Second, integration.WithClock(func() time.Time { return now }))
}

func TestAuthorize(t *testing.T) {
	t.Run("Should store state with a PKCE verifier and build the url", func(t *testing.T) {
		repo := newFakeRepo()
		repo.providers["gmail"] = &integration.Provider{
			CustomToolID: "ct-gmail",
			ClientID:     "cid",
			AuthorizeURL: "https://accounts.google.com/o/oauth2/auth",
			PKCE:         true,
		}
		states := cache.NewMemoryStateStore(10, time.Minute)
		out, err := NewAuthorize(repo, states, newTokens(), nil, time.Minute, " gmail ").Execute(t.Context())
		require.NoError(t, err)
		assert.True(t, out.Status)
		assert.Equal(t, "gmail", out.Platform)
		assert.Len(t, out.State, 32)
		u, err := url.Parse(out.AuthorizeURL)
		require.NoError(t, err)
		assert.Equal(t, out.State, u.Query().Get("state"))
		assert.NotEmpty(t, u.Query().Get("code_challenge"))
		pending, err := states.Take(t.Context(), out.State)
		require.NoError(t, err)
		assert.Equal(t, "gmail", pending.Platform)
		assert.NotEmpty(t, pending.Verifier)
	})

	t.Run("Should store state without verifier for non PKCE providers", func(t *testing.T) {
		repo := newFakeRepo()
		repo.providers["crm"] = &integration.Provider{CustomToolID: "ct-crm", AuthorizeURL: "https://crm.test/auth"}
		states := cache.NewMemoryStateStore(10, time.Minute)
		out, err := NewAuthorize(repo, states, newTokens(), nil, time.Minute, "crm").Execute(t.Context())
		require.NoError(t, err)
		pending, err := states.Take(t.Context(), out.State)
		require.NoError(t, err)
		assert.Empty(t, pending.Verifier)
	})

	t.Run("Should reject unknown providers and empty platforms", func(t *testing.T) {
		states := cache.NewMemoryStateStore(10, time.Minute)
		_, err := NewAuthorize(newFakeRepo(), states, newTokens(), nil, time.Minute, "nope").Execute(t.Context())
		assert.ErrorIs(t, err, integration.ErrProviderNotFound)
		_, err = NewAuthorize(newFakeRepo(), states, newTokens(), nil, time.Minute, "").Execute(t.Context())
		assert.ErrorIs(t, err, integration.ErrMissingPlatform)
	})

	t.Run("Should track the issued state for waiters", func(t *testing.T) {
		repo := newFakeRepo()
		repo.providers["crm"] = &integration.Provider{CustomToolID: "ct-crm", AuthorizeURL: "https://crm.test/auth"}
		states := cache.NewMemoryStateStore(10, time.Minute)
		awaiter := integration.NewAwaiter(pubsub.NewMemoryProvider(), cache.NewMemoryResultStore(10, time.Minute), time.Second)
		out, err := NewAuthorize(repo, states, newTokens(), awaiter, time.Minute, "crm").Execute(t.Context())
		require.NoError(t, err)
		pending, err := awaiter.Subscribe(t.Context(), out.State)
		require.NoError(t, err)
		require.NoError(t, pending.Close())
		_, err = awaiter.Subscribe(t.Context(), "other")
		assert.ErrorIs(t, err, integration.ErrStateNotFound)
	})
}

func callbackSetup(t *testing.T, tokenURL string) (*fakeRepo, *cache.MemoryStateStore, *integration.Awaiter) {
	t.Helper()
	repo := newFakeRepo()
	repo.providers["crm"] = &integration.Provider{CustomToolID: "ct-crm", ClientID: "cid", TokenURL: tokenURL}
	states := cache.NewMemoryStateStore(10, time.Minute)
	require.NoError(t, states.Put(t.Context(), "st-1", &integration.PendingAuthorization{
		Platform: "crm",
		Verifier: "v-1",
	}, time.Minute))
	awaiter := integration.NewAwaiter(pubsub.NewMemoryProvider(), cache.NewMemoryResultStore(10, time.Minute), time.Second)
	require.NoError(t, awaiter.Track(t.Context(), "st-1"))
	return repo, states, awaiter
}

func TestHandleCallback(t *testing.T) {
	t.Run("Should exchange the code, store the connection and notify the awaiter", func(t *testing.T) {
		srv := tokenServer(t, func(form url.Values) (int, map[string]any) {
			assert.Equal(t, "v-1", form.Get("code_verifier"))
			return http.StatusOK, map[string]any{
				"access_token":  "at",
				"refresh_token": "rt",
				"instance_url":  "https://eu.crm.test",
				"expires_in":    3600,
			}
		})
		repo, states, awaiter := callbackSetup(t, srv.URL)
		pending, err := awaiter.Subscribe(t.Context(), "st-1")
		require.NoError(t, err)
		in := &CallbackInput{Platform: "crm", Code: "code", State: "st-1"}
		result, err := NewHandleCallback(repo, states, newTokens(), awaiter, in).Execute(t.Context())
		require.NoError(t, err)
		assert.True(t, result.Status)
		assert.Equal(t, integration.SuccessMessage, result.Message)
		conn, err := repo.GetConnection(t.Context(), core.ID(result.Data))
		require.NoError(t, err)
		assert.Equal(t, "ct-crm", conn.CustomToolID)
		require.NotNil(t, conn.RefreshToken)
		assert.Equal(t, "rt", *conn.RefreshToken)
		require.NotNil(t, conn.InstanceURL)
		require.NotNil(t, conn.ExpiresAt)
		assert.True(t, conn.ExpiresAt.Equal(now.Add(time.Hour)))
		got, err := pending.Wait(t.Context())
		require.NoError(t, err)
		assert.Equal(t, result, got)
	})

	t.Run("Should hand the result to a waiter that arrives after the callback", func(t *testing.T) {
		srv := tokenServer(t, func(url.Values) (int, map[string]any) {
			return http.StatusOK, map[string]any{"access_token": "at", "expires_in": 3600}
		})
		repo, states, awaiter := callbackSetup(t, srv.URL)
		in := &CallbackInput{Platform: "crm", Code: "code", State: "st-1"}
		result, err := NewHandleCallback(repo, states, newTokens(), awaiter, in).Execute(t.Context())
		require.NoError(t, err)
		got, err := NewAwaitAuthorization(awaiter, "st-1").Execute(t.Context())
		require.NoError(t, err)
		assert.Equal(t, result, got)
	})

	t.Run("Should accept a state only once", func(t *testing.T) {
		srv := tokenServer(t, func(url.Values) (int, map[string]any) {
			return http.StatusOK, map[string]any{"access_token": "at"}
		})
		repo, states, awaiter := callbackSetup(t, srv.URL)
		in := &CallbackInput{Platform: "crm", Code: "code", State: "st-1"}
		_, err := NewHandleCallback(repo, states, newTokens(), awaiter, in).Execute(t.Context())
		require.NoError(t, err)
		_, err = NewHandleCallback(repo, states, newTokens(), awaiter, in).Execute(t.Context())
		assert.ErrorIs(t, err, integration.ErrStateNotFound)
		got, err := NewAwaitAuthorization(awaiter, "st-1").Execute(t.Context())
		require.NoError(t, err)
		assert.True(t, got.Status)
	})

	t.Run("Should reject a platform mismatch", func(t *testing.T) {
		repo, states, awaiter := callbackSetup(t, "http://unused.test")
		in := &CallbackInput{Platform: "gmail", Code: "code", State: "st-1"}
		_, err := NewHandleCallback(repo, states, newTokens(), awaiter, in).Execute(t.Context())
		assert.ErrorIs(t, err, integration.ErrPlatformMismatch)
	})

	t.Run("Should report provider denial to the awaiter", func(t *testing.T) {
		repo, states, awaiter := callbackSetup(t, "http://unused.test")
		pending, err := awaiter.Subscribe(t.Context(), "st-1")
		require.NoError(t, err)
		in := &CallbackInput{Platform: "crm", State: "st-1", Error: "access_denied"}
		_, err = NewHandleCallback(repo, states, newTokens(), awaiter, in).Execute(t.Context())
		require.Error(t, err)
		got, err := pending.Wait(t.Context())
		require.NoError(t, err)
		assert.False(t, got.Status)
		assert.Contains(t, got.Message, "access_denied")
		_, err = states.Take(t.Context(), "st-1")
		assert.ErrorIs(t, err, integration.ErrStateNotFound)
	})

	t.Run("Should require a code", func(t *testing.T) {
		repo, states, awaiter := callbackSetup(t, "http://unused.test")
		in := &CallbackInput{Platform: "crm", State: "st-1"}
		_, err := NewHandleCallback(repo, states, newTokens(), awaiter, in).Execute(t.Context())
		assert.ErrorIs(t, err, integration.ErrMissingCode)
	})
}

func TestFinalizeConnection(t *testing.T) {
	t.Run("Should label an existing connection", func(t *testing.T) {
		repo := newFakeRepo()
		repo.connections["c1"] = &integration.Connection{ID: "c1"}
		conn, err := NewFinalizeConnection(repo, &FinalizeInput{ID: "c1", Name: " Work ", CreatedBy: "u1"}).
			Execute(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "Work", *conn.Name)
		assert.Equal(t, "u1", *conn.CreatedBy)
	})

	t.Run("Should return not found for unknown ids", func(t *testing.T) {
		_, err := NewFinalizeConnection(newFakeRepo(), &FinalizeInput{ID: "nope", Name: "x"}).Execute(t.Context())
		assert.ErrorIs(t, err, integration.ErrConnectionNotFound)
	})
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []integration.RefreshOutcome
}

func (m *recordingMetrics) RecordRefresh(_ context.Context, outcome integration.RefreshOutcome, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func at(d time.Duration) *time.Time {
	v := now.Add(d)
	return &v
}

func TestRefreshWorkflowTokens(t *testing.T) {
	t.Run("Should skip, refresh and flag connections independently", func(t *testing.T) {
		srv := tokenServer(t, func(form url.Values) (int, map[string]any) {
			switch form.Get("refresh_token") {
			case "rt-soon":
				return http.StatusOK, map[string]any{
					"access_token":  "at-new",
					"refresh_token": "rt-rotated",
					"expires_in":    3600,
				}
			case "rt-revoked":
				return http.StatusBadRequest, map[string]any{"error": "invalid_grant"}
			default:
				return http.StatusInternalServerError, map[string]any{"error": "server_error"}
			}
		})
		repo := newFakeRepo()
		repo.candidates = []*integration.RefreshCandidate{
			{ConnectionID: "fresh", RefreshToken: "rt-fresh", ExpiresAt: at(10 * time.Minute), TokenURL: srv.URL},
			{ConnectionID: "soon", RefreshToken: "rt-soon", ExpiresAt: at(4 * time.Minute), TokenURL: srv.URL},
			{ConnectionID: "revoked", RefreshToken: "rt-revoked", ExpiresAt: at(-time.Hour), TokenURL: srv.URL},
			{ConnectionID: "flaky", RefreshToken: "rt-flaky", ExpiresAt: at(time.Minute), TokenURL: srv.URL},
		}
		metrics := &recordingMetrics{}
		report, err := NewRefreshWorkflowTokens(repo, newTokens(), 5*time.Minute, metrics).Execute(t.Context(), "wf")
		require.NoError(t, err)
		require.Len(t, report.Results, 4)
		byID := map[core.ID]integration.RefreshResult{}
		for _, r := range report.Results {
			byID[r.ConnectionID] = r
		}
		assert.Equal(t, integration.OutcomeSkipped, byID["fresh"].Outcome)
		assert.Equal(t, integration.OutcomeRefreshed, byID["soon"].Outcome)
		assert.Equal(t, integration.OutcomeReauthRequired, byID["revoked"].Outcome)
		assert.True(t, byID["revoked"].Expired)
		assert.Equal(t, integration.OutcomeTransient, byID["flaky"].Outcome)
		assert.False(t, byID["flaky"].Expired)

		require.Contains(t, repo.updated, core.ID("soon"))
		assert.Equal(t, "at-new", repo.updated["soon"].AccessToken)
		assert.Equal(t, "rt-rotated", repo.updated["soon"].RefreshToken)
		assert.NotContains(t, repo.updated, core.ID("fresh"))
		assert.NotContains(t, repo.updated, core.ID("flaky"))
		assert.True(t, repo.reauth["revoked"])
		assert.False(t, repo.reauth["flaky"])
		assert.Len(t, metrics.outcomes, 4)
	})

	t.Run("Should return an empty report without connections", func(t *testing.T) {
		report, err := NewRefreshWorkflowTokens(newFakeRepo(), newTokens(), time.Minute, nil).Execute(t.Context(), "wf")
		require.NoError(t, err)
		assert.Empty(t, report.Results)
	})

	t.Run("Should preserve candidate order in the report", func(t *testing.T) {
		repo := newFakeRepo()
		for i := range 5 {
			repo.candidates = append(repo.candidates, &integration.RefreshCandidate{
				ConnectionID: core.ID(fmt.Sprintf("c%d", i)),
				ExpiresAt:    at(time.Hour),
			})
		}
		report, err := NewRefreshWorkflowTokens(repo, newTokens(), time.Minute, nil).Execute(t.Context(), "wf")
		require.NoError(t, err)
		for i, r := range report.Results {
			assert.Equal(t, core.ID(fmt.Sprintf("c%d", i)), r.ConnectionID)
		}
	})
}
