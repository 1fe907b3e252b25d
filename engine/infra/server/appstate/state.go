package appstate

import (
	"context"
	"errors"

	"github.com/captep/studio/engine/infra/cache"
	"github.com/captep/studio/engine/infra/monitoring"
	"github.com/captep/studio/engine/infra/postgres"
	intuc "github.com/captep/studio/engine/integration/uc"
	wfuc "github.com/captep/studio/engine/workflow/uc"
	"github.com/gin-gonic/gin"
)

type stateKey struct{}

var (
	ErrNoState        = errors.New("app state not found in context")
	errStoreRequired  = errors.New("app state: database store is required")
	errMissingFactory = errors.New("app state: use case factories are required")
)

// BaseDeps are the infrastructure handles shared by every request. Redis is
// nil when the in-process fallbacks are in use.
type BaseDeps struct {
	Store      *postgres.Store
	Redis      *cache.Redis
	Monitoring *monitoring.Service
}

func NewBaseDeps(store *postgres.Store, redis *cache.Redis, mon *monitoring.Service) BaseDeps {
	return BaseDeps{Store: store, Redis: redis, Monitoring: mon}
}

// State is what handlers reach through the request context.
type State struct {
	BaseDeps
	Workflows    *wfuc.Factory
	Integrations *intuc.Factory
}

func NewState(deps BaseDeps, workflows *wfuc.Factory, integrations *intuc.Factory) (*State, error) {
	switch {
	case deps.Store == nil:
		return nil, errStoreRequired
	case workflows == nil, integrations == nil:
		return nil, errMissingFactory
	}
	return &State{BaseDeps: deps, Workflows: workflows, Integrations: integrations}, nil
}

func (s *State) RedisEnabled() bool { return s.Redis != nil }

func WithState(ctx context.Context, state *State) context.Context {
	return context.WithValue(ctx, stateKey{}, state)
}

func GetState(ctx context.Context) (*State, error) {
	if state, ok := ctx.Value(stateKey{}).(*State); ok && state != nil {
		return state, nil
	}
	return nil, ErrNoState
}

// StateMiddleware makes state available to every handler below it.
func StateMiddleware(state *State) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithState(c.Request.Context(), state))
		c.Next()
	}
}
