package ratelimit

import (
	"sort"
	"strconv"
	"strings"

	"github.com/captep/studio/engine/infra/server/router"
	"github.com/captep/studio/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/otel/metric"
)

const scopeGlobal = "global"

type routeLimiter struct {
	prefix  string
	limiter *limiter.Limiter
}

// Manager applies the global budget and the per-route budgets. Route budgets
// are checked instead of the global one, longest prefix first.
type Manager struct {
	config  *Config
	global  *limiter.Limiter
	routes  []routeLimiter
	blocked *blockCounter
}

// NewManager builds limiters on Redis when client is set, in memory otherwise.
func NewManager(cfg *Config, client redis.UniversalClient) (*Manager, error) {
	return NewManagerWithMetrics(cfg, client, nil)
}

func NewManagerWithMetrics(cfg *Config, client redis.UniversalClient, meter metric.Meter) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := newStore(cfg, client)
	if err != nil {
		return nil, err
	}
	opts := []limiter.Option{limiter.WithTrustForwardHeader(cfg.TrustForwardHeader)}
	m := &Manager{
		config:  cfg,
		global:  limiter.New(store, cfg.GlobalRate.ToLimiterRate(), opts...),
		blocked: newBlockCounter(meter),
	}
	for prefix, rate := range cfg.RouteRates {
		m.routes = append(m.routes, routeLimiter{
			prefix:  prefix,
			limiter: limiter.New(store, rate.ToLimiterRate(), opts...),
		})
	}
	sort.Slice(m.routes, func(i, j int) bool {
		return len(m.routes[i].prefix) > len(m.routes[j].prefix)
	})
	return m, nil
}

func newStore(cfg *Config, client redis.UniversalClient) (limiter.Store, error) {
	opts := limiter.StoreOptions{Prefix: cfg.Prefix, CleanUpInterval: limiter.DefaultCleanUpInterval}
	if client == nil {
		return memory.NewStoreWithOptions(opts), nil
	}
	return sredis.NewStoreWithOptions(client, opts)
}

func (m *Manager) pick(path string) (*limiter.Limiter, string) {
	for _, r := range m.routes {
		if strings.HasPrefix(path, r.prefix) {
			return r.limiter, r.prefix
		}
	}
	return m.global, scopeGlobal
}

func (m *Manager) excluded(path string) bool {
	for _, p := range m.config.ExcludedPaths {
		if path == p {
			return true
		}
	}
	return false
}

func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if m.excluded(path) {
			c.Next()
			return
		}
		lim, scope := m.pick(path)
		key := scope + ":" + lim.GetIPKey(c.Request)
		ctx := c.Request.Context()
		res, err := lim.Get(ctx, key)
		if err != nil {
			// A broken limiter store must not take the API down.
			logger.FromContext(ctx).Warn("Rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if !m.config.DisableHeaders {
			c.Header("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
			c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(res.Reset, 10))
		}
		if res.Reached {
			m.blocked.inc(ctx, scope)
			router.RespondCode(c, router.ErrRateLimitedCode, "rate limit exceeded")
			return
		}
		c.Next()
	}
}
