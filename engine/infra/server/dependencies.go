package server

import (
	"context"
	"fmt"
	"time"

	"github.com/captep/studio/engine/compiler"
	"github.com/captep/studio/engine/infra/cache"
	"github.com/captep/studio/engine/infra/monitoring"
	"github.com/captep/studio/engine/infra/postgres"
	"github.com/captep/studio/engine/infra/pubsub"
	"github.com/captep/studio/engine/infra/server/appstate"
	"github.com/captep/studio/engine/integration"
	intuc "github.com/captep/studio/engine/integration/uc"
	"github.com/captep/studio/engine/runtime"
	wfuc "github.com/captep/studio/engine/workflow/uc"
	"github.com/captep/studio/pkg/config"
	"github.com/captep/studio/pkg/logger"
)

func (s *Server) setupDependencies() (*appstate.State, error) {
	cfg := config.FromContext(s.ctx)
	mon := s.setupMonitoring(cfg)
	store, err := s.setupStore(cfg)
	if err != nil {
		return nil, err
	}
	redisCache, err := s.setupRedis(cfg)
	if err != nil {
		return nil, err
	}
	metrics := monitoring.NewDomainMetrics(mon.Meter())
	integrations, err := buildIntegrationFactory(cfg, store, redisCache, metrics)
	if err != nil {
		return nil, err
	}
	workflows, catalog, err := buildWorkflowFactory(cfg, store, integrations, metrics)
	if err != nil {
		return nil, err
	}
	s.addCleanup(catalog.Close)
	deps := appstate.NewBaseDeps(store, redisCache, mon)
	state, err := appstate.NewState(deps, workflows, integrations)
	if err != nil {
		return nil, fmt.Errorf("failed to create app state: %w", err)
	}
	return state, nil
}

func (s *Server) setupMonitoring(cfg *config.Config) *monitoring.Service {
	log := logger.FromContext(s.ctx)
	start := time.Now()
	mon := monitoring.NewServiceOrNoop(s.ctx, monitoring.FromAppConfig(&cfg.Monitoring))
	s.monitoring = mon
	if !mon.IsInitialized() {
		log.Info("Monitoring is disabled", "duration", time.Since(start))
		return mon
	}
	// pool and rate limiter instruments resolve the global provider
	mon.SetAsGlobal()
	log.Info("Monitoring service initialized", "path", mon.Path(), "duration", time.Since(start))
	s.addCleanup(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), monitoringShutdownTimeout)
		defer cancel()
		if err := mon.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown monitoring service", "error", err)
		}
	})
	return mon
}

func (s *Server) setupStore(cfg *config.Config) (*postgres.Store, error) {
	log := logger.FromContext(s.ctx)
	start := time.Now()
	pgCfg := postgres.FromAppConfig(&cfg.Database)
	if cfg.Database.AutoMigrate {
		if err := postgres.ApplyMigrationsWithLock(s.ctx, pgCfg.ConnString); err != nil {
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	}
	store, err := postgres.NewStore(s.ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	s.addCleanup(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), dbShutdownTimeout)
		defer cancel()
		if err := store.Close(ctx); err != nil {
			log.Error("Failed to close database store", "error", err)
		}
	})
	log.Info("Database store initialized",
		"host", cfg.Database.Host,
		"database", cfg.Database.DBName,
		"auto_migrate", cfg.Database.AutoMigrate,
		"duration", time.Since(start),
	)
	return store, nil
}

// setupRedis returns nil when Redis is disabled. An enabled but unreachable
// Redis fails startup.
func (s *Server) setupRedis(cfg *config.Config) (*cache.Redis, error) {
	if !cfg.Redis.Enabled {
		logger.FromContext(s.ctx).Info("Redis disabled, using in-process state and pub/sub")
		return nil, nil
	}
	r, err := cache.NewRedis(s.ctx, cache.FromAppConfig(&cfg.Redis))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	s.addCleanup(func() { _ = r.Close() })
	return r, nil
}

func buildIntegrationFactory(
	cfg *config.Config,
	store *postgres.Store,
	redisCache *cache.Redis,
	metrics integration.Metrics,
) (*intuc.Factory, error) {
	var states integration.StateStore
	var results integration.ResultStore
	var provider pubsub.Provider
	if redisCache != nil {
		states = cache.NewRedisStateStore(redisCache.Client())
		results = cache.NewRedisResultStore(redisCache.Client())
		p, err := pubsub.NewRedisProvider(redisCache.Client())
		if err != nil {
			return nil, fmt.Errorf("failed to create redis pub/sub: %w", err)
		}
		provider = p
	} else {
		states = cache.NewMemoryStateStore(cfg.OAuth.StateCapacity, cfg.OAuth.AuthorizationTimeout)
		results = cache.NewMemoryResultStore(cfg.OAuth.StateCapacity, cfg.OAuth.AuthorizationTimeout)
		provider = pubsub.NewMemoryProvider()
	}
	return intuc.NewFactory(
		postgres.NewIntegrationRepo(store.DB()),
		states,
		integration.NewTokenClient(cfg.OAuth.HTTPTimeout),
		integration.NewAwaiter(provider, results, cfg.OAuth.AuthorizationTimeout),
		metrics,
		intuc.Settings{
			RefreshBuffer:        cfg.OAuth.RefreshBuffer,
			AuthorizationTimeout: cfg.OAuth.AuthorizationTimeout,
		},
	), nil
}

func buildWorkflowFactory(
	cfg *config.Config,
	store *postgres.Store,
	refresher wfuc.Refresher,
	metrics *monitoring.DomainMetrics,
) (*wfuc.Factory, *compiler.CachedCatalog, error) {
	catalog, err := compiler.NewCachedCatalog(postgres.NewCatalogRepo(store.DB()), cfg.Catalog.CacheTTL)
	if err != nil {
		return nil, nil, err
	}
	assembler := compiler.NewAssembler(compiler.NewToolBindingResolver(catalog))
	rtCfg := runtime.FromAppConfig(&cfg.Runtime)
	client := runtime.NewBreaker(runtime.NewClient(rtCfg), rtCfg.BreakerOpenFor)
	factory := wfuc.NewFactory(postgres.NewWorkflowRepo(store.DB()), refresher, assembler, client, metrics)
	return factory, catalog, nil
}
