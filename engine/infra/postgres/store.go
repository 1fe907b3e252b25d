package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/captep/studio/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxConns           = 20
	defaultHealthCheckPeriod  = 30 * time.Second
	defaultConnectTimeout     = 5 * time.Second
	defaultPingTimeout        = 3 * time.Second
	defaultHealthCheckTimeout = 1 * time.Second
)

// DB is the subset of pgxpool.Pool the repositories need. pgxmock satisfies it
// in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store owns the pgx pool shared by the workflow, catalog and integration
// repositories.
type Store struct {
	pool          *pgxpool.Pool
	metrics       *poolMetrics
	healthTimeout time.Duration
}

func orDefault[T int32 | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

func (c *Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.ConnString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	pc.MaxConns = orDefault(c.MaxConns, defaultMaxConns)
	pc.MinConns = min(max(c.MinConns, 0), pc.MaxConns)
	pc.HealthCheckPeriod = orDefault(c.HealthCheckPeriod, defaultHealthCheckPeriod)
	pc.ConnConfig.ConnectTimeout = orDefault(c.ConnectTimeout, defaultConnectTimeout)
	return pc, nil
}

// NewStore opens the pool and refuses to return until one ping succeeds.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("postgres: config is required")
	}
	pc, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, orDefault(cfg.PingTimeout, defaultPingTimeout))
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	log := logger.FromContext(ctx)
	tracker, err := configurePostgresMetrics(cfg, pc)
	if err != nil {
		log.Warn("Postgres pool metrics unavailable", "error", err)
	} else {
		tracker.attach(pool)
	}
	log.Info("Postgres pool ready",
		"host", cfg.Host,
		"db_name", cfg.DBName,
		"max_conns", pc.MaxConns,
		"min_conns", pc.MinConns,
	)
	return &Store{
		pool:          pool,
		metrics:       tracker,
		healthTimeout: orDefault(cfg.HealthCheckTimeout, defaultHealthCheckTimeout),
	}, nil
}

func (s *Store) DB() DB { return s.pool }

func (s *Store) HealthCheck(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, s.healthTimeout)
	defer cancel()
	if err := s.pool.Ping(hctx); err != nil {
		return fmt.Errorf("postgres: health check: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	if s.metrics != nil {
		s.metrics.unregister()
	}
	s.pool.Close()
	logger.FromContext(ctx).Info("Postgres pool closed")
	return nil
}
