package postgres

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultPoolLabel  = "default"
	postgresMeterName = "studio.postgres"
)

var (
	postgresMetricsOnce sync.Once
	postgresMetricsErr  error
	postgresPools       sync.Map
)

type poolInstruments struct {
	open         metric.Int64ObservableGauge
	inUse        metric.Int64ObservableGauge
	idle         metric.Int64ObservableGauge
	maxConns     metric.Int64ObservableGauge
	emptyAcquire metric.Int64ObservableCounter
	acquireWait  metric.Float64ObservableCounter
}

// poolMetrics exposes pgxpool.Stat for one pool through the global meter.
type poolMetrics struct {
	label string
	pool  atomic.Pointer[pgxpool.Pool]
}

func configurePostgresMetrics(cfg *Config, _ *pgxpool.Config) (*poolMetrics, error) {
	postgresMetricsOnce.Do(func() {
		postgresMetricsErr = registerPoolInstruments(otel.GetMeterProvider().Meter(postgresMeterName))
	})
	if postgresMetricsErr != nil {
		return nil, postgresMetricsErr
	}
	return &poolMetrics{label: computePoolLabel(cfg)}, nil
}

func registerPoolInstruments(meter metric.Meter) error {
	var (
		ins poolInstruments
		err error
	)
	gauges := []struct {
		target *metric.Int64ObservableGauge
		name   string
		desc   string
	}{
		{&ins.open, "studio_postgres_connections_open", "Number of open Postgres connections"},
		{&ins.inUse, "studio_postgres_connections_in_use", "Number of Postgres connections currently in use"},
		{&ins.idle, "studio_postgres_connections_idle", "Number of idle Postgres connections"},
		{&ins.maxConns, "studio_postgres_max_open_connections", "Configured Postgres connection pool size"},
	}
	for _, g := range gauges {
		if *g.target, err = meter.Int64ObservableGauge(g.name, metric.WithDescription(g.desc)); err != nil {
			return err
		}
	}
	ins.emptyAcquire, err = meter.Int64ObservableCounter(
		"studio_postgres_empty_acquire_total",
		metric.WithDescription("Acquires that had to wait for a connection"),
	)
	if err != nil {
		return err
	}
	ins.acquireWait, err = meter.Float64ObservableCounter(
		"studio_postgres_acquire_wait_seconds_total",
		metric.WithDescription("Cumulative time spent waiting for a pooled connection"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(ins.observe,
		ins.open, ins.inUse, ins.idle, ins.maxConns, ins.emptyAcquire, ins.acquireWait,
	)
	return err
}

func (ins *poolInstruments) observe(_ context.Context, observer metric.Observer) error {
	postgresPools.Range(func(_, value any) bool {
		pm, ok := value.(*poolMetrics)
		if !ok {
			return true
		}
		pool := pm.pool.Load()
		if pool == nil {
			return true
		}
		stats := pool.Stat()
		attrs := metric.WithAttributes(attribute.String("pool", pm.label))
		observer.ObserveInt64(ins.open, int64(stats.TotalConns()), attrs)
		observer.ObserveInt64(ins.inUse, int64(stats.AcquiredConns()), attrs)
		observer.ObserveInt64(ins.idle, int64(stats.IdleConns()), attrs)
		observer.ObserveInt64(ins.maxConns, int64(stats.MaxConns()), attrs)
		observer.ObserveInt64(ins.emptyAcquire, stats.EmptyAcquireCount(), attrs)
		observer.ObserveFloat64(ins.acquireWait, stats.EmptyAcquireWaitTime().Seconds(), attrs)
		return true
	})
	return nil
}

func (p *poolMetrics) attach(pool *pgxpool.Pool) {
	p.pool.Store(pool)
	postgresPools.Store(p, p)
}

func (p *poolMetrics) unregister() {
	postgresPools.Delete(p)
	p.pool.Store(nil)
}

// computePoolLabel derives a stable label from host, port and database name.
func computePoolLabel(cfg *Config) string {
	parts := make([]string, 0, 3)
	for _, c := range []string{cfg.Host, cfg.Port, cfg.DBName} {
		if s := sanitizeLabelComponent(c); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return defaultPoolLabel
	}
	return strings.Join(parts, "-")
}

func sanitizeLabelComponent(component string) string {
	lower := strings.ToLower(strings.TrimSpace(component))
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, lower)
	return strings.Trim(mapped, "_")
}
