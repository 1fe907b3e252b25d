package monitoring

import (
	"context"
	"time"

	"github.com/captep/studio/engine/infra/monitoring/metrics"
	"github.com/captep/studio/engine/integration"
	"github.com/captep/studio/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DomainMetrics records token refresh, compile and save activity.
type DomainMetrics struct {
	refreshTotal    metric.Int64Counter
	refreshDuration metric.Float64Histogram
	compileTotal    metric.Int64Counter
	compileDuration metric.Float64Histogram
	saveTotal       metric.Int64Counter
	savedNodes      metric.Int64Histogram
	saveDuration    metric.Float64Histogram
}

func NewDomainMetrics(meter metric.Meter) *DomainMetrics {
	m := &DomainMetrics{}
	var err error
	m.refreshTotal, err = meter.Int64Counter(
		"studio_token_refresh_total",
		metric.WithDescription("OAuth connection refresh attempts by outcome"),
	)
	logInstrumentError("token refresh counter", err)
	m.refreshDuration, err = meter.Float64Histogram(
		"studio_token_refresh_duration_seconds",
		metric.WithDescription("Latency of a single connection refresh"),
		metric.WithExplicitBucketBoundaries(metrics.OutboundDurationBuckets...),
	)
	logInstrumentError("token refresh histogram", err)
	m.compileTotal, err = meter.Int64Counter(
		"studio_workflow_compile_total",
		metric.WithDescription("Workflow compilations by outcome"),
	)
	logInstrumentError("compile counter", err)
	m.compileDuration, err = meter.Float64Histogram(
		"studio_workflow_compile_duration_seconds",
		metric.WithDescription("End-to-end compile latency including dispatch"),
		metric.WithExplicitBucketBoundaries(metrics.OutboundDurationBuckets...),
	)
	logInstrumentError("compile histogram", err)
	m.saveTotal, err = meter.Int64Counter(
		"studio_workflow_save_total",
		metric.WithDescription("Workflow saves by mode"),
	)
	logInstrumentError("save counter", err)
	m.savedNodes, err = meter.Int64Histogram(
		"studio_workflow_saved_nodes",
		metric.WithDescription("Nodes written per save"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250),
	)
	logInstrumentError("saved nodes histogram", err)
	m.saveDuration, err = meter.Float64Histogram(
		"studio_workflow_save_duration_seconds",
		metric.WithDescription("Save transaction latency"),
		metric.WithExplicitBucketBoundaries(metrics.HTTPDurationBuckets...),
	)
	logInstrumentError("save histogram", err)
	return m
}

func logInstrumentError(name string, err error) {
	if err != nil {
		logger.Error("Failed to create "+name, "error", err)
	}
}

func (m *DomainMetrics) RecordRefresh(ctx context.Context, outcome integration.RefreshOutcome, latency time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", string(outcome)))
	if m.refreshTotal != nil {
		m.refreshTotal.Add(ctx, 1, attrs)
	}
	if m.refreshDuration != nil && outcome != integration.OutcomeSkipped {
		m.refreshDuration.Record(ctx, latency.Seconds(), attrs)
	}
}

func (m *DomainMetrics) RecordCompile(ctx context.Context, outcome string, latency time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if m.compileTotal != nil {
		m.compileTotal.Add(ctx, 1, attrs)
	}
	if m.compileDuration != nil {
		m.compileDuration.Record(ctx, latency.Seconds(), attrs)
	}
}

func (m *DomainMetrics) RecordSave(ctx context.Context, created bool, nodes int, latency time.Duration) {
	mode := "update"
	if created {
		mode = "create"
	}
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	if m.saveTotal != nil {
		m.saveTotal.Add(ctx, 1, attrs)
	}
	if m.savedNodes != nil {
		m.savedNodes.Record(ctx, int64(nodes), attrs)
	}
	if m.saveDuration != nil {
		m.saveDuration.Record(ctx, latency.Seconds(), attrs)
	}
}
