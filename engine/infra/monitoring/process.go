package monitoring

import (
	"context"
	"fmt"
	goruntime "runtime"
	"time"

	"github.com/captep/studio/pkg/version"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// registerProcessMetrics exposes build info, uptime and goroutine count as
// observable gauges. The returned registration must be unregistered on
// shutdown.
func registerProcessMetrics(meter metric.Meter, started time.Time) (metric.Registration, error) {
	build, err := meter.Int64ObservableGauge(
		"studio_build_info",
		metric.WithDescription("Build information, always 1"),
	)
	if err != nil {
		return nil, fmt.Errorf("build info gauge: %w", err)
	}
	uptime, err := meter.Float64ObservableGauge(
		"studio_uptime_seconds",
		metric.WithDescription("Seconds since the server started"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("uptime gauge: %w", err)
	}
	goroutines, err := meter.Int64ObservableGauge(
		"studio_goroutines",
		metric.WithDescription("Live goroutines"),
	)
	if err != nil {
		return nil, fmt.Errorf("goroutine gauge: %w", err)
	}
	info := version.Get()
	buildAttrs := metric.WithAttributes(
		attribute.String("version", info.Version),
		attribute.String("commit_hash", info.CommitHash),
		attribute.String("go_version", goruntime.Version()),
	)
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(build, 1, buildAttrs)
		o.ObserveFloat64(uptime, time.Since(started).Seconds())
		o.ObserveInt64(goroutines, int64(goruntime.NumGoroutine()))
		return nil
	}, build, uptime, goroutines)
}
