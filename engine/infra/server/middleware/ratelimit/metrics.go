package ratelimit

import (
	"context"

	"github.com/captep/studio/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type blockCounter struct {
	counter metric.Int64Counter
}

func newBlockCounter(meter metric.Meter) *blockCounter {
	if meter == nil {
		return &blockCounter{}
	}
	counter, err := meter.Int64Counter(
		"studio_rate_limit_blocks_total",
		metric.WithDescription("Total number of requests blocked by rate limiting"),
		metric.WithUnit("1"),
	)
	if err != nil {
		logger.Error("Failed to create rate limit counter", "error", err)
	}
	return &blockCounter{counter: counter}
}

func (b *blockCounter) inc(ctx context.Context, scope string) {
	if b == nil || b.counter == nil {
		return
	}
	b.counter.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", scope)))
}
