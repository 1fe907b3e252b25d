package workflow

import (
	"context"
	"time"
)

type Metrics interface {
	// RecordCompile is called once per compile; outcome is "ok" or a Kind.
	RecordCompile(ctx context.Context, outcome string, latency time.Duration)
	RecordSave(ctx context.Context, created bool, nodes int, latency time.Duration)
}

type NopMetrics struct{}

func (NopMetrics) RecordCompile(context.Context, string, time.Duration) {}
func (NopMetrics) RecordSave(context.Context, bool, int, time.Duration) {}
