package integration

import (
	"context"
	"time"
)

// Metrics records token refresh outcomes.
type Metrics interface {
	RecordRefresh(ctx context.Context, outcome RefreshOutcome, latency time.Duration)
}

type NopMetrics struct{}

func (NopMetrics) RecordRefresh(context.Context, RefreshOutcome, time.Duration) {}
