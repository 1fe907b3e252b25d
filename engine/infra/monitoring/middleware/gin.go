package middleware

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/captep/studio/engine/infra/monitoring/metrics"
	"github.com/captep/studio/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const unmatchedRoute = "unmatched"

type httpInstruments struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

func newHTTPInstruments(meter metric.Meter) (*httpInstruments, error) {
	requests, errRequests := meter.Int64Counter(
		"studio_http_requests_total",
		metric.WithDescription("HTTP requests served, by route template and status"),
	)
	latency, errLatency := meter.Float64Histogram(
		"studio_http_request_duration_seconds",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.HTTPDurationBuckets...),
	)
	inFlight, errInFlight := meter.Int64UpDownCounter(
		"studio_http_requests_in_flight",
		metric.WithDescription("HTTP requests being served"),
	)
	if err := errors.Join(errRequests, errLatency, errInFlight); err != nil {
		return nil, err
	}
	return &httpInstruments{requests: requests, latency: latency, inFlight: inFlight}, nil
}

func (h *httpInstruments) observe(ctx context.Context, c *gin.Context, elapsed time.Duration) {
	route := c.FullPath()
	if route == "" {
		route = unmatchedRoute
	}
	attrs := metric.WithAttributes(
		attribute.String("method", c.Request.Method),
		attribute.String("route", route),
		attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
	)
	h.requests.Add(ctx, 1, attrs)
	h.latency.Record(ctx, elapsed.Seconds(), attrs)
}

// HTTPMetrics counts requests and their latency by route template. Labels use
// the template so path parameters never explode cardinality.
func HTTPMetrics(meter metric.Meter) gin.HandlerFunc {
	if meter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	inst, err := newHTTPInstruments(meter)
	if err != nil {
		logger.Error("HTTP metrics disabled", "error", err)
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		inst.inFlight.Add(ctx, 1)
		defer inst.inFlight.Add(ctx, -1)
		c.Next()
		inst.observe(ctx, c, time.Since(start))
	}
}
