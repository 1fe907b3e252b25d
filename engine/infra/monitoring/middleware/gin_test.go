package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestHTTPMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Should record totals and latency by route template", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
		router := gin.New()
		router.Use(HTTPMetrics(meter))
		router.GET("/workflows/:id", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
		})
		for _, id := range []string{"a", "b"} {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/workflows/"+id, http.NoBody))
			require.Equal(t, http.StatusOK, w.Code)
		}
		got := collect(t, reader)
		total, ok := got["studio_http_requests_total"].Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, total.DataPoints, 1)
		dp := total.DataPoints[0]
		assert.Equal(t, int64(2), dp.Value)
		attrs := dp.Attributes.ToSlice()
		assert.Contains(t, attrs, attribute.String("route", "/workflows/:id"))
		assert.Contains(t, attrs, attribute.String("status_code", "200"))
		_, ok = got["studio_http_request_duration_seconds"].Data.(metricdata.Histogram[float64])
		assert.True(t, ok)
	})

	t.Run("Should label unmatched routes", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
		router := gin.New()
		router.Use(HTTPMetrics(meter))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", http.NoBody))
		assert.Equal(t, http.StatusNotFound, w.Code)
		total := collect(t, reader)["studio_http_requests_total"].Data.(metricdata.Sum[int64])
		require.Len(t, total.DataPoints, 1)
		assert.Contains(t, total.DataPoints[0].Attributes.ToSlice(), attribute.String("route", "unmatched"))
	})

	t.Run("Should settle the in-flight gauge after the request", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
		router := gin.New()
		router.Use(HTTPMetrics(meter))
		router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", http.NoBody))
		inFlight := collect(t, reader)["studio_http_requests_in_flight"].Data.(metricdata.Sum[int64])
		require.Len(t, inFlight.DataPoints, 1)
		assert.Zero(t, inFlight.DataPoints[0].Value)
	})

	t.Run("Should pass through when the meter is nil", func(t *testing.T) {
		router := gin.New()
		router.Use(HTTPMetrics(nil))
		router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", http.NoBody))
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}
