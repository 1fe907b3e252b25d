package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/captep/studio/engine/infra/monitoring/middleware"
	"github.com/captep/studio/pkg/logger"
	"github.com/gin-gonic/gin"
	prom "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/captep/studio"

// Service owns the meter provider and the Prometheus registry it exports to.
// A disabled Service still hands out a no-op meter so callers never branch.
type Service struct {
	config   *Config
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
	registry *prom.Registry
	process  metric.Registration
	initErr  error
}

func disabled(cfg *Config, initErr error) *Service {
	return &Service{
		config:  cfg,
		meter:   noop.NewMeterProvider().Meter(meterName),
		initErr: initErr,
	}
}

// NewService builds the exporter when cfg enables it.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg == nil {
		cfg = FromAppConfig(nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	if !cfg.Enabled {
		log.Debug("Monitoring disabled")
		return disabled(cfg, nil), nil
	}
	registry := prom.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(meterName)
	process, err := registerProcessMetrics(meter, time.Now())
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}
	log.Info("Monitoring enabled", "path", cfg.Path)
	return &Service{
		config:   cfg,
		meter:    meter,
		provider: provider,
		registry: registry,
		process:  process,
	}, nil
}

// NewServiceOrNoop logs construction failures and returns a disabled Service
// instead.
func NewServiceOrNoop(ctx context.Context, cfg *Config) *Service {
	svc, err := NewService(ctx, cfg)
	if err == nil {
		return svc
	}
	logger.FromContext(ctx).Error("Monitoring unavailable, metrics are dropped", "error", err)
	if cfg == nil {
		cfg = FromAppConfig(nil)
	}
	return disabled(cfg, err)
}

func (s *Service) Meter() metric.Meter { return s.meter }

func (s *Service) Path() string { return s.config.Path }

func (s *Service) IsInitialized() bool { return s.provider != nil }

func (s *Service) InitializationError() error { return s.initErr }

// GinMiddleware records request metrics, or does nothing when disabled.
func (s *Service) GinMiddleware() gin.HandlerFunc {
	if !s.IsInitialized() {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.HTTPMetrics(s.meter)
}

// SetAsGlobal installs the provider as the otel global.
func (s *Service) SetAsGlobal() {
	if s.provider != nil {
		otel.SetMeterProvider(s.provider)
	}
}

func (s *Service) Shutdown(ctx context.Context) error {
	if s.provider == nil {
		return nil
	}
	var errs []error
	if s.process != nil {
		errs = append(errs, s.process.Unregister())
	}
	errs = append(errs, s.provider.Shutdown(ctx))
	return errors.Join(errs...)
}
