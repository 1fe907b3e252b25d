package ratelimit

import (
	"fmt"
	"time"

	"github.com/captep/studio/pkg/config"
	"github.com/ulule/limiter/v3"
)

// Config represents rate limiting configuration
type Config struct {
	GlobalRate RateConfig
	// RouteRates applies a separate budget to requests whose path starts
	// with the key.
	RouteRates map[string]RateConfig
	Prefix     string
	// TrustForwardHeader keys clients by X-Forwarded-For / X-Real-IP.
	TrustForwardHeader bool
	DisableHeaders     bool
	ExcludedPaths      []string
}

// RateConfig represents a single rate limit configuration
type RateConfig struct {
	Period time.Duration
	Limit  int64
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() *Config {
	return &Config{
		GlobalRate: RateConfig{Limit: 300, Period: time.Minute},
		RouteRates: map[string]RateConfig{},
		Prefix:     "studio:ratelimit:",
		ExcludedPaths: []string{
			"/health",
			"/metrics",
			"/api/v0/health",
		},
	}
}

// FromAppConfig applies the configured budgets on top of DefaultConfig.
// authorizePath receives the tighter authorize budget.
func FromAppConfig(cfg *config.RateLimitConfig, authorizePath string) *Config {
	out := DefaultConfig()
	period := cfg.Period
	if period <= 0 {
		period = time.Minute
	}
	if cfg.Limit > 0 {
		out.GlobalRate = RateConfig{Limit: cfg.Limit, Period: period}
	}
	if cfg.AuthorizeLimit > 0 && authorizePath != "" {
		out.RouteRates[authorizePath] = RateConfig{Limit: cfg.AuthorizeLimit, Period: period}
	}
	out.TrustForwardHeader = cfg.TrustForwardedIP
	return out
}

// ToLimiterRate converts RateConfig to limiter.Rate
func (rc RateConfig) ToLimiterRate() limiter.Rate {
	return limiter.Rate{
		Period: rc.Period,
		Limit:  rc.Limit,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.GlobalRate.Limit <= 0 || c.GlobalRate.Period <= 0 {
		return fmt.Errorf("global rate limit must be positive")
	}
	for route, rate := range c.RouteRates {
		if rate.Limit <= 0 || rate.Period <= 0 {
			return fmt.Errorf("route rate limit for %s must be positive", route)
		}
	}
	return nil
}
