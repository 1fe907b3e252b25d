package config

import (
	"context"
	"sync"
)

type ContextKey string

const ConfigCtxKey ContextKey = "config"

var (
	fallback     *Config
	fallbackOnce sync.Once
)

func ContextWithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ConfigCtxKey, cfg)
}

// FromContext returns the configuration attached to ctx, or the built-in
// defaults when none was attached.
func FromContext(ctx context.Context) *Config {
	if ctx != nil {
		if cfg, ok := ctx.Value(ConfigCtxKey).(*Config); ok && cfg != nil {
			return cfg
		}
	}
	fallbackOnce.Do(func() {
		fallback = Default()
	})
	return fallback
}
