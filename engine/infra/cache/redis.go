package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/captep/studio/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const defaultPingTimeout = 10 * time.Second

// Redis owns the shared client handed to the OAuth state store, the
// authorization pub/sub channel and the rate limiter.
type Redis struct {
	client    redis.UniversalClient
	closeOnce sync.Once
	closeErr  error
}

func (c *Config) options() (*redis.Options, error) {
	if c.URL == "" {
		return &redis.Options{
			Addr:     net.JoinHostPort(c.Host, c.Port),
			Password: c.Password,
			DB:       c.DB,
		}, nil
	}
	opt, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	return opt, nil
}

// NewRedis dials and pings. The client is closed again when the ping fails.
func NewRedis(ctx context.Context, cfg *Config) (*Redis, error) {
	if cfg == nil {
		return nil, errors.New("redis: config is required")
	}
	opt, err := cfg.options()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opt.Addr, err)
	}
	logger.FromContext(ctx).Info("Redis connected", "addr", opt.Addr, "db", opt.DB)
	return &Redis{client: client}, nil
}

func (r *Redis) Client() redis.UniversalClient { return r.client }

func (r *Redis) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close is safe to call more than once.
func (r *Redis) Close() error {
	r.closeOnce.Do(func() { r.closeErr = r.client.Close() })
	return r.closeErr
}
