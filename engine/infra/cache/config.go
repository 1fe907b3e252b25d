package cache

import (
	"time"

	"github.com/captep/studio/pkg/config"
)

type Config struct {
	URL         string
	Host        string
	Port        string
	Password    string
	DB          int
	PingTimeout time.Duration
}

// FromAppConfig adapts the application redis section.
func FromAppConfig(cfg *config.RedisConfig) *Config {
	return &Config{
		URL:      cfg.URL,
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password.Value(),
		DB:       cfg.DB,
	}
}
