package postgres

import (
	"time"

	"github.com/captep/studio/pkg/config"
)

// Config holds PostgreSQL connection settings for the driver.
// ConnString wins; the remaining fields only feed logging and pool labels.
type Config struct {
	ConnString         string
	Host               string
	Port               string
	DBName             string
	SSLMode            string
	MaxConns           int32
	MinConns           int32
	ConnectTimeout     time.Duration
	PingTimeout        time.Duration
	HealthCheckPeriod  time.Duration
	HealthCheckTimeout time.Duration
}

func FromAppConfig(cfg *config.DatabaseConfig) *Config {
	return &Config{
		ConnString: cfg.DSN(),
		Host:       cfg.Host,
		Port:       cfg.Port,
		DBName:     cfg.DBName,
		SSLMode:    cfg.SSLMode,
		MaxConns:   cfg.MaxConns,
	}
}
