package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// Config represents the complete configuration for the studio service.
type Config struct {
	Server     ServerConfig     `koanf:"server"     validate:"required"`
	Database   DatabaseConfig   `koanf:"database"   validate:"required"`
	Redis      RedisConfig      `koanf:"redis"`
	OAuth      OAuthConfig      `koanf:"oauth"      validate:"required"`
	Runtime    RuntimeConfig    `koanf:"runtime"    validate:"required"`
	Catalog    CatalogConfig    `koanf:"catalog"`
	Monitoring MonitoringConfig `koanf:"monitoring"`
	RateLimit  RateLimitConfig  `koanf:"rate_limit"`
	Log        LogConfig        `koanf:"log"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host         string        `koanf:"host"          validate:"required"        env:"SERVER_HOST"`
	Port         int           `koanf:"port"          validate:"min=1,max=65535" env:"SERVER_PORT"`
	CORS         CORSConfig    `koanf:"cors"`
	ReadTimeout  time.Duration `koanf:"read_timeout"                             env:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `koanf:"write_timeout"                            env:"SERVER_WRITE_TIMEOUT"`
	MaxBodyBytes int64         `koanf:"max_body_bytes" validate:"min=0"          env:"SERVER_MAX_BODY_BYTES"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"   env:"SERVER_CORS_ALLOWED_ORIGINS"`
	AllowCredentials bool     `koanf:"allow_credentials" env:"SERVER_CORS_ALLOW_CREDENTIALS"`
	MaxAge           int      `koanf:"max_age"           env:"SERVER_CORS_MAX_AGE"`
}

// DatabaseConfig contains database connection configuration.
type DatabaseConfig struct {
	ConnString  string          `koanf:"conn_string"  env:"DB_CONN_STRING"`
	Host        string          `koanf:"host"         env:"DB_HOST"`
	Port        string          `koanf:"port"         env:"DB_PORT"`
	User        string          `koanf:"user"         env:"DB_USER"`
	Password    SensitiveString `koanf:"password"     env:"DB_PASSWORD"     sensitive:"true"`
	DBName      string          `koanf:"name"         env:"DB_NAME"`
	SSLMode     string          `koanf:"ssl_mode"     env:"DB_SSL_MODE"`
	MaxConns    int32           `koanf:"max_conns"    env:"DB_MAX_CONNS"    validate:"min=1"`
	AutoMigrate bool            `koanf:"auto_migrate" env:"DB_AUTO_MIGRATE"`
}

// RedisConfig contains Redis connection configuration. Redis backs the OAuth
// state store and the authorization result channel; without it both fall back
// to in-process implementations.
type RedisConfig struct {
	Enabled  bool            `koanf:"enabled"  env:"REDIS_ENABLED"`
	URL      string          `koanf:"url"      env:"REDIS_URL"`
	Host     string          `koanf:"host"     env:"REDIS_HOST"`
	Port     string          `koanf:"port"     env:"REDIS_PORT"`
	Password SensitiveString `koanf:"password" env:"REDIS_PASSWORD" sensitive:"true"`
	DB       int             `koanf:"db"       env:"REDIS_DB"`
}

// OAuthConfig tunes the token lifecycle.
type OAuthConfig struct {
	RefreshBuffer        time.Duration `koanf:"refresh_buffer"        validate:"min=0"  env:"OAUTH_REFRESH_BUFFER"`
	AuthorizationTimeout time.Duration `koanf:"authorization_timeout" validate:"gt=0"   env:"OAUTH_AUTHORIZATION_TIMEOUT"`
	StateCapacity        int           `koanf:"state_capacity"        validate:"min=1"  env:"OAUTH_STATE_CAPACITY"`
	HTTPTimeout          time.Duration `koanf:"http_timeout"          validate:"gt=0"   env:"OAUTH_HTTP_TIMEOUT"`
}

// RuntimeConfig points at the downstream agent runtime.
type RuntimeConfig struct {
	AgentURL   string        `koanf:"agent_url"   validate:"required,url"  env:"RUNTIME_AGENT_URL"`
	TaskURL    string        `koanf:"task_url"    validate:"required,url"  env:"RUNTIME_TASK_URL"`
	ConfigURL  string        `koanf:"config_url"  validate:"required,url"  env:"RUNTIME_CONFIG_URL"`
	CancelURL  string        `koanf:"cancel_url"  validate:"omitempty,url" env:"RUNTIME_CANCEL_URL"`
	Timeout    time.Duration `koanf:"timeout"     validate:"gt=0"          env:"RUNTIME_TIMEOUT"`
	MaxRetries uint64        `koanf:"max_retries"                          env:"RUNTIME_MAX_RETRIES"`
	// BreakerOpenFor is how long compiles fail fast after the runtime keeps
	// failing. Zero turns the breaker off.
	BreakerOpenFor time.Duration `koanf:"breaker_open_for" validate:"min=0" env:"RUNTIME_BREAKER_OPEN_FOR"`
}

// CatalogConfig controls caching of the nested tool catalog.
type CatalogConfig struct {
	CacheTTL time.Duration `koanf:"cache_ttl" env:"CATALOG_CACHE_TTL"`
}

// MonitoringConfig exposes Prometheus metrics on the API server.
type MonitoringConfig struct {
	Enabled bool   `koanf:"enabled" env:"MONITORING_ENABLED"`
	Path    string `koanf:"path"    env:"MONITORING_PATH"`
}

// RateLimitConfig throttles API clients by IP. The authorize endpoint gets its
// own tighter budget.
type RateLimitConfig struct {
	Enabled          bool          `koanf:"enabled"           env:"RATE_LIMIT_ENABLED"`
	Limit            int64         `koanf:"limit"             env:"RATE_LIMIT_LIMIT"             validate:"min=0"`
	Period           time.Duration `koanf:"period"            env:"RATE_LIMIT_PERIOD"`
	AuthorizeLimit   int64         `koanf:"authorize_limit"   env:"RATE_LIMIT_AUTHORIZE_LIMIT"   validate:"min=0"`
	TrustForwardedIP bool          `koanf:"trust_forwarded_ip" env:"RATE_LIMIT_TRUST_FORWARDED_IP"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error disabled" env:"LOG_LEVEL"`
	JSON  bool   `koanf:"json"                                                          env:"LOG_JSON"`
}

// SensitiveString hides its value when printed or serialized.
type SensitiveString string

const redacted = "[REDACTED]"

func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s SensitiveString) Value() string {
	return string(s)
}

func (s SensitiveString) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// DSN builds a postgres connection string from the individual fields when no
// explicit conn_string is configured.
func (c *DatabaseConfig) DSN() string {
	if c.ConnString != "" {
		return c.ConnString
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password.Value()),
		Host:   fmt.Sprintf("%s:%s", c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	if c.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(c.SSLMode)
	}
	return u.String()
}

// Service defines the configuration management service interface.
type Service interface {
	// Load loads configuration from the specified sources with precedence order.
	Load(ctx context.Context, sources ...Source) (*Config, error)
	// Validate checks if the configuration meets all validation requirements.
	Validate(config *Config) error
	// GetSource returns the source type that provided a configuration key.
	GetSource(key string) SourceType
}

// Source defines the interface for configuration sources.
type Source interface {
	Load() (map[string]any, error)
	Type() SourceType
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
	SourceDefault SourceType = "default"
)

// Metadata contains metadata about configuration sources.
type Metadata struct {
	Sources  map[string]SourceType `json:"sources"`
	LoadedAt time.Time             `json:"loaded_at"`
}

// Default returns a Config with default values for development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         5001,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 6 * time.Minute,
			MaxBodyBytes: 10 << 20,
			CORS: CORSConfig{
				AllowedOrigins: []string{"http://localhost:3000"},
				MaxAge:         86400,
			},
		},
		Database: DatabaseConfig{
			Host:        "localhost",
			Port:        "5432",
			User:        "postgres",
			Password:    "postgres",
			DBName:      "studio",
			SSLMode:     "disable",
			MaxConns:    20,
			AutoMigrate: true,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
		},
		OAuth: OAuthConfig{
			RefreshBuffer:        5 * time.Minute,
			AuthorizationTimeout: 5 * time.Minute,
			StateCapacity:        10_000,
			HTTPTimeout:          30 * time.Second,
		},
		Runtime: RuntimeConfig{
			AgentURL:       "http://localhost:8000/api/create-agent/",
			TaskURL:        "http://localhost:8001/api/create-task/",
			ConfigURL:      "http://localhost:8002/api/agent_configs/",
			CancelURL:      "http://localhost:8003/api/stop_runner/",
			Timeout:        30 * time.Second,
			MaxRetries:     3,
			BreakerOpenFor: 30 * time.Second,
		},
		Catalog:    CatalogConfig{CacheTTL: time.Minute},
		Monitoring: MonitoringConfig{Enabled: true, Path: "/metrics"},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			Limit:          300,
			Period:         time.Minute,
			AuthorizeLimit: 30,
		},
		Log: LogConfig{Level: "info"},
	}
}
