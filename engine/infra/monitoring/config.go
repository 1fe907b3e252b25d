package monitoring

import (
	"errors"
	"strings"

	"github.com/captep/studio/pkg/config"
)

const defaultPath = "/metrics"

var (
	errPathEmpty    = errors.New("monitoring path is empty")
	errPathRelative = errors.New("monitoring path must be absolute")
	errPathUnderAPI = errors.New("monitoring path collides with the api prefix")
	errPathQuery    = errors.New("monitoring path must not carry a query")
)

// Config controls the Prometheus exporter.
type Config struct {
	Enabled bool
	Path    string
}

func FromAppConfig(cfg *config.MonitoringConfig) *Config {
	if cfg == nil {
		return &Config{Path: defaultPath}
	}
	return &Config{Enabled: cfg.Enabled, Path: cfg.Path}
}

func (c *Config) Validate() error {
	switch {
	case c.Path == "":
		return errPathEmpty
	case !strings.HasPrefix(c.Path, "/"):
		return errPathRelative
	case c.Path == "/api" || strings.HasPrefix(c.Path, "/api/"):
		return errPathUnderAPI
	case strings.ContainsRune(c.Path, '?'):
		return errPathQuery
	}
	return nil
}
