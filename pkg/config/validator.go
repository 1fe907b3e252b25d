package config

import "fmt"

func validateCustom(config *Config) error {
	if config.Database.ConnString == "" {
		if config.Database.Host == "" || config.Database.Port == "" ||
			config.Database.User == "" || config.Database.DBName == "" {
			return fmt.Errorf("database configuration incomplete: either conn_string or individual components required")
		}
	}
	if config.Redis.Enabled && config.Redis.URL == "" && config.Redis.Host == "" {
		return fmt.Errorf("redis is enabled but neither url nor host is set")
	}
	return nil
}
