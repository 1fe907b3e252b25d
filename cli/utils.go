package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// flagPaths maps command line flags onto dotted config paths.
var flagPaths = []struct {
	flagName string
	key      string
}{
	{"host", "server.host"},
	{"port", "server.port"},
	{"db-conn-string", "database.conn_string"},
	{"auto-migrate", "database.auto_migrate"},
	{"redis-url", "redis.url"},
	{"log-level", "log.level"},
	{"log-json", "log.json"},
}

// extractCLIFlags collects only the flags the user explicitly changed.
func extractCLIFlags(cmd *cobra.Command) map[string]any {
	flags := make(map[string]any)
	for _, def := range flagPaths {
		f := cmd.Flag(def.flagName)
		if f == nil || !f.Changed {
			continue
		}
		raw := f.Value.String()
		switch f.Value.Type() {
		case "int":
			if v, err := strconv.Atoi(raw); err == nil {
				flags[def.key] = v
			}
		case "bool":
			if v, err := strconv.ParseBool(raw); err == nil {
				flags[def.key] = v
			}
		default:
			flags[def.key] = raw
		}
	}
	if _, ok := flags["redis.url"]; ok {
		flags["redis.enabled"] = true
	}
	return flags
}

// flagValue reads a local, persistent or inherited flag.
func flagValue(cmd *cobra.Command, name string) (string, error) {
	f := cmd.Flag(name)
	if f == nil {
		return "", fmt.Errorf("flag %q is not defined", name)
	}
	return f.Value.String(), nil
}

// loadEnvFile loads environment variables from a file inside the working
// directory. A missing file is not an error.
func loadEnvFile(cmd *cobra.Command) (string, error) {
	envFile, err := flagValue(cmd, "env-file")
	if err != nil {
		return "", fmt.Errorf("failed to get env-file flag: %w", err)
	}
	if envFile == "" {
		return "", nil
	}
	pwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}
	if !filepath.IsAbs(envFile) {
		envFile = filepath.Join(pwd, envFile)
	}
	absPath, err := filepath.Abs(filepath.Clean(envFile))
	if err != nil {
		return "", fmt.Errorf("failed to resolve env file path: %w", err)
	}
	if !isPathWithinDirectory(absPath, pwd) {
		return "", fmt.Errorf("env file path '%s' is outside the project directory", envFile)
	}
	fileInfo, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return absPath, nil
		}
		return "", fmt.Errorf("failed to stat env file: %w", err)
	}
	if !fileInfo.Mode().IsRegular() {
		return "", fmt.Errorf("env file path '%s' is not a regular file", envFile)
	}
	if err := godotenv.Load(absPath); err != nil {
		return "", fmt.Errorf("failed to load env file %s: %w", absPath, err)
	}
	return absPath, nil
}

// isPathWithinDirectory checks if a given path is within the specified directory
func isPathWithinDirectory(path, dir string) bool {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
