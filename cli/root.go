package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/captep/studio/pkg/config"
	"github.com/captep/studio/pkg/logger"
	"github.com/captep/studio/pkg/version"
	"github.com/spf13/cobra"
)

const (
	defaultConfigFile = "studio.yaml"
	defaultEnvFile    = ".env"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "studio",
		Short:         "Captep Studio workflow backend",
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return SetupGlobalConfig(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.String("config", defaultConfigFile, "Path to the YAML config file")
	flags.String("env-file", defaultEnvFile, "Path to a .env file loaded before the environment is read")
	flags.String("log-level", "", "Log level (debug, info, warn, error, disabled)")
	flags.Bool("log-json", false, "Emit JSON logs")
	flags.Bool("log-source", false, "Include source locations in logs")
	flags.String("db-conn-string", "", "Postgres connection string")

	root.AddCommand(
		StartCmd(),
		MigrateCmd(),
	)
	return root
}

// SetupGlobalConfig loads the env file, the layered configuration and the
// logger, and attaches both to the command context.
func SetupGlobalConfig(cmd *cobra.Command) error {
	if _, err := loadEnvFile(cmd); err != nil {
		return err
	}
	configFile, err := flagValue(cmd, "config")
	if err != nil {
		return err
	}
	sources := []config.Source{}
	if configFile != "" {
		sources = append(sources, config.NewYAMLProvider(configFile))
	}
	sources = append(sources, config.NewCLIProvider(extractCLIFlags(cmd)))
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.NewService().Load(ctx, sources...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	rawSource, err := flagValue(cmd, "log-source")
	if err != nil {
		return err
	}
	logSource, err := strconv.ParseBool(rawSource)
	if err != nil {
		return fmt.Errorf("invalid log-source flag: %w", err)
	}
	log := logger.SetupLogger(cfg.Log.Level, cfg.Log.JSON, logSource)
	ctx = config.ContextWithConfig(ctx, cfg)
	ctx = logger.ContextWithLogger(ctx, log)
	cmd.SetContext(ctx)
	return nil
}
