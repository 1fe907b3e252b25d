package cli

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/captep/studio/engine/infra/server"
	"github.com/captep/studio/pkg/config"
	"github.com/captep/studio/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const portCheckTimeout = time.Second

func StartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"serve"},
		Short:   "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd.Context())
		},
	}
	cmd.Flags().String("host", "", "Address to bind")
	cmd.Flags().Int("port", 0, "Port to listen on")
	cmd.Flags().Bool("auto-migrate", false, "Apply pending migrations before serving")
	cmd.Flags().String("redis-url", "", "Redis URL; enables shared state and rate limiting")
	return cmd
}

func runStart(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	log := logger.FromContext(ctx)
	gin.SetMode(gin.ReleaseMode)
	if !isPortAvailable(ctx, cfg.Server.Host, cfg.Server.Port) {
		return fmt.Errorf("port %d is not available on host %s", cfg.Server.Port, cfg.Server.Host)
	}
	if cfg.Database.SSLMode == "disable" && cfg.Database.ConnString == "" && cfg.Database.Host != "localhost" {
		log.Warn("Database SSL is disabled for a remote host", "host", cfg.Database.Host)
	}
	srv, err := server.NewServer(ctx)
	if err != nil {
		return err
	}
	return srv.Run()
}

// isPortAvailable binds and releases the address once.
func isPortAvailable(ctx context.Context, host string, port int) bool {
	lc := net.ListenConfig{}
	ctx, cancel := context.WithTimeout(ctx, portCheckTimeout)
	defer cancel()
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
