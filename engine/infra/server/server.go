package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/captep/studio/engine/infra/monitoring"
	"github.com/captep/studio/engine/infra/server/appstate"
	"github.com/captep/studio/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	monitoringShutdownTimeout = 5 * time.Second
	dbShutdownTimeout         = 30 * time.Second
	serverShutdownTimeout     = 30 * time.Second
	httpIdleTimeout           = 60 * time.Second
	hostAny                   = "0.0.0.0"
	hostLoopback              = "127.0.0.1"
	driverMemory              = "memory"
	driverRedis               = "redis"
)

type Server struct {
	serverConfig *config.ServerConfig
	router       *gin.Engine
	state        *appstate.State
	monitoring   *monitoring.Service
	ctx          context.Context
	cancel       context.CancelFunc
	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	cleanupMu    sync.Mutex
	cleanups     []func()
}

// NewServer reads its configuration from ctx; attach one with
// config.ContextWithConfig.
func NewServer(ctx context.Context) (*Server, error) {
	serverCtx, cancel := context.WithCancel(ctx)
	cfg := config.FromContext(serverCtx)
	if cfg == nil {
		cancel()
		return nil, fmt.Errorf("configuration missing from context")
	}
	return &Server{
		serverConfig: &cfg.Server,
		ctx:          serverCtx,
		cancel:       cancel,
		shutdownChan: make(chan struct{}, 1),
	}, nil
}

// RedisClient returns the shared client or nil when Redis is disabled.
func (s *Server) RedisClient() redis.UniversalClient {
	if s.state == nil || s.state.Redis == nil {
		return nil
	}
	return s.state.Redis.Client()
}

// Shutdown asks a running server to stop.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.shutdownChan <- struct{}{}
	})
}

func (s *Server) addCleanup(fn func()) {
	s.cleanupMu.Lock()
	defer s.cleanupMu.Unlock()
	s.cleanups = append(s.cleanups, fn)
}

func (s *Server) cleanup() {
	s.cleanupMu.Lock()
	fns := s.cleanups
	s.cleanups = nil
	s.cleanupMu.Unlock()
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
