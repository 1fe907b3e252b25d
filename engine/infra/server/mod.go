package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/captep/studio/pkg/logger"
)

func (s *Server) Run() error {
	defer s.cleanup()
	state, err := s.setupDependencies()
	if err != nil {
		return err
	}
	s.state = state
	if err := s.buildRouter(state); err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}
	return s.startAndRunServer()
}

func (s *Server) startAndRunServer() error {
	srv := s.createHTTPServer()
	s.httpServer = srv
	errCh := make(chan error, 1)
	go s.startServer(srv, errCh)
	s.logStartupBanner()
	return s.handleGracefulShutdown(srv, errCh)
}

func (s *Server) createHTTPServer() *http.Server {
	addr := net.JoinHostPort(s.serverConfig.Host, strconv.Itoa(s.serverConfig.Port))
	logger.FromContext(s.ctx).Debug("Starting HTTP server", "address", addr)
	return &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.serverConfig.ReadTimeout,
		WriteTimeout: s.serverConfig.WriteTimeout,
		IdleTimeout:  httpIdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return s.ctx
		},
	}
}

func (s *Server) startServer(srv *http.Server, errCh chan<- error) {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.FromContext(s.ctx).Error("Server failed to start", "error", err)
		errCh <- err
	}
}

func (s *Server) handleGracefulShutdown(srv *http.Server, errCh <-chan error) error {
	log := logger.FromContext(s.ctx)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	select {
	case <-quit:
		log.Debug("Received shutdown signal, initiating graceful shutdown")
	case <-s.shutdownChan:
		log.Debug("Shutdown requested")
	case <-s.ctx.Done():
		log.Debug("Server context canceled")
	case err := <-errCh:
		s.cancel()
		return fmt.Errorf("http server failed: %w", err)
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(s.ctx), serverShutdownTimeout)
	defer shutdownCancel()
	err := srv.Shutdown(shutdownCtx)
	s.cancel()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("Server shutdown completed successfully")
	return nil
}
