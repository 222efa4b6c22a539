// Package http serves the heart-failure form, its JSON API and the live
// websocket form.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"heartfail/logger"
)

type Server struct {
	server *http.Server
	config ServerConfig
	hub    *LiveHub
}

type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	MaxBodyBytes   int64
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8501,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   1 << 20,
	}
}

// NewHandler builds the routed and instrumented handler without binding a port.
func NewHandler(config ServerConfig, hub *LiveHub) http.Handler {
	mux := http.NewServeMux()

	RegisterPageHandlers(mux)
	RegisterHandlers(mux)
	RegisterLiveHandlers(mux, hub)

	chain := Chain(
		RecoveryMiddleware,
		RequestIDMiddleware,
		LoggerMiddleware,
		MetricsMiddleware,
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		TimeoutMiddleware(config.Timeout),
		RequestSizeMiddleware(config.MaxBodyBytes),
	)
	return chain(mux)
}

func NewServer(config ServerConfig) *Server {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1 << 20
	}
	hub := NewLiveHub()

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           NewHandler(config, hub),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
		hub:    hub,
	}
}

// Hub is the live-form hub, exposed so model reloads can be announced.
func (s *Server) Hub() *LiveHub {
	return s.hub
}

// Start blocks until the server stops. A graceful Stop is not an error.
func (s *Server) Start() error {
	go s.hub.Run()
	logger.Log.Info("starting HTTP server",
		zap.String("addr", s.server.Addr),
		zap.String("websocket", "/ws/classify"))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	logger.Log.Info("shutting down HTTP server")
	s.hub.Stop()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) Addr() string {
	return s.server.Addr
}
