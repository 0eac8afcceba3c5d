package admin

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kbukum/gokit-discovery/config"
	"github.com/kbukum/gokit-discovery/logger"
	"github.com/kbukum/gokit-discovery/observability"
)

const shutdownTimeout = 5 * time.Second

// Server is the inspection HTTP server backed by Gin.
type Server struct {
	cfg        config.AdminConfig
	engine     *gin.Engine
	httpServer *http.Server
	log        *logger.Logger

	mu       sync.Mutex
	listener net.Listener
}

// New creates a server with the standard middleware and the routes of h.
func New(cfg config.AdminConfig, h *Handlers, metrics *observability.Metrics, log *logger.Logger) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	log = logger.OrNop(log).WithComponent("admin")

	engine := gin.New()
	engine.Use(Recovery(log), RequestID(), Telemetry(metrics), RequestLogger(log))
	h.Register(engine)

	return &Server{
		cfg:    cfg,
		engine: engine,
		log:    log,
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Engine returns the Gin engine, mainly for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Start binds the port and serves in a goroutine. It returns once the
// listener is bound.
func (s *Server) Start(context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("admin server failed to bind %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("admin server error", logger.Fields(logger.FieldError, err.Error()))
		}
	}()

	s.log.Info("admin server started", logger.Fields("addr", listener.Addr().String()))
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.listener != nil
	s.mu.Unlock()
	if !started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin server shutdown: %w", err)
	}
	s.log.Info("admin server stopped")
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}
