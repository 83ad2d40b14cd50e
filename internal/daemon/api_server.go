package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mediasort/internal/config"
	"mediasort/internal/logging"
)

// apiServer exposes daemon status and a manual cycle trigger over HTTP.
type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	router *gin.Engine

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil || !cfg.Daemon.APIEnabled {
		return nil
	}
	bind := strings.TrimSpace(cfg.Daemon.APIBind)
	if bind == "" {
		return nil
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		router: router,
	}
	srv.registerRoutes(router)

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) registerRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/status", s.handleStatus)
	api.POST("/cycle", s.handleCycle)
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.daemon.Status())
}

func (s *apiServer) handleCycle(c *gin.Context) {
	queued := s.daemon.Trigger(TriggerAPI)
	s.logger.Info("cycle requested via api",
		logging.String(logging.FieldEventType, "api_cycle_requested"),
		logging.Bool("queued", queued),
		logging.String("remote", c.ClientIP()),
	)
	c.JSON(http.StatusAccepted, gin.H{
		"queued": queued,
	})
}
