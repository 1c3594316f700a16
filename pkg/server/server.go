// Package server exposes the run report over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/go-biohub/pkg/config"
	"github.com/soundprediction/go-biohub/pkg/server/handlers"
)

// Server is the report API.
type Server struct {
	cfg     config.ServerConfig
	reports handlers.ReportReader
	checks  map[string]handlers.Pinger
	logger  *slog.Logger
	router  *gin.Engine
	http    *http.Server
}

// New creates a server. Dependencies that implement handlers.Pinger are
// checked by /ready.
func New(cfg config.ServerConfig, reports handlers.ReportReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		reports: reports,
		checks:  map[string]handlers.Pinger{},
		logger:  logger.With("component", "server"),
	}
	if p, ok := reports.(handlers.Pinger); ok {
		s.checks["report"] = p
	}
	return s
}

// AddCheck registers another readiness dependency.
func (s *Server) AddCheck(name string, p handlers.Pinger) {
	s.checks[name] = p
}

// Setup builds the router.
func (s *Server) Setup() {
	if s.cfg.Mode != "" {
		gin.SetMode(s.cfg.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	health := handlers.NewHealthHandler(s.checks)
	r.GET("/health", health.HealthCheck)
	r.GET("/ready", health.ReadinessCheck)

	rep := handlers.NewReportHandler(s.reports)
	api := r.Group("/api")
	{
		api.GET("/bots", rep.ListBots)
		api.GET("/bots/:name", rep.GetBot)
		api.GET("/runs", rep.ListRuns)
		api.GET("/runs/:id", rep.GetRun)
		api.GET("/runs/:id/summary", rep.RunSummary)
		api.GET("/logs", rep.ListLogs)
	}
	s.router = r
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Handler returns the router, building it on first use.
func (s *Server) Handler() http.Handler {
	if s.router == nil {
		s.Setup()
	}
	return s.router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

// Start listens until Stop is called. Setup must have been called.
func (s *Server) Start() error {
	if s.http == nil {
		return errors.New("server is not set up")
	}
	s.logger.Info("server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
