// Package server exposes the ingestion and retrieval services over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/snapknow/internal/metrics"
	"github.com/raphaelgruber/snapknow/internal/service"
)

// FolderSource expands a folder descriptor into individual image locators.
type FolderSource interface {
	FromFolder(folder string) ([]string, error)
	FromServiceFolder(ctx context.Context, ref string) ([]string, error)
}

// Server is the HTTP front end.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	dispatcher *service.Dispatcher
	retrieval  *service.Retrieval
	jobs       *service.JobManager
	knowledge  *knowledgeAPI
	sources    FolderSource
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// Options carries the server dependencies.
type Options struct {
	Addr       string
	Store      service.Store
	Dispatcher *service.Dispatcher
	Retrieval  *service.Retrieval
	Jobs       *service.JobManager
	Sources    FolderSource
	Metrics    *metrics.Collector
	Logger     *slog.Logger
	Debug      bool
}

// New builds the router and wires all handlers.
func New(opts Options) *Server {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}

	engine := gin.New()
	s := &Server{
		engine:     engine,
		dispatcher: opts.Dispatcher,
		retrieval:  opts.Retrieval,
		jobs:       opts.Jobs,
		knowledge:  &knowledgeAPI{store: opts.Store},
		sources:    opts.Sources,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
	s.httpServer = &http.Server{
		Addr:    opts.Addr,
		Handler: engine,
	}

	engine.Use(gin.Recovery())
	engine.Use(s.loggingMiddleware())
	s.registerRoutes()
	return s
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client", c.ClientIP())
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	{
		api.POST("/ingest", s.handleIngest)
		api.GET("/jobs", s.handleListJobs)
		api.GET("/jobs/:id", s.handleGetJob)

		api.GET("/knowledge", s.knowledge.handleList)
		api.GET("/knowledge/:id", s.knowledge.handleGet)
		api.DELETE("/knowledge/:id", s.knowledge.handleDelete)
		api.POST("/knowledge/:id/retry", s.handleRetryRecord)
		api.POST("/knowledge/retry-failed", s.handleRetryFailed)

		api.POST("/rag/query", s.handleQuery)

		api.GET("/taxonomy", s.knowledge.handleTaxonomy)
		api.GET("/stats", s.handleStats)
	}
}

// Run starts serving and blocks until the context is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down http server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}
