package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/kickspeed/kickspeed/internal/api/middleware"
	"github.com/kickspeed/kickspeed/internal/datastore"
	"github.com/kickspeed/kickspeed/internal/leaderboard"
	"github.com/kickspeed/kickspeed/internal/logger"
	"github.com/kickspeed/kickspeed/internal/observability"
)

// Pipeline turns an uploaded video into a persisted result.
// *pipeline.Orchestrator satisfies it.
type Pipeline interface {
	Run(ctx context.Context, videoPath string) (*datastore.AnalysisResult, error)
}

// ResultReader loads stored results.
type ResultReader interface {
	Get(id string) (*datastore.AnalysisResult, error)
}

// Ranker computes the daily ranking of a result.
// *leaderboard.Engine satisfies it.
type Ranker interface {
	RankFor(targetID string, targetSpeed float64, dateKey string) *leaderboard.DailyRanking
}

// Server is the HTTP server of the kick analysis service.
type Server struct {
	echo   *echo.Echo
	config *Config
	log    logger.Logger

	// Dependencies
	pipeline Pipeline
	results  ResultReader
	ranker   Ranker
	metrics  *observability.Metrics

	listener  net.Listener
	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithPipeline sets the pipeline run for each upload.
func WithPipeline(p Pipeline) ServerOption {
	return func(s *Server) {
		s.pipeline = p
	}
}

// WithResults sets the result store.
func WithResults(r ResultReader) ServerOption {
	return func(s *Server) {
		s.results = r
	}
}

// WithRanker sets the leaderboard engine.
func WithRanker(r Ranker) ServerOption {
	return func(s *Server) {
		s.ranker = r
	}
}

// WithMetrics sets the observability metrics for the server.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithListener serves on an already bound listener, see Listen.
func WithListener(ln net.Listener) ServerOption {
	return func(s *Server) {
		s.listener = ln
	}
}

// WithLogger replaces the module logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// New creates a new HTTP server with the given configuration and options.
func New(config *Config, opts ...ServerOption) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{
		config:    config,
		log:       GetLogger(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.pipeline == nil || s.results == nil {
		return nil, fmt.Errorf("pipeline and result store are required")
	}

	if err := os.MkdirAll(config.UploadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	if err := os.MkdirAll(config.PublicDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create public directory: %w", err)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())

	var rec mw.RequestRecorder
	if s.metrics != nil {
		rec = s.metrics.HTTP
	}
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, rec, func(c echo.Context) bool {
		return c.Path() == "/health" || c.Path() == "/metrics"
	}))

	securityConfig := mw.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = s.config.AllowedOrigins

	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewGzip())
	s.echo.Use(mw.NewSecureHeaders(securityConfig))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	api := s.echo.Group("/api")
	api.POST("/analyze", s.analyze, mw.NewBodyLimit(s.config.UploadLimit))
	api.GET("/result/:id", s.getResult)

	if s.config.MetricsEnabled && s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	// published videos, QR codes and avatars
	s.echo.Static("/", s.config.PublicDir)
}

// Run serves HTTP requests until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		ln, _, err := Listen(s.config.Host, s.config.Port, s.config.PortRetries)
		if err != nil {
			return err
		}
		s.listener = ln
	}
	s.echo.Listener = s.listener

	s.log.Info("HTTP server starting", logger.String("address", s.listener.Addr().String()))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.echo.Start("")
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	if err := s.Shutdown(); err != nil {
		return err
	}
	<-serveErr
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.log.Info("server shutdown complete")
	return nil
}

// Addr returns the bound address, or nil before Run.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
