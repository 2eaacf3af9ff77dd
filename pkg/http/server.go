package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"FinFusion/pkg/http/middleware"
	applogger "FinFusion/pkg/logger"
)

// Handler mounts a group of routes: the REST API or the decision stream.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// ServerOption configures Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	port            int
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	metricsPath     string // empty disables /metrics
	slowRequest     time.Duration
	logger          *applogger.Logger
	registerer      prometheus.Registerer
	gatherer        prometheus.Gatherer
}

// Server serves the API, the decision stream and the scrape endpoint.
type Server struct {
	echo   *echo.Echo
	config *serverConfig
	errCh  chan error
}

// NewServer builds the Echo instance and mounts every handler. The stream
// and the API are read-only to browsers, so CORS allows any origin.
func NewServer(handlers []Handler, opts ...ServerOption) *Server {
	cfg := &serverConfig{
		port:            8080,
		readTimeout:     10 * time.Second,
		writeTimeout:    10 * time.Second,
		shutdownTimeout: 10 * time.Second,
		metricsPath:     "/metrics",
		slowRequest:     500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = applogger.Nop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.readTimeout
	e.Server.WriteTimeout = cfg.writeTimeout

	e.Use(middleware.Metrics(cfg.registerer, cfg.logger, cfg.slowRequest))
	e.Use(middleware.RequestLogging(cfg.logger))
	e.Use(middleware.Recover(cfg.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	for _, h := range handlers {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}

	if cfg.metricsPath != "" {
		var mh http.Handler = promhttp.Handler()
		if cfg.gatherer != nil {
			mh = promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{})
		}
		e.GET(cfg.metricsPath, echo.WrapHandler(mh))
	}

	return &Server{echo: e, config: cfg, errCh: make(chan error, 1)}
}

// Start starts the HTTP server in the background. A listen failure is
// reported on Errors.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.port)

	go func() {
		s.config.logger.Info("http server: listening", applogger.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.config.logger.Error("http server error", applogger.Error(err))
			s.errCh <- err
		}
	}()

	return nil
}

// Errors delivers fatal listen errors.
func (s *Server) Errors() <-chan error { return s.errCh }

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.shutdownTimeout)
		defer cancel()
	}
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.config.logger.Info("http server: stopped gracefully")
	return nil
}

func WithPort(port int) ServerOption {
	return func(c *serverConfig) { c.port = port }
}

func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *serverConfig) {
		c.readTimeout = read
		c.writeTimeout = write
		c.shutdownTimeout = shutdown
	}
}

func WithLogger(l *applogger.Logger) ServerOption {
	return func(c *serverConfig) { c.logger = l }
}

// WithMetrics sets the scrape path and the registry it serves. An empty
// path disables scraping; a nil gatherer serves the default registry.
func WithMetrics(path string, reg prometheus.Registerer, g prometheus.Gatherer) ServerOption {
	return func(c *serverConfig) {
		c.metricsPath = path
		c.registerer = reg
		c.gatherer = g
	}
}
