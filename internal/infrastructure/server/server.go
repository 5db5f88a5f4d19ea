package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	api "github.com/GriffinCanCode/AgentOS/coordinator/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/idle"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/renderer"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/revalidation"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/session"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/fetch"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/clock"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/tools"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and its dependencies
type Server struct {
	router   *gin.Engine
	handler  http.Handler
	sessions *session.Manager
	tracer   *tracing.Tracer
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// New creates a server from cfg. The logger is built from cfg.Logging when
// nil.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		l, err := logging.New(logging.FromSettings(cfg.Logging.Level, cfg.Logging.Development))
		if err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
		logger = l
	}

	logger.Info("Initializing coordinator",
		zap.String("port", cfg.Server.Port),
		zap.Bool("renderer", cfg.Renderer.Enabled),
		zap.String("upstream", cfg.Fetch.BaseURL),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("coordinator", logger.Component("tracing"))
	clk := clock.New()

	var (
		fetcher  fetch.Fetcher
		upstream api.Upstream
	)
	if cfg.Fetch.BaseURL != "" {
		httpFetcher := fetch.NewHTTPFetcher(cfg.Fetch.BaseURL, cfg.Fetch.Timeout, clk)
		fetcher, upstream = httpFetcher, httpFetcher
	}

	sessions := session.NewManager(sessionOptions(cfg), session.Deps{
		Clock:   clk,
		Fetcher: fetcher,
		Logger:  logger.Component("session"),
		Metrics: metrics,
	})
	runner := tools.NewRunner(tools.Config{Timeout: cfg.Producer.Timeout}, clk, logger.Component("tools")).
		WithMetrics(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.Recovery(logger.Component("http")))
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	api.NewHandlers(sessions, runner, upstream, metrics, logger.Component("http")).Register(router)
	router.GET("/sessions/:id/events", ws.NewHandler(sessions, logger.Component("ws")).WithMetrics(metrics).HandleEvents)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	s := &Server{
		router:   router,
		sessions: sessions,
		tracer:   tracer,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}
	s.handler = s.buildHandler()

	logger.Info("Server initialized successfully")
	return s, nil
}

func sessionOptions(cfg *config.Config) session.Options {
	opts := session.DefaultOptions()
	opts.Idle = idle.Config{
		Threshold:       cfg.Idle.Threshold,
		VisibilityGrace: cfg.Idle.VisibilityGrace,
		TickInterval:    cfg.Idle.TickInterval,
		DebounceWindow:  cfg.Idle.DebounceWindow,
	}
	opts.Revalidation = revalidation.Config{
		BaseDelay:     cfg.Revalidation.BaseDelay,
		CapDelay:      cfg.Revalidation.CapDelay,
		MaxRetries:    cfg.Revalidation.MaxRetries,
		FocusThrottle: cfg.Revalidation.FocusThrottle,
		IdleWindow:    cfg.Revalidation.IdleWindow,
	}
	opts.Renderer = renderer.Config{
		FrameInterval: cfg.Renderer.FrameInterval,
		StatsWindow:   renderer.DefaultConfig().StatsWindow,
	}
	opts.RendererEnabled = cfg.Renderer.Enabled
	opts.RefreshInterval = cfg.Revalidation.RefreshInterval
	return opts
}

// buildHandler wraps the router with compression and, when enabled,
// cleartext HTTP/2. Websocket upgrades bypass compression since they need
// the raw connection.
func (s *Server) buildHandler() http.Handler {
	gzipped := gzhttp.GzipHandler(s.router)
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			s.router.ServeHTTP(w, r)
			return
		}
		gzipped.ServeHTTP(w, r)
	})
	if s.config.Server.H2C {
		h = h2c.NewHandler(h, &http2.Server{})
	}
	return h
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Sessions returns the session manager
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// tool runs are bounded by the producer timeout
		WriteTimeout: s.config.Producer.Timeout + 30*time.Second,
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", listener.Addr().String()), zap.Bool("h2c", s.config.Server.H2C))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// Close releases every session and flushes the logger
func (s *Server) Close() error {
	s.sessions.CloseAll()
	s.tracer.Close()
	s.logger.Info("Server closed")
	_ = s.logger.Sync()
	return nil
}
