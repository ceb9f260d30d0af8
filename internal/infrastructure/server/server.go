package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/adapters/standby"
	apihttp "github.com/GriffinCanCode/AgentOS/bgrestrict/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/audit"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/device"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/restriction"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/tracker"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/watch"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
)

const (
	streamPath  = "/v1/stream"
	metricsPath = "/metrics"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	device     *device.Device
	controller *restriction.Controller
	policy     *tracker.PolicyTracker
	reloader   *watch.Reloader
	store      *audit.Store
	recorder   *audit.Recorder
	hub        *ws.Hub
	tracer     *tracing.Tracer
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics

	closeOnce sync.Once
}

// NewServer creates a new server instance
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return newServer(ctx, cfg, logger)
}

func newServer(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Server, error) {
	logger.Info("Initializing bgrestrict server",
		zap.String("port", cfg.Server.Port),
		zap.String("policy_glob", cfg.Policy.Glob),
		zap.String("standby_url", cfg.Standby.URL),
		zap.String("audit_db", cfg.Audit.Path),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("bgrestrict", logger.Logger)

	s := &Server{
		tracer:  tracer,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
		device:  device.New(logger),
	}
	fail := func(err error) (*Server, error) {
		s.Close()
		return nil, err
	}

	if cfg.Device.ManifestPath != "" {
		m, err := device.LoadManifest(cfg.Device.ManifestPath)
		if err != nil {
			return fail(err)
		}
		if err := s.device.Seed(m); err != nil {
			return fail(fmt.Errorf("failed to seed device: %w", err))
		}
	}

	collab := s.device.Collaborators()
	if cfg.Standby.URL != "" {
		standbyCfg := standby.DefaultConfig(cfg.Standby.URL)
		standbyCfg.Timeout = cfg.Standby.Timeout
		client, err := standby.New(standbyCfg, logger)
		if err != nil {
			return fail(err)
		}
		collab.Standby = client
		logger.Info("Using remote standby service", zap.String("url", cfg.Standby.URL))
	}

	trackers, err := tracker.NewRegistry()
	if err != nil {
		return fail(err)
	}
	if cfg.Policy.Glob != "" {
		s.policy = tracker.NewPolicyTracker(cfg.Policy.Glob, logger)
		if err := trackers.Register(s.policy); err != nil {
			return fail(err)
		}
	}

	s.controller, err = restriction.NewController(collab, trackers, logger)
	if err != nil {
		return fail(err)
	}
	s.controller.WithMetrics(metrics).WithTracer(tracer)
	s.device.Attach(s.controller)

	if cfg.Audit.Path != "" {
		s.store, err = audit.Open(ctx, cfg.Audit.Path)
		if err != nil {
			return fail(err)
		}
		s.recorder = audit.NewRecorder(s.store, cfg.Audit.Buffer, logger).WithMetrics(metrics)
		s.controller.AddListener(s.recorder)
	}

	if s.policy != nil {
		s.policy.OnReload(func() {
			if err := s.controller.ReevaluateAll(types.ReasonUsageBySystem); err != nil {
				logger.Warn("Failed to reevaluate after policy reload", zap.Error(err))
			}
		})
		if cfg.Policy.Watch {
			s.reloader, err = watch.NewReloader(cfg.Policy.Glob, func() {
				s.device.TouchProperties(tracker.PolicyProperty)
			}, logger)
			if err != nil {
				return fail(err)
			}
		}
	}

	s.hub = ws.NewHub(logger).WithMetrics(metrics)
	s.controller.AddListener(s.hub)

	s.router = s.newRouter()
	logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) newRouter() *gin.Engine {
	cfg := s.config
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	gz := middleware.DefaultGzipConfig()
	gz.ExcludedPaths = []string{streamPath, metricsPath}
	router.Use(middleware.Gzip(gz))
	if cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := apihttp.NewHandlers(s.controller, s.device, s.logger)
	if s.store != nil {
		handlers.WithHistory(s.store)
	}
	handlers.Register(router)

	router.GET(streamPath, s.hub.HandleConnection)
	router.GET(metricsPath, gin.WrapH(s.metrics.Handler()))
	return router
}

// Router returns the HTTP handler
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Controller returns the restriction controller
func (s *Server) Controller() *restriction.Controller {
	return s.controller
}

// Device returns the in-process device model
func (s *Server) Device() *device.Device {
	return s.device
}

// Run listens on the configured address and serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve starts the controller and its helpers, marks the system ready and
// serves HTTP on ln until ctx is cancelled, then shuts everything down in
// dependency order.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.Close()

	errc := make(chan error, 4)
	var helpers sync.WaitGroup
	helperCtx, stopHelpers := context.WithCancel(context.Background())
	defer stopHelpers()
	start := func(name string, run func(context.Context) error) {
		helpers.Add(1)
		go func() {
			defer helpers.Done()
			if err := run(helperCtx); err != nil && !errors.Is(err, context.Canceled) {
				errc <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	// The lane outlives the helpers' context so Close can drain it.
	laneCtx, stopLane := context.WithCancel(context.Background())
	defer stopLane()
	laneDone := make(chan error, 1)
	go func() { laneDone <- s.controller.Run(laneCtx) }()

	if s.recorder != nil {
		start("audit recorder", s.recorder.Run)
	}
	if s.reloader != nil {
		start("policy watcher", s.reloader.Run)
	}
	s.controller.OnSystemReady()

	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()
	s.logger.Info("Serving HTTP", zap.String("addr", ln.Addr().String()))

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server...")
	case runErr = <-errc:
		s.logger.Error("Server component failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	s.hub.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	s.controller.Close()
	select {
	case err := <-laneDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("Controller stopped with error", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		s.logger.Warn("Controller did not drain in time")
		stopLane()
		<-laneDone
	}

	// Helpers stop after the lane so the recorder sees the last changes.
	stopHelpers()
	helpers.Wait()
	return runErr
}

// Close releases resources. It is safe to call more than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				s.logger.Error("Failed to close audit store", zap.Error(err))
			}
		}
		s.tracer.Close()
		_ = s.logger.Sync()
	})
}
