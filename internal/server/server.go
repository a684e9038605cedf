package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/outline/internal/api"
	"github.com/jackzampolin/outline/internal/compare"
	"github.com/jackzampolin/outline/internal/config"
	"github.com/jackzampolin/outline/internal/home"
	"github.com/jackzampolin/outline/internal/llmcall"
	"github.com/jackzampolin/outline/internal/providers"
	"github.com/jackzampolin/outline/internal/server/endpoints"
	"github.com/jackzampolin/outline/internal/store"
	"github.com/jackzampolin/outline/internal/svcctx"
)

// Server is the Outline HTTP server.
// It owns the run store, the LLM call sink and the score cache, opening
// them on start and closing them on shutdown.
type Server struct {
	httpServer *http.Server
	registry   *providers.Registry
	configMgr  *config.Manager
	home       *home.Dir
	logger     *slog.Logger

	store      *store.Store
	sink       *llmcall.Sink
	comparer   *compare.Service
	closeCache func() error

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8484)
	Port string
	// Home locates the default database path
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// SwaggerSpecPath overrides the location of swagger.json
	SwaggerSpecPath string
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8484"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	if cfg.Home == nil {
		h, err := home.New("")
		if err != nil {
			return nil, err
		}
		cfg.Home = h
	}
	if cfg.SwaggerSpecPath == "" {
		cfg.SwaggerSpecPath = endpoints.GetSwaggerSpecPath()
	}

	registry := providers.NewRegistryFromConfig(cfg.ConfigManager.Get().ToProviderRegistryConfig(), cfg.Logger)

	s := &Server{
		registry:  registry,
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
	}

	// Watch for config changes
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		registry.Reload(c.ToProviderRegistryConfig())
		if comparer := s.Comparer(); comparer != nil {
			comparer.SetSettings(c)
		}
		cfg.Logger.Info("settings reloaded from config")
	})

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{SwaggerSpecPath: cfg.SwaggerSpecPath}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withRequestID(s.withServices(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start opens the store, call sink and cache, then serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.initServices(ctx); err != nil {
		s.closeServices()
		s.setNotRunning()
		return err
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

func (s *Server) initServices(ctx context.Context) error {
	cfg := s.configMgr.Get()

	if err := s.home.EnsureExists(); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}

	dbPath := s.home.DatabasePath(cfg.Store.Path)
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	s.store = st
	s.logger.Info("run store open", "path", dbPath)

	s.sink = llmcall.NewSink(llmcall.SinkConfig{Writer: st, Logger: s.logger})
	s.sink.Start(context.WithoutCancel(ctx))

	c, closeCache, err := compare.OpenCache(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to open score cache: %w", err)
	}
	s.closeCache = closeCache

	comparer := compare.New(compare.Config{
		Settings: cfg,
		Registry: s.registry,
		Recorder: llmcall.NewRecorder(s.sink),
		Cache:    c,
		Store:    st,
		Logger:   s.logger,
	})

	s.mu.Lock()
	s.comparer = comparer
	s.services = &svcctx.Services{
		Comparer: comparer,
		Registry: s.registry,
		Store:    st,
		CallSink: s.sink,
		Config:   s.configMgr,
		Logger:   s.logger,
		Home:     s.home,
	}
	s.mu.Unlock()
	return nil
}

// shutdown performs graceful shutdown of the HTTP server and the services behind it.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.closeServices()
	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

// closeServices stops the sink before closing the store it writes to.
func (s *Server) closeServices() {
	s.mu.Lock()
	s.services = nil
	s.comparer = nil
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.Stop()
		s.sink = nil
	}
	if s.closeCache != nil {
		if err := s.closeCache(); err != nil {
			s.logger.Error("score cache close error", "error", err)
		}
		s.closeCache = nil
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("run store close error", "error", err)
		}
		s.store = nil
	}
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Comparer returns the comparison service.
// Returns nil if the server hasn't started yet.
func (s *Server) Comparer() *compare.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.comparer
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

func (s *Server) currentServices() *svcctx.Services {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if services := s.currentServices(); services != nil {
			scoped := *services
			scoped.Logger = services.Logger.With("request_id", w.Header().Get(api.RequestIDHeader))
			ctx = svcctx.WithServices(ctx, &scoped)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withRequestID echoes the caller's request ID or assigns a new one.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(api.RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(api.RequestIDHeader, id)

		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path,
			"request_id", id, "duration", time.Since(start))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until the store and call sink are open.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.currentServices() == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
