package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/storefront-dev/storefront/internal/domain/ratelimit"
	"github.com/storefront-dev/storefront/internal/fakeapi"
)

// DefaultAddr is the listen address used when WithAddr is not given.
const DefaultAddr = "127.0.0.1:8000"

// Server exposes a fakeapi.Backend over HTTP.
type Server struct {
	backend        *fakeapi.Backend
	addr           string
	allowedOrigins []string
	version        string
	logger         *slog.Logger
	limiter        ratelimit.Limiter
	loginLimit     ratelimit.Limit

	registry *prometheus.Registry
	metrics  *Metrics
	handler  http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Option is a functional option for configuring Server.
type Option func(*Server)

// WithAddr sets the listen address. Use "127.0.0.1:0" for a random port.
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithAllowedOrigins sets the CORS origins. An empty list allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithLogger sets the logger for the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLoginLimit throttles POST /auth/login per client address.
func WithLoginLimit(limiter ratelimit.Limiter, limit ratelimit.Limit) Option {
	return func(s *Server) {
		s.limiter = limiter
		s.loginLimit = limit
	}
}

// NewServer builds the router for backend. Nothing listens until Start.
func NewServer(backend *fakeapi.Backend, opts ...Option) *Server {
	s := &Server{
		backend: backend,
		addr:    DefaultAddr,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = NewMetrics(s.registry)
	s.handler = s.router()
	return s
}

func (s *Server) router() http.Handler {
	origins := s.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	})

	r := chi.NewRouter()
	// Metrics must be outermost to capture the full duration.
	r.Use(MetricsMiddleware(s.metrics))
	r.Use(RequestIDMiddleware(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	r.Method(http.MethodGet, "/health", NewHealthChecker(s.backend, s.version).Handler())
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	a := &api{
		backend:  s.backend,
		metrics:  s.metrics,
		throttle: LoginThrottle(s.limiter, s.loginLimit, s.metrics),
	}
	a.routes(r)
	return r
}

// Handler returns the full middleware chain and router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Registry returns the Prometheus registry served on /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Listen binds the listen address and returns the bound address. Start calls
// it when it has not been called yet.
func (s *Server) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr(), nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, err
	}
	s.listener = ln
	return ln.Addr(), nil
}

// Start serves requests until ctx is cancelled or the server fails.
func (s *Server) Start(ctx context.Context) error {
	addr, err := s.Listen()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv, ln := s.server, s.listener
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting mock backend", "addr", addr.String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down mock backend")
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (s *Server) shutdown() error {
	s.mu.Lock()
	srv, ln := s.server, s.listener
	s.mu.Unlock()
	if srv == nil {
		if ln != nil {
			return ln.Close()
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return err
	}
	s.logger.Info("mock backend shutdown complete")
	return nil
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	return s.shutdown()
}
