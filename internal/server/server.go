package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultServiceName    = "threadlog-gateway"
)

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger

	httpServer *http.Server
}

type options struct {
	requestTimeout time.Duration
	corsOrigin     string
	serviceName    string
}

// Option configures the server.
type Option func(*options)

// WithRequestTimeout sets the per-request context deadline. Zero disables it.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		o.requestTimeout = d
	}
}

// WithCORSOrigin sets Access-Control-Allow-Origin.
func WithCORSOrigin(origin string) Option {
	return func(o *options) {
		o.corsOrigin = origin
	}
}

// WithServiceName names the server spans.
func WithServiceName(name string) Option {
	return func(o *options) {
		o.serviceName = name
	}
}

func New(port int, logger *slog.Logger, opts ...Option) *Server {
	o := options{
		requestTimeout: defaultRequestTimeout,
		corsOrigin:     "*",
		serviceName:    defaultServiceName,
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(o.requestTimeout))
	r.Use(CORSMiddleware(o.corsOrigin))
	r.Use(middleware.Recoverer)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, o.serviceName)
	})

	return &Server{
		Router: r,
		Port:   port,
		logger: logger,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
