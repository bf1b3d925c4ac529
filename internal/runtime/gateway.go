// Package runtime provides the Gateway struct and lifecycle management for
// the logging proxy and its read API.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/tjfontaine/threadlog-gateway/internal/api"
	"github.com/tjfontaine/threadlog-gateway/internal/config"
	"github.com/tjfontaine/threadlog-gateway/internal/proxy"
	"github.com/tjfontaine/threadlog-gateway/internal/server"
	"github.com/tjfontaine/threadlog-gateway/internal/storage"
	"github.com/tjfontaine/threadlog-gateway/internal/storage/memory"
	"github.com/tjfontaine/threadlog-gateway/internal/storage/sqlite"
	"github.com/tjfontaine/threadlog-gateway/internal/telemetry"
	"github.com/tjfontaine/threadlog-gateway/internal/threads"
	"github.com/tjfontaine/threadlog-gateway/internal/tokens"
	"github.com/tjfontaine/threadlog-gateway/internal/upstream"
)

// ConfigSource loads configuration and reports later changes.
type ConfigSource interface {
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}

// Gateway is the main entry point for running the gateway.
// It manages configuration, storage, the upstream client and the HTTP server
// lifecycle. Gateway can be embedded in larger applications or run standalone.
type Gateway struct {
	// Dependencies (injected via options)
	config     ConfigSource
	store      storage.Store
	httpClient *http.Client
	logger     *slog.Logger

	// Internal state
	cfg            *config.Config
	upstream       *upstream.Client
	proxy          *proxy.Handler
	server         *server.Server
	shutdownTracer func(context.Context) error
	serveErr       chan error

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
}

// New creates a new Gateway with the given options.
func New(opts ...Option) (*Gateway, error) {
	gw := &Gateway{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(gw); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if gw.config == nil {
		return nil, errors.New("config source required (use WithFileConfig or WithConfig)")
	}

	return gw, nil
}

// Start loads configuration, opens storage when none was injected and starts
// serving in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ctx, g.cancel = context.WithCancel(ctx)

	cfg, err := g.config.Load(g.ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	g.cfg = cfg

	if g.store == nil {
		store, err := openStore(cfg.Storage, g.logger)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		g.store = store
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, g.logger)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		g.shutdownTracer = shutdown
	}

	g.buildServer(cfg)

	g.serveErr = make(chan error, 1)
	go func() {
		if err := g.server.Start(); err != nil {
			g.logger.Error("server error", slog.String("error", err.Error()))
			g.serveErr <- err
		}
	}()

	go g.watchConfig()

	g.logger.Info("gateway started",
		slog.Int("port", cfg.Server.Port),
		slog.String("storage", cfg.Storage.Type),
		slog.String("upstream", g.upstream.BaseURL()),
		slog.Bool("collector", cfg.Collector.Enabled))

	return nil
}

// Handler returns the HTTP handler serving the proxy and the read API. It is
// nil until Start succeeds.
func (g *Gateway) Handler() http.Handler {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.server == nil {
		return nil
	}
	return g.server.Router
}

// Store returns the record store in use.
func (g *Gateway) Store() storage.Store {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.store
}

// Shutdown gracefully stops the gateway.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("shutting down gateway")

	if g.cancel != nil {
		g.cancel()
	}

	// Stop HTTP server
	if g.server != nil {
		if err := g.server.Shutdown(ctx); err != nil {
			g.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			return err
		}
	}

	// Let in-flight run step collections land before storage closes.
	if g.proxy != nil {
		g.proxy.Wait()
	}

	if g.store != nil {
		if err := g.store.Close(); err != nil {
			g.logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}

	if g.shutdownTracer != nil {
		if err := g.shutdownTracer(ctx); err != nil {
			g.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}

	if g.config != nil {
		if err := g.config.Close(); err != nil {
			g.logger.Error("failed to close config", slog.String("error", err.Error()))
		}
	}

	g.logger.Info("gateway shutdown complete")
	return nil
}

// Err returns a channel that receives a server failure after Start.
func (g *Gateway) Err() <-chan error {
	return g.serveErr
}

func (g *Gateway) buildServer(cfg *config.Config) {
	clientOpts := []upstream.Option{
		upstream.WithAPIKey(cfg.Upstream.APIKey),
		upstream.WithBaseURL(cfg.Upstream.BaseURL),
		upstream.WithBetaHeader(cfg.Upstream.BetaHeader),
		upstream.WithTimeout(cfg.Upstream.Timeout),
	}
	if g.httpClient != nil {
		clientOpts = append(clientOpts, upstream.WithHTTPClient(g.httpClient))
	}
	g.upstream = upstream.New(clientOpts...)

	proxyOpts := []proxy.Option{proxy.WithLogger(g.logger)}
	if cfg.Collector.Enabled {
		collector := proxy.NewCollector(g.upstream, g.store,
			proxy.WithCollectTimeout(cfg.Collector.Timeout),
			proxy.WithCollectorLogger(g.logger),
		)
		proxyOpts = append(proxyOpts, proxy.WithCollector(collector))
	}
	g.proxy = proxy.NewHandler(g.upstream, g.store, proxyOpts...)

	apiServer := api.NewServer(
		threads.NewService(g.store, g.logger),
		g.store,
		api.WithTokenCounter(tokens.New(cfg.Tokens.Model)),
		api.WithLogger(g.logger),
	)

	g.server = server.New(cfg.Server.Port, g.logger,
		server.WithRequestTimeout(cfg.Server.RequestTimeout),
		server.WithCORSOrigin(cfg.Server.CORSOrigin),
		server.WithServiceName(cfg.Telemetry.ServiceName),
	)
	g.server.Router.Method(http.MethodPost, proxy.Route, g.proxy)
	g.server.Router.Mount(api.Prefix, apiServer)

	g.logger.Info("registered handler", slog.String("method", http.MethodPost), slog.String("path", proxy.Route))
	g.logger.Info("registered read api", slog.String("path", api.Prefix))
}

// watchConfig watches for config changes and reloads.
func (g *Gateway) watchConfig() {
	onChange := func(newCfg *config.Config) {
		g.logger.Info("config changed, reloading")
		g.reload(newCfg)
	}

	if err := g.config.Watch(g.ctx, onChange); err != nil {
		if !errors.Is(err, context.Canceled) {
			g.logger.Error("config watch failed", slog.String("error", err.Error()))
		}
	}
}

// reload applies the settings that can change without a restart: upstream
// credentials and base URL. Other changes are logged and take effect on the
// next start.
func (g *Gateway) reload(cfg *config.Config) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.upstream != nil {
		g.upstream.Reconfigure(cfg.Upstream.APIKey, cfg.Upstream.BaseURL)
	}
	if g.cfg != nil && (g.cfg.Server != cfg.Server || g.cfg.Storage != cfg.Storage) {
		g.logger.Warn("server or storage settings changed; restart to apply")
	}
	g.cfg = cfg

	g.logger.Info("reload complete", slog.String("upstream", cfg.Upstream.BaseURL))
}

func openStore(cfg config.StorageConfig, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "sqlite", "":
		return sqlite.New(cfg.SQLite.Path,
			sqlite.WithCompression(cfg.SQLite.Compress),
			sqlite.WithLogger(logger),
		)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
