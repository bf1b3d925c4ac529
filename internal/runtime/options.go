package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tjfontaine/threadlog-gateway/internal/adapters/config/file"
	"github.com/tjfontaine/threadlog-gateway/internal/config"
	"github.com/tjfontaine/threadlog-gateway/internal/storage"
	"github.com/tjfontaine/threadlog-gateway/internal/storage/memory"
	"github.com/tjfontaine/threadlog-gateway/internal/storage/sqlite"
)

// Option is a functional option for configuring a Gateway.
type Option func(*Gateway) error

// WithFileConfig uses file-based configuration with hot-reload.
// The path should point to a config.yaml file that will be watched for changes.
func WithFileConfig(path string) Option {
	return func(g *Gateway) error {
		provider, err := file.NewProvider(path, file.WithLogger(g.logger))
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		g.config = provider
		return nil
	}
}

// WithConfig uses a fixed configuration that never changes.
func WithConfig(cfg *config.Config) Option {
	return func(g *Gateway) error {
		if cfg == nil {
			return fmt.Errorf("config cannot be nil")
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		g.config = staticConfig{cfg: cfg}
		return nil
	}
}

// WithSQLite uses SQLite storage at path, overriding the configured storage.
func WithSQLite(path string) Option {
	return func(g *Gateway) error {
		store, err := sqlite.New(path, sqlite.WithLogger(g.logger))
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		g.store = store
		return nil
	}
}

// WithMemoryStorage keeps records in memory. Useful for tests and demos.
func WithMemoryStorage() Option {
	return func(g *Gateway) error {
		g.store = memory.New()
		return nil
	}
}

// WithStore sets a custom record store.
func WithStore(store storage.Store) Option {
	return func(g *Gateway) error {
		g.store = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		g.logger = logger
		return nil
	}
}

// WithHTTPClient sets the client used for upstream calls.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) error {
		g.httpClient = client
		return nil
	}
}

// staticConfig is a ConfigSource over a fixed config.
type staticConfig struct {
	cfg *config.Config
}

func (s staticConfig) Load(ctx context.Context) (*config.Config, error) {
	return s.cfg, nil
}

func (s staticConfig) Watch(ctx context.Context, onChange func(*config.Config)) error {
	return nil
}

func (s staticConfig) Close() error {
	return nil
}
