package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"

	"github.com/vk/conflux/internal/binding"
	"github.com/vk/conflux/internal/ctxlog"
	"github.com/vk/conflux/internal/document"
	"github.com/vk/conflux/internal/lifecycle"
	"github.com/vk/conflux/internal/materialize"
	"github.com/vk/conflux/internal/merge"
	"github.com/vk/conflux/internal/property"
	"github.com/vk/conflux/internal/service"
	"github.com/vk/conflux/internal/telemetry"
	"github.com/vk/conflux/internal/tree"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	config *Config
	fs     afero.Fs
	outW   io.Writer
	logger *slog.Logger

	sources      []document.Source
	resolvers    []property.Resolver
	home         *Home
	extras       []binding.Extra
	listeners    []lifecycle.Listener
	modules      []materialize.Module
	materializer materialize.Materializer

	metrics *prometheus.Registry
	tree    *tree.Node
	root    service.Service

	mu      sync.Mutex
	started bool
}

// New loads, merges and filters the configuration and materializes the
// service forest. Nothing is configured or started yet; see Start.
func New(cfg *Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	a := &App{config: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}
	if a.outW == nil {
		a.outW = os.Stderr
	}
	if a.home == nil && cfg.Home != "" {
		h := HomeAt(cfg.Home)
		a.home = &h
	}

	a.logger = newLogger(cfg.LogLevel, cfg.LogFormat, a.outW)
	ctx := ctxlog.WithLogger(context.Background(), a.logger)
	a.logger.Debug("Logger configured successfully.")

	if err := a.load(ctx); err != nil {
		return nil, err
	}

	if a.materializer == nil {
		reg := materialize.New()
		if a.modules == nil {
			a.modules = coreModules
		}
		reg.RegisterModules(a.modules...)
		a.logger.Debug("All Go modules registered.", "count", len(a.modules))
		if err := reg.Validate(ctx); err != nil {
			return nil, err
		}
		a.materializer = reg
	}

	root, err := a.materializer.Materialize(ctx, a.tree)
	if err != nil {
		return nil, fmt.Errorf("failed to materialize services: %w", err)
	}
	a.root = root

	if err := a.setupMetrics(); err != nil {
		return nil, err
	}
	return a, nil
}

// load builds the effective configuration tree.
func (a *App) load(ctx context.Context) error {
	sources := append([]document.Source(nil), a.sources...)
	for _, path := range a.config.Sources {
		src, err := a.sourceFor(path)
		if err != nil {
			return err
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return errors.New("no configuration sources")
	}

	docs, err := document.LoadAll(ctx, a.fs, sources...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	merged, err := merge.Fold(ctx, docs...)
	if err != nil {
		return fmt.Errorf("failed to merge configuration: %w", err)
	}

	resolver, err := a.resolver()
	if err != nil {
		return err
	}
	var filterOpts []property.Option
	if a.config.KeepUnresolved {
		filterOpts = append(filterOpts, property.KeepUnresolved())
	}
	filtered, err := property.FilterTree(merged, resolver, filterOpts...)
	if err != nil {
		return fmt.Errorf("failed to filter configuration: %w", err)
	}

	a.tree = filtered
	a.logger.Info("Configuration loaded.", "sources", len(sources), "documents", len(docs))
	return nil
}

func (a *App) sourceFor(path string) (document.Source, error) {
	info, err := a.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("configuration source %s: %w", path, err)
	}
	if info.IsDir() {
		return document.Dir(path), nil
	}
	return document.File(path), nil
}

// resolver assembles the property chain: explicit resolvers, configured
// properties, home directories, the env file, then the environment. Resolved
// values are expanded again.
func (a *App) resolver() (property.Resolver, error) {
	chain := append([]property.Resolver(nil), a.resolvers...)
	if len(a.config.Properties) > 0 {
		chain = append(chain, property.Map(a.config.Properties))
	}
	if a.home != nil {
		if err := a.home.ensure(a.fs); err != nil {
			return nil, err
		}
		chain = append(chain, a.home.Properties())
	}
	if a.config.EnvFile != "" {
		env, err := property.Dotenv(a.fs, a.config.EnvFile)
		if err != nil {
			return nil, err
		}
		chain = append(chain, env)
	}
	prefix := a.config.EnvPrefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	chain = append(chain, property.Env{Prefix: prefix})
	return property.Recursive(property.Chain(chain...)), nil
}

// setupMetrics creates the application's metrics registry, installs the
// telemetry listener and binds the gatherer for services that serve it.
func (a *App) setupMetrics() error {
	a.metrics = prometheus.NewRegistry()
	if err := a.metrics.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	m := telemetry.New()
	if err := m.Register(a.metrics); err != nil {
		return err
	}
	a.listeners = append([]lifecycle.Listener{m}, a.listeners...)
	a.extras = append(a.extras, binding.Extra{
		Capability: telemetry.GathererCapability,
		Value:      prometheus.Gatherer(a.metrics),
	})
	return nil
}

// Tree returns the effective configuration tree.
func (a *App) Tree() *tree.Node { return a.tree }

// Root returns the root of the service forest.
func (a *App) Root() service.Service { return a.root }

// Metrics returns the application's metrics.
func (a *App) Metrics() prometheus.Gatherer { return a.metrics }

// Logger returns the application's logger.
func (a *App) Logger() *slog.Logger { return a.logger }
