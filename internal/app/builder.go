package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"

	"github.com/refdatahq/lookupd/internal/api"
	"github.com/refdatahq/lookupd/internal/config"
	"github.com/refdatahq/lookupd/internal/git"
	"github.com/refdatahq/lookupd/internal/loader"
	"github.com/refdatahq/lookupd/internal/lookup"
	"github.com/refdatahq/lookupd/internal/service"
	"github.com/refdatahq/lookupd/internal/sources"
	"github.com/refdatahq/lookupd/internal/store"
	"github.com/refdatahq/lookupd/internal/telemetry"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// LookupAppOptions is a function that configures the lookup app builder
type LookupAppOptions func(*lookupAppConfig) error

// lookupAppConfig builds a LookupApp using the builder pattern.
// It supports dependency injection for testing while providing sensible
// defaults for production.
type lookupAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	repository loader.Repository
	factory    *lookup.Factory
	defStore   store.Store

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	metricsHandler http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider metric.MeterProvider
}

func baseConfig(opts ...LookupAppOptions) (*lookupAppConfig, error) {
	cfg := &lookupAppConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.GetAddress()
	}

	return cfg, nil
}

// NewLookupApp creates a new builder with the given configuration
func NewLookupApp(
	ctx context.Context,
	opts ...LookupAppOptions,
) (*LookupApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	// Ensure cleanup happens on error
	var app *LookupApp
	closers := newCloserStack()
	defer func() {
		if app == nil {
			closers.close(ctx)
		}
	}()

	if cfg.defStore == nil {
		cfg.defStore, err = store.NewStore(ctx, cfg.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create definition store: %w", err)
		}
	}
	closers.add(func(context.Context) error { return cfg.defStore.Close() })

	repo, composite, err := buildSourceComponents(cfg, closers)
	if err != nil {
		return nil, fmt.Errorf("failed to build definition sources: %w", err)
	}

	registry, coordinator, svc, err := buildLoaderComponents(cfg, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to build loader components: %w", err)
	}

	if composite != nil {
		watcher, werr := sources.NewWatcher(composite, coordinator)
		if werr != nil {
			return nil, fmt.Errorf("failed to create source watcher: %w", werr)
		}
		if watcher != nil {
			closers.add(func(context.Context) error { return watcher.Close() })
		}
	}

	if err := loadInitialTables(ctx, cfg, coordinator, svc); err != nil {
		return nil, err
	}

	httpServer, err := buildHTTPServer(cfg, svc)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	app = &LookupApp{
		config:      cfg.config,
		registry:    registry,
		coordinator: coordinator,
		service:     svc,
		httpServer:  httpServer,
		closers:     closers,
		ctx:         appCtx,
		cancelFunc:  cancel,
	}
	return app, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) LookupAppOptions {
	return func(cfg *lookupAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) LookupAppOptions {
	return func(cfg *lookupAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		parts := strings.SplitN(addr, ":", 2)
		if len(parts) != 2 || parts[1] == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		host := parts[0]
		port := parts[1]

		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) LookupAppOptions {
	return func(cfg *lookupAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithRepository allows injecting a custom definition repository (for testing)
func WithRepository(repo loader.Repository) LookupAppOptions {
	return func(cfg *lookupAppConfig) error {
		cfg.repository = repo
		return nil
	}
}

// WithFactory allows injecting a custom table factory (for testing)
func WithFactory(f *lookup.Factory) LookupAppOptions {
	return func(cfg *lookupAppConfig) error {
		cfg.factory = f
		return nil
	}
}

// WithStore allows injecting a custom definition store (for testing)
func WithStore(s store.Store) LookupAppOptions {
	return func(cfg *lookupAppConfig) error {
		cfg.defStore = s
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for metrics
func WithMeterProvider(mp metric.MeterProvider) LookupAppOptions {
	return func(cfg *lookupAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithMetricsHandler mounts a Prometheus scrape handler at /metrics
func WithMetricsHandler(handler http.Handler) LookupAppOptions {
	return func(cfg *lookupAppConfig) error {
		cfg.metricsHandler = handler
		return nil
	}
}

// buildSourceComponents turns the configured definition sources into the
// repository the coordinator scans. The composite is returned separately so
// the caller can attach a filesystem watcher once the coordinator exists;
// it is nil when a repository was injected. Git sources register their
// cleanup on the closer stack.
func buildSourceComponents(
	b *lookupAppConfig,
	closers *closerStack,
) (loader.Repository, *sources.Composite, error) {
	if b.repository != nil {
		return b.repository, nil, nil
	}

	slog.Info("Initializing definition sources", "count", len(b.config.Sources))

	srcs := make([]sources.Source, 0, len(b.config.Sources))
	for i := range b.config.Sources {
		sc := &b.config.Sources[i]
		switch sc.GetType() {
		case config.SourceTypeDirectory:
			srcs = append(srcs, sources.NewDirectorySource(
				sc.Name,
				sc.Directory.Path,
				sources.WithWatch(sc.Directory.Watch),
			))
		case config.SourceTypeGit:
			gitSrc, err := buildGitSource(sc)
			if err != nil {
				return nil, nil, err
			}
			closers.add(gitSrc.Close)
			srcs = append(srcs, gitSrc)
		default:
			return nil, nil, fmt.Errorf("source %s has no recognized type", sc.Name)
		}
	}

	composite, err := sources.NewComposite(srcs...)
	if err != nil {
		return nil, nil, err
	}
	return composite, composite, nil
}

// buildGitSource constructs one git-backed definition source from its
// configuration, resolving credentials eagerly so misconfiguration fails at
// startup rather than on the first poll.
func buildGitSource(sc *config.SourceConfig) (*sources.GitSource, error) {
	cloneCfg := git.CloneConfig{
		URL:    sc.Git.Repository,
		Branch: sc.Git.Branch,
		Tag:    sc.Git.Tag,
		Commit: sc.Git.Commit,
	}
	if sc.Git.Auth != nil {
		password, err := sc.Git.Auth.GetPassword()
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		cloneCfg.Auth = &git.AuthConfig{
			Username: sc.Git.Auth.Username,
			Password: password,
		}
	}

	return sources.NewGitSource(
		sc.Name,
		cloneCfg,
		sc.Git.Path,
		sources.WithPollInterval(sc.Git.GetPollInterval()),
	), nil
}

// buildLoaderComponents builds the registry, coordinator and service over
// the definition repository.
func buildLoaderComponents(
	b *lookupAppConfig,
	repo loader.Repository,
) (*loader.Registry, loader.Coordinator, service.LookupService, error) {
	slog.Info("Initializing loader components")

	initial, maxDelay := b.config.GetBackoff()
	registry := loader.NewRegistry(loader.WithBackoff(initial, maxDelay))

	if b.factory == nil {
		b.factory = lookup.NewFactory()
	}

	coordOpts := []loader.CoordinatorOption{
		loader.WithCheckPeriod(b.config.GetCheckPeriod()),
	}
	if b.meterProvider != nil {
		loaderMetrics, err := telemetry.NewLoaderMetrics(b.meterProvider)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create loader metrics: %w", err)
		}
		if loaderMetrics != nil {
			coordOpts = append(coordOpts, loader.WithLoaderMetrics(loaderMetrics))
			slog.Info("Loader metrics enabled")
		}
	}

	coordinator := loader.NewCoordinator(registry, repo, b.factory, coordOpts...)
	svc := service.NewLookupService(registry, coordinator, b.factory, b.defStore)

	return registry, coordinator, svc, nil
}

// loadInitialTables restores persisted declarative tables and runs the
// initial load pass over the definition sources.
func loadInitialTables(
	ctx context.Context,
	b *lookupAppConfig,
	coordinator loader.Coordinator,
	svc service.LookupService,
) error {
	if err := svc.RestoreTables(ctx); err != nil {
		if b.config.Refresh.FailOnInitialLoad {
			return fmt.Errorf("failed to restore declarative tables: %w", err)
		}
		// Restore failures are isolated per definition; the ones that did
		// restore keep serving.
		slog.Warn("Some persisted definitions could not be restored", "error", err)
	}

	if err := coordinator.Reload(ctx); err != nil {
		if b.config.Refresh.FailOnInitialLoad {
			return fmt.Errorf("initial table load failed: %w", err)
		}
		// The background loop retries what the aborted pass left behind.
		slog.Warn("Initial table load incomplete, continuing with background retries", "error", err)
	}
	return nil
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(
	b *lookupAppConfig,
	svc service.LookupService,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// Use default middlewares if not provided
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Add metrics middleware if meter provider is configured.
	// Prepended so it captures all requests.
	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		if metricsMiddleware != nil {
			b.middlewares = append([]func(http.Handler) http.Handler{metricsMiddleware}, b.middlewares...)
			slog.Info("HTTP metrics middleware enabled")
		}
	}

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(b.middlewares...),
	}
	if b.metricsHandler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(b.metricsHandler))
	}
	router := api.NewServer(svc, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
