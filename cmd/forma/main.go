// Package main is the entry point for the Forma layout server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/askelund/forma/internal/config"
	"github.com/askelund/forma/internal/datamodel"
	"github.com/askelund/forma/internal/editor"
	"github.com/askelund/forma/internal/layoutset"
	"github.com/askelund/forma/internal/observability"
	"github.com/askelund/forma/internal/rule"
	"github.com/askelund/forma/internal/store"
	"github.com/askelund/forma/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags. FORMA_CONFIG overrides the default path.
	defaultConfig := os.Getenv("FORMA_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "config.yaml"
	}
	configPath := flag.String("config", defaultConfig, "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "forma", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Index data-model schemas.
	index := datamodel.NewIndex()
	sources := buildDataModelSources(cfg.DataModels)
	if err := index.Load(sources); err != nil {
		logger.Error("data-model index load failed", zap.Error(err))
		return 1
	}
	for _, dataType := range index.DataTypes() {
		if fields, ok := index.Fields(dataType); ok {
			metrics.SetDataModelFieldsIndexed(dataType, float64(len(fields)))
		}
	}

	// Step 5: Load layout sets, validate, build registry.
	loader := layoutset.NewLoader(cfg.Layouts.DefaultDataType)
	sets, err := loader.LoadAll(cfg.Layouts.Directory)
	if err != nil {
		logger.Error("layout-set loading failed", zap.Error(err))
		return 1
	}

	verrs := layoutset.NewValidator().Validate(sets, index)
	if len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("layout-set validation error", zap.String("error", ve.Error()))
		}
		logger.Error("layout-set validation failed", zap.Int("errors", len(verrs)))
		return 1
	}

	registry := layoutset.NewRegistry(sets)
	metrics.SetLayoutSetsLoaded(float64(len(sets)))

	// Step 6: Initialize the layout store.
	layouts, layoutsCloser, err := buildLayoutStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("layout store initialization failed", zap.Error(err))
		return 1
	}

	// Step 7: Initialize the idempotency store.
	idem, idemCloser, err := buildIdempotencyStore(cfg.Idempotency, logger)
	if err != nil {
		logger.Error("idempotency store initialization failed", zap.Error(err))
		return 1
	}

	// Step 8: Start the editing-session manager.
	sessions := editor.NewManager(layouts, idem, cfg.Editor.SaveDebounce, logger,
		editor.WithDedupHook(metrics.RecordSaveDedup))

	// Step 9: Initialize the rule provider.
	rules, err := buildRuleProvider(cfg.Rules)
	if err != nil {
		logger.Error("rule provider initialization failed", zap.Error(err))
		return 1
	}

	// Step 10: Build HTTP router.
	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL)

	readinessChecks := observability.ReadinessChecks{
		LayoutSetsLoaded: func() bool { return len(registry.SetNames()) > 0 },
		DataModelsLoaded: func() bool { return len(index.DataTypes()) > 0 },
	}
	if hc, ok := layouts.(observability.HealthChecker); ok {
		readinessChecks.LayoutStore = hc
	}
	if hc, ok := idem.(observability.HealthChecker); ok {
		readinessChecks.IdempotencyStore = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Log:          logger,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
		Registry:     registry,
		Layouts:      layouts,
		Sessions:     sessions,
		Index:        index,
		Rules:        rules,
		Metrics:      metrics,
		Ready:        observability.HandleReady(readinessChecks),
	})

	handler := observability.TracingMiddleware(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 11: Start background tasks.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	go runSessionJanitor(bgCtx, sessions, metrics, cfg.Editor.SessionTTL, logger)
	if cfg.Layouts.HotReload {
		go runLayoutReloader(bgCtx, registry, loader, index, metrics, cfg.Layouts.Directory, logger)
	}

	// Step 12: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("layout_sets", len(sets)),
		zap.Strings("data_types", index.DataTypes()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Cancel background tasks.
	bgCancel()

	// Flush pending edits so no debounced save is lost.
	if err := sessions.FlushAll(shutdownCtx); err != nil {
		logger.Error("flushing sessions failed", zap.Error(err))
	}

	// Close stores.
	if layoutsCloser != nil {
		layoutsCloser()
	}
	if idemCloser != nil {
		idemCloser()
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildDataModelSources resolves relative schema paths against the configured
// data-model directory.
func buildDataModelSources(cfg config.DataModelsConfig) []datamodel.Source {
	sources := make([]datamodel.Source, len(cfg.Sources))
	for i, s := range cfg.Sources {
		if cfg.Directory != "" && !filepath.IsAbs(s.SpecPath) {
			s.SpecPath = filepath.Join(cfg.Directory, s.SpecPath)
		}
		sources[i] = s
	}
	return sources
}

// buildLayoutStore creates the layout store based on config.
func buildLayoutStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (store.LayoutStore, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory layout store")
		return store.NewMemoryLayoutStore(), nil, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("layout store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("layout store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("layout store: connect: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("layout store: ping: %w", err)
		}

		return store.NewPgLayoutStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported layout store driver: %q", cfg.Driver)
	}
}

// buildIdempotencyStore creates the save-deduplication store based on config.
func buildIdempotencyStore(cfg config.IdempotencyConfig, logger *zap.Logger) (editor.IdempotencyStore, func(), error) {
	if !cfg.Enabled {
		logger.Info("save deduplication disabled, using in-memory idempotency store")
		return editor.NewMemoryIdempotencyStore(), nil, nil
	}

	switch cfg.Store.Driver {
	case "memory":
		logger.Info("using in-memory idempotency store")
		return editor.NewMemoryIdempotencyStore(), nil, nil
	case "redis":
		addr := os.Getenv(cfg.Store.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("idempotency store: %s environment variable not set", cfg.Store.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.Store.DB})
		return editor.NewRedisIdempotencyStore(client), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported idempotency store driver: %q", cfg.Store.Driver)
	}
}

// buildRuleProvider creates the rule provider based on config. Static and
// remote providers are wrapped with the invocation cache.
func buildRuleProvider(cfg config.RulesConfig) (rule.Provider, error) {
	switch cfg.Provider {
	case "none", "":
		return rule.None{}, nil
	case "static":
		p, err := rule.NewStaticProvider(cfg.Path)
		if err != nil {
			return nil, err
		}
		return rule.NewCached(p, cfg.Cache.TTL, cfg.Cache.MaxEntries), nil
	case "http":
		p := rule.NewHTTPProvider(cfg.BaseURL, cfg.Timeout)
		return rule.NewCached(p, cfg.Cache.TTL, cfg.Cache.MaxEntries), nil
	default:
		return nil, fmt.Errorf("unsupported rule provider: %q", cfg.Provider)
	}
}

// runSessionJanitor periodically expires idle editing sessions and keeps the
// active-sessions gauge current.
func runSessionJanitor(ctx context.Context, sessions *editor.Manager, metrics *observability.Metrics, ttl time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.ExpireIdle(ctx, ttl); n > 0 {
				logger.Info("expired idle sessions", zap.Int("count", n))
			}
			metrics.SetEditorSessionsActive(float64(sessions.Len()))
		}
	}
}

// runLayoutReloader periodically reloads layout sets from disk so edits made
// outside the designer become visible without a restart.
func runLayoutReloader(
	ctx context.Context,
	registry *layoutset.Registry,
	loader *layoutset.Loader,
	index *datamodel.Index,
	metrics *observability.Metrics,
	root string,
	logger *zap.Logger,
) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sets, err := loader.LoadAll(root)
			if err != nil {
				metrics.RecordLayoutReload("error")
				logger.Error("layout reload failed", zap.Error(err))
				continue
			}
			if verrs := layoutset.NewValidator().Validate(sets, index); len(verrs) > 0 {
				metrics.RecordLayoutReload("invalid")
				logger.Error("layout reload rejected", zap.Int("errors", len(verrs)))
				continue
			}
			before := registry.Checksum()
			registry.Replace(sets)
			if registry.Checksum() != before {
				metrics.RecordLayoutReload("ok")
				metrics.SetLayoutSetsLoaded(float64(len(sets)))
				logger.Info("layout sets reloaded", zap.Int("sets", len(sets)))
			}
		}
	}
}
