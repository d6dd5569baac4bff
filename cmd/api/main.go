package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/bejimenez/magus/internal/culture"
	"github.com/bejimenez/magus/internal/handlers"
	"github.com/bejimenez/magus/internal/platform/auth"
	"github.com/bejimenez/magus/internal/platform/cache"
	"github.com/bejimenez/magus/internal/platform/config"
	pfirestore "github.com/bejimenez/magus/internal/platform/firestore"
	"github.com/bejimenez/magus/internal/platform/jobs"
	"github.com/bejimenez/magus/internal/platform/observability"
	"github.com/bejimenez/magus/internal/platform/secrets"
	"github.com/bejimenez/magus/internal/repositories"
	firestoreRepo "github.com/bejimenez/magus/internal/repositories/firestore"
	"github.com/bejimenez/magus/internal/repositories/memory"
	"github.com/bejimenez/magus/internal/services"
	"github.com/bejimenez/magus/internal/synthesis"
)

const (
	cacheNamespace  = "names"
	shutdownTimeout = 10 * time.Second
	closeTimeout    = 5 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)
	redis.SetLogger(observability.NewRedisLogger(baseLogger.Named("redis")))

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames()...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(cfg, startedAt)
	logger = logger.With(zap.String("version", buildInfo.Version), zap.String("environment", buildInfo.Environment))

	// Cache tiers: in-process first, Redis second when enabled. A disabled cache runs on
	// the no-op store.
	memoryStore := cache.NewMemoryStore(cfg.Cache.MaxItems)
	stores := []cache.Store{cache.NoopStore{}}
	var redisStore *cache.RedisStore
	if cfg.Cache.Enabled {
		stores = []cache.Store{memoryStore}
		if cfg.Redis.Enabled {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			redisStore, err = cache.NewRedisStore(client,
				cache.WithRedisPrefix(cfg.Redis.KeyPrefix),
				cache.WithRedisTimeout(cfg.Redis.Timeout),
				cache.WithRedisCompression(cfg.Redis.Compression),
			)
			if err != nil {
				logger.Fatal("failed to initialise redis cache", zap.Error(err))
			}
			defer redisStore.Close()
			stores = append(stores, redisStore)
		}
	}
	nameCache := cache.NewTier[[]services.GeneratedName](stores,
		cache.WithTierLogger(logger.Named("cache")),
	)
	keys := cache.NewKeyBuilder(cacheNamespace, cfg.Cache.MaxKeyLength)

	loader := newTemplateLoader(cfg.Generation, logger.Named("culture"))
	engineOpts := []synthesis.EngineOption{
		synthesis.WithAcceptanceThreshold(cfg.Generation.AcceptanceThreshold),
		synthesis.WithEngineLogger(logger.Named("engine")),
	}
	rng := synthesis.NewRand()
	if cfg.Generation.Seed != 0 {
		rng = synthesis.NewSeededRand(cfg.Generation.Seed)
	}
	engineOpts = append(engineOpts, synthesis.WithRand(rng))

	catalog, err := services.NewCultureCatalog(services.CultureCatalogDeps{
		Load:          loader.Load,
		EngineOptions: engineOpts,
		Cache:         nameCache,
		Keys:          keys,
		Logger:        eventLogger(logger.Named("catalog"), zap.InfoLevel),
	})
	if err != nil {
		logger.Fatal("failed to load culture templates", zap.Error(err))
	}

	var firestoreProvider *pfirestore.Provider
	var registry repositories.Registry
	if cfg.Persistence.Enabled && strings.TrimSpace(cfg.Firestore.ProjectID) != "" {
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore, pfirestore.WithDialTimeout(10*time.Second))
		registry, err = firestoreRepo.NewRegistry(firestoreProvider, cfg.Firestore)
		if err != nil {
			logger.Fatal("failed to initialise firestore repositories", zap.Error(err))
		}
	} else {
		registry = memory.NewRegistry()
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	var publisher services.NameEventPublisher
	var namesTopic *pubsub.Topic
	if project := strings.TrimSpace(cfg.PubSub.ProjectID); project != "" && strings.TrimSpace(cfg.PubSub.NamesTopic) != "" {
		pubsubClient, err := pubsub.NewClient(ctx, project)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		namesTopic = pubsubClient.Topic(cfg.PubSub.NamesTopic)
		namePublisher, err := jobs.NewPubSubNamePublisher(namesTopic)
		if err != nil {
			logger.Fatal("failed to initialise name publisher", zap.Error(err))
		}
		defer namePublisher.Stop()
		publisher = namePublisher
	}

	recorder, err := services.NewNameRecorder(services.NameRecorderDeps{
		Names:        registry.Names(),
		RequestLogs:  registry.RequestLogs(),
		Publisher:    publisher,
		QueueSize:    cfg.Persistence.QueueSize,
		Workers:      cfg.Persistence.Workers,
		WriteTimeout: cfg.Persistence.WriteTimeout,
		Logger:       eventLogger(logger.Named("recorder"), zap.WarnLevel),
	})
	if err != nil {
		logger.Fatal("failed to initialise name recorder", zap.Error(err))
	}

	generationService, err := services.NewGenerationService(services.GenerationServiceDeps{
		Catalog:     catalog,
		Cache:       nameCache,
		Keys:        keys,
		Recorder:    recorder,
		History:     registry.Names(),
		Rand:        rng,
		Logger:      eventLogger(logger.Named("generation"), zap.DebugLevel),
		CacheTTL:    cfg.Cache.TTL,
		MaxAttempts: cfg.Generation.MaxAttempts,
		MaxCount:    cfg.Generation.MaxCount,
	})
	if err != nil {
		logger.Fatal("failed to initialise generation service", zap.Error(err))
	}

	systemService, err := newSystemService(catalog, firestoreProvider, redisStore, namesTopic, buildInfo)
	if err != nil {
		logger.Fatal("failed to initialise system service", zap.Error(err))
	}

	validator := auth.NewHMACValidator(cfg.Security.InternalSecret,
		auth.WithHMACLogger(logger.Named("auth")),
		auth.WithHMACHeaders(cfg.Security.SignatureHeader, cfg.Security.TimestampHeader),
		auth.WithHMACClockSkew(cfg.Security.ClockSkew),
	)
	limiter := handlers.NewClientRateLimiter(cfg.RateLimits.PerMinute, cfg.RateLimits.Burst, nil)

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	httpLogger := logger.Named("http")
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(httpLogger),
			observability.ClientIDMiddleware,
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(projectID),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthBuildInfo(buildInfo),
			handlers.WithHealthSystemService(systemService),
		)),
		handlers.WithNameRoutes(handlers.NewNameHandlers(generationService).Routes),
		handlers.WithNameMiddlewares(limiter.Middleware),
		handlers.WithInternalRoutes(handlers.NewInternalCultureHandlers(catalog).Routes),
		handlers.WithInternalMiddlewares(validator.Require),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// The recorder outlives the request context so names accepted during shutdown are drained.
	recorderCtx, stopRecorder := context.WithCancel(context.WithoutCancel(ctx))
	defer stopRecorder()

	g, gctx := errgroup.WithContext(ctx)
	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	g.Go(func() error {
		serverLogger.Info("magus api listening", zap.Strings("cultures", catalog.Engine().Registry().Codes()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received; draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		stopRecorder()
		if err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return recorder.Run(recorderCtx)
	})
	g.Go(func() error {
		return limiter.Run(gctx, cfg.Cache.JanitorInterval)
	})
	if cfg.Cache.Enabled {
		memoryStore.StartJanitor(gctx, cfg.Cache.JanitorInterval, func(removed int) {
			logger.Debug("cache janitor swept expired entries", zap.Int("removed", removed))
		})
	}

	if cfg.Generation.WatchTemplates && cfg.Generation.TemplateDir != "" {
		watcher, err := culture.NewWatcher(cfg.Generation.TemplateDir,
			func(ctx context.Context) error {
				_, err := catalog.Reload(ctx, "")
				return err
			},
			culture.WithWatchDebounce(cfg.Generation.WatchDebounce),
			culture.WithWatchLogger(logger.Named("watcher")),
		)
		if err != nil {
			logger.Fatal("failed to initialise template watcher", zap.Error(err))
		}
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("api stopped with error", zap.Error(err))
		return
	}
	logger.Info("api stopped", zap.Int64("recorder_dropped", recorder.Dropped()))
}

func newTemplateLoader(cfg config.GenerationConfig, logger *zap.Logger) *culture.Loader {
	return culture.NewDirLoader(cfg.TemplateDir, culture.WithLoaderLogger(logger))
}

// eventLogger adapts zap to the structured event callbacks the services accept.
func eventLogger(logger *zap.Logger, level zapcore.Level) func(context.Context, string, map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		ce := logger.Check(level, event)
		if ce == nil {
			return
		}
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		ce.Write(zFields...)
	}
}

func buildInfoFromEnv(cfg config.Config, started time.Time) services.BuildInfo {
	version := lookupEnv("MAGUS_BUILD_VERSION")
	if version == "" {
		version = "dev"
	}
	commit := lookupEnv("MAGUS_BUILD_COMMIT_SHA")
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSystemService(catalog services.CultureCatalog, provider *pfirestore.Provider, redisStore *cache.RedisStore, topic *pubsub.Topic, build services.BuildInfo) (services.SystemService, error) {
	var checks []repositories.DependencyCheck
	if provider != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check:   provider.Ping,
		})
	}
	if redisStore != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:     "redis",
			Timeout:  500 * time.Millisecond,
			Optional: true,
			Check:    redisStore.Ping,
		})
	}
	if topic != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:     "pubsub",
			Timeout:  time.Second,
			Optional: true,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s does not exist", topic.ID())
				}
				return nil
			},
		})
	}
	deps := services.SystemServiceDeps{
		Catalog: catalog,
		Clock:   time.Now,
		Build:   build,
	}
	if len(checks) > 0 {
		repo, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyTimeout(2*time.Second))
		if err != nil {
			return nil, err
		}
		deps.HealthRepository = repo
	}
	return services.NewSystemService(deps)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	project := lookupEnv("MAGUS_SECRET_PROJECT_ID")
	if project == "" {
		project = lookupEnv("MAGUS_FIRESTORE_PROJECT_ID")
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
	}
	if path := lookupEnv("MAGUS_SECRET_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if credentials := lookupEnv("MAGUS_SECRET_CREDENTIALS_FILE"); credentials != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentials)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames marks secret-backed fields as mandatory once they are configured as
// references, so a dangling reference fails startup instead of producing an empty value.
func requiredSecretNames() []string {
	candidates := map[string]string{
		"Redis.Password":          "MAGUS_REDIS_PASSWORD",
		"Security.InternalSecret": "MAGUS_SECURITY_INTERNAL_SECRET",
	}
	var required []string
	for name, key := range candidates {
		if isSecretReference(lookupEnv(key)) {
			required = append(required, name)
		}
	}
	return required
}

func isSecretReference(value string) bool {
	return strings.HasPrefix(value, "sm://") || strings.HasPrefix(value, "secret://")
}

func lookupEnv(key string) string {
	value, _, err := config.Lookup(key)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}
