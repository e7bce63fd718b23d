package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/sunup/pkg/api"
	"github.com/platinummonkey/sunup/pkg/audit"
	"github.com/platinummonkey/sunup/pkg/auth"
	"github.com/platinummonkey/sunup/pkg/config"
	"github.com/platinummonkey/sunup/pkg/events"
	"github.com/platinummonkey/sunup/pkg/httputil"
	"github.com/platinummonkey/sunup/pkg/jobs"
	"github.com/platinummonkey/sunup/pkg/middleware"
	"github.com/platinummonkey/sunup/pkg/observability"
	"github.com/platinummonkey/sunup/pkg/organizations"
	"github.com/platinummonkey/sunup/pkg/people"
	"github.com/platinummonkey/sunup/pkg/pipeline"
	"github.com/platinummonkey/sunup/pkg/storage"
	"github.com/platinummonkey/sunup/pkg/users"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).
		WithField("service", "sunup").
		WithField("version", version)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(observability.WithLogger(context.Background(), logger))
	defer cancel()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if err := storage.Migrate(ctx, db, logger); err != nil {
		db.Close()
		return err
	}
	store := storage.New(db, storage.Options{
		Driver:     cfg.Database.Driver,
		MaxRetries: cfg.Database.MaxTxRetries,
		Logger:     logger,
		Metrics:    metrics,
	})
	logger.WithField("driver", store.Driver()).Info("Database ready")

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = storage.OpenRedis(ctx, cfg.Redis.URL)
		if err != nil {
			db.Close()
			return err
		}
		logger.Info("Redis ready")
	}

	dbAudit, err := audit.NewDBLogger(db)
	if err != nil {
		return err
	}
	// Audit writes drain after request handling stops, so the pool outlives ctx.
	auditLog := audit.NewAsyncMultiLogger(context.WithoutCancel(ctx), cfg.Events.Workers, cfg.Events.HandlerTimeout,
		dbAudit, audit.NewLogSink(logger))

	guard := auth.NewGuard(auth.GuardOptions{
		CacheSize: cfg.Auth.IdentityCacheMax,
		CacheTTL:  cfg.Auth.IdentityCacheTTL,
		Audit:     auditLog,
		Metrics:   metrics,
	})

	eventRegistry := events.NewRegistry(logger, metrics)
	eventRegistry.Register(events.EventTypeStageChanged, "log", events.LogPipelineChange(store, logger))
	eventRegistry.Register(events.EventTypeStageChanged, "metrics", events.MetricsHandler(metrics))
	if redisClient != nil {
		publisher := events.NewRedisStreamPublisher(redisClient, cfg.Redis.Stream, cfg.Redis.StreamMaxLen)
		eventRegistry.Register(events.EventTypeStageChanged, "redis-stream", publisher.Handle)
	}
	var dispatcher events.Dispatcher = eventRegistry
	if cfg.Events.Async {
		dispatcher = events.NewAsyncDispatcher(eventRegistry, cfg.Events.HandlerTimeout)
	}

	pipelineSvc := pipeline.NewService(store, guard, pipeline.Options{
		Dispatcher:    dispatcher,
		Audit:         auditLog,
		Metrics:       metrics,
		DefaultStages: cfg.Pipeline.DefaultStages,
	})
	server := api.NewServer(api.Services{
		People:        people.NewService(store, guard, pipelineSvc, auditLog),
		Pipeline:      pipelineSvc,
		Users:         users.NewService(store, guard, auditLog),
		Organizations: organizations.NewService(store, guard, auditLog),
	})
	server.Router().Use(observability.HTTPMetricsMiddleware(metrics))

	source, err := identitySource(ctx, cfg.Auth)
	if err != nil {
		return err
	}

	chain := []func(http.Handler) http.Handler{
		httputil.RecoveryMiddleware,
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.CORSMiddleware(cfg.Server.AllowedOrigins),
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
		middleware.IdentityMiddleware(source),
	}
	if cfg.RateLimit.Enabled {
		identified, anonymous := middleware.LimitersFromConfig(cfg.RateLimit, redisClient)
		for _, l := range []middleware.Limiter{identified, anonymous} {
			if local, ok := l.(*middleware.RateLimiter); ok {
				local.StartCleanup(ctx)
			}
		}
		chain = append(chain, middleware.NewRateLimitMiddleware(identified, anonymous).Handler)
	}
	handler := otelhttp.NewHandler(httputil.Chain(chain...)(server), "sunup-api")

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	health := observability.NewHealthChecker(db, redisClient, version)
	health.AddCheck("schema", true, func(ctx context.Context) error {
		pending, err := storage.PendingMigrations(ctx, db)
		if err != nil {
			return err
		}
		if len(pending) > 0 {
			return fmt.Errorf("%d migrations pending", len(pending))
		}
		return nil
	})
	observability.RegisterHealthRoutes(healthMux, health)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	scheduler := jobs.NewScheduler(logger)
	if cfg.Jobs.StatsEnabled {
		if err := scheduler.Add(cfg.Jobs.StatsSchedule, jobs.NewStatsRefresher(store, metrics, cfg.Events.Workers)); err != nil {
			return err
		}
	}
	if cfg.Jobs.AuditRetentionDays > 0 {
		if err := scheduler.Add(cfg.Jobs.AuditPruneSchedule, jobs.NewAuditPruner(dbAudit, cfg.Jobs.AuditRetentionDays)); err != nil {
			return err
		}
	}
	scheduler.Start(ctx)

	go func() {
		defer observability.RecoverPanic(logger, "db stats")
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.RecordDBStats(db.Stats())
			case <-ctx.Done():
				return
			}
		}
	}()

	if path := os.Getenv("SUNUP_CONFIG_FILE"); path != "" {
		go func() {
			defer observability.RecoverPanic(logger, "config watch")
			err := config.Watch(ctx, path, logger, func(next *config.Config) {
				logger.SetLevel(next.Observability.Level())
				pipelineSvc.SetDefaultStages(next.Pipeline.DefaultStages)
				logger.Info("Applied configuration change")
			})
			if err != nil {
				logger.WithError(err).Warn("Config watch stopped")
			}
		}()
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		db.Close()
		return nil
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return auditLog.Close()
	})
	shutdown.RegisterShutdownFunc(otelProviders.Shutdown)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		cancel()
		return scheduler.Stop(ctx)
	})

	errCh := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		srv := srv
		go func() {
			logger.WithField("addr", srv.Addr).Info("Listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}()
	}

	failed := make(chan error, 1)
	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()
	go func() {
		select {
		case err := <-errCh:
			failed <- err
			stopWaiting()
		case <-waitCtx.Done():
		}
	}()

	if err := shutdown.WaitForShutdown(waitCtx); err != nil {
		return err
	}
	select {
	case err := <-failed:
		return err
	default:
		return nil
	}
}

func identitySource(ctx context.Context, cfg config.AuthConfig) (auth.IdentitySource, error) {
	switch cfg.Mode {
	case config.AuthModeHeader:
		return auth.NewHeaderSource(cfg.SubjectHeader), nil
	case config.AuthModeOIDC:
		return auth.NewOIDCSource(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID)
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}
