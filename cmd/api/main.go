package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/card-connector/api/controllers"
	"github.com/angelmondragon/card-connector/api/routes"
	"github.com/angelmondragon/card-connector/internal/cards"
	"github.com/angelmondragon/card-connector/internal/cardsync"
	"github.com/angelmondragon/card-connector/internal/operations"
	"github.com/angelmondragon/card-connector/internal/processor"
	"github.com/angelmondragon/card-connector/internal/upstream"
	"github.com/angelmondragon/card-connector/internal/webhookevents"
	"github.com/angelmondragon/card-connector/pkg/config"
	"github.com/angelmondragon/card-connector/pkg/db"
	"github.com/angelmondragon/card-connector/pkg/logger"
	"github.com/angelmondragon/card-connector/pkg/metrics"
	"github.com/angelmondragon/card-connector/pkg/migrate"
	"github.com/angelmondragon/card-connector/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "card-connector"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: cfg.App.Name,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = db.DriverSQLite
	}
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	var (
		redisClient *redis.Client
		redisPinger controllers.Pinger
	)
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		redisPinger = redisClient
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	syncMetrics := metrics.NewSyncMetrics(registry)

	gateway, err := newGateway(cfg.Processor, logg, syncMetrics)
	if err != nil {
		return err
	}

	cacheOpts := []upstream.CacheOption{
		upstream.WithCacheMetrics(syncMetrics),
		upstream.WithCacheLogger(logg),
	}
	if redisClient != nil {
		cacheOpts = append(cacheOpts, upstream.WithSharedStore(redisClient, redisClient.TokenKey(cfg.Upstream.AdminBaseURL, cfg.Upstream.ClientID)))
	}
	credentials := upstream.NewCredentialCache(
		upstream.NewEndpointFetcher(cfg.Upstream, nil),
		cfg.Upstream.TokenExpirySkew,
		cacheOpts...,
	)
	reporter, err := upstream.NewReporter(cfg.Upstream, credentials,
		upstream.WithMetrics(syncMetrics),
		upstream.WithLogger(logg),
	)
	if err != nil {
		return err
	}

	cardRepo := cards.NewRepository(dbClient.DB())
	operationRepo := operations.NewRepository(dbClient.DB())
	syncService, err := cardsync.NewService(cardsync.ServiceParams{
		Tx:         dbClient,
		Cards:      cardRepo,
		Operations: operationRepo,
		Gateway:    gateway,
		Reporter:   reporter,
		Metrics:    syncMetrics,
		Logger:     logg,
	})
	if err != nil {
		return err
	}

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisPinger,
			registry,
			syncService,
			webhookevents.NewRepository(dbClient.DB()),
			cardRepo,
			operationRepo,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveCtx := logg.WithFields(ctx, map[string]any{
		"env":            cfg.App.Env,
		"addr":           addr,
		"processor_mock": cfg.Processor.UseMock,
		"redis":          redisClient != nil,
	})
	logg.Info(serveCtx, "starting api server")

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logg.Info(serveCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newGateway(cfg config.ProcessorConfig, logg *logger.Logger, m *metrics.SyncMetrics) (cardsync.Gateway, error) {
	if cfg.UseMock {
		logg.Warn(context.Background(), "processor mock mode enabled")
		return processor.NewMockGateway(logg, m), nil
	}
	client, err := processor.NewClient(cfg.BaseURL, cfg.APIKey,
		processor.WithTimeout(cfg.Timeout),
		processor.WithMetrics(m),
		processor.WithLogger(logg),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}
