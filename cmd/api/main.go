package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/arc-self/order-lifecycle/internal/cache"
	"github.com/arc-self/order-lifecycle/internal/config"
	"github.com/arc-self/order-lifecycle/internal/consumer"
	"github.com/arc-self/order-lifecycle/internal/directory"
	"github.com/arc-self/order-lifecycle/internal/handler"
	"github.com/arc-self/order-lifecycle/internal/natsclient"
	"github.com/arc-self/order-lifecycle/internal/outbox"
	"github.com/arc-self/order-lifecycle/internal/processor"
	"github.com/arc-self/order-lifecycle/internal/relay"
	db "github.com/arc-self/order-lifecycle/internal/repository/db"
	"github.com/arc-self/order-lifecycle/internal/service"
	"github.com/arc-self/order-lifecycle/internal/telemetry"
)

func main() {
	// ── Structured Logger ──────────────────────────────────────────────────
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	svcCfg := config.LoadService("order-lifecycle-api")
	tunables := config.LoadTunables()

	// ── OpenTelemetry Tracer ───────────────────────────────────────────────
	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint != "" {
		tp, err := telemetry.InitTracer(context.Background(), svcCfg.Name, otelEndpoint)
		if err != nil {
			logger.Error("failed to init OTel tracer", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
		mp, err := telemetry.InitMeterProvider(context.Background(), svcCfg.Name, otelEndpoint)
		if err != nil {
			logger.Error("failed to init OTel meter provider", zap.Error(err))
		} else {
			defer mp.Shutdown(context.Background())
		}
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	// ── Vault Secret Loading ───────────────────────────────────────────────
	vaultAddr := envOr("VAULT_ADDR", "http://localhost:8200")
	vaultToken := envOr("VAULT_TOKEN", "root")
	secretPath := envOr("VAULT_SECRET_PATH", "secret/data/order-lifecycle")

	vaultManager, err := config.NewSecretManager(vaultAddr, vaultToken)
	if err != nil {
		logger.Fatal("Vault connection failed", zap.Error(err))
	}
	secrets, err := vaultManager.GetKV2(secretPath)
	if err != nil {
		logger.Fatal("failed to load secrets from Vault", zap.Error(err))
	}
	pgURL := secrets["PG_URL"].(string)
	natsURL := secrets["NATS_URL"].(string)
	redisURL := secrets["REDIS_URL"].(string)

	// ── Database Connection Pool (OTel-instrumented) ───────────────────────
	poolCfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		logger.Fatal("failed to parse PG_URL", zap.Error(err))
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()
	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()
	querier := db.New(pool)

	// ── Redis ────────────────────────────────────────────────────────────
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Fatal("failed to parse REDIS_URL", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	userCache := cache.New(rdb, tunables.UserCacheTTL, tunables.ProcessedEventTTL)

	// ── NATS JetStream ─────────────────────────────────────────────────────
	natsClient, err := natsclient.NewClient(natsURL, logger)
	if err != nil {
		logger.Fatal("NATS connection failed", zap.Error(err))
	}
	defer natsClient.Close()
	if err := natsClient.ProvisionStreams(); err != nil {
		logger.Fatal("NATS stream provisioning failed", zap.Error(err))
	}

	// ── User directory collaborator ───────────────────────────────────────
	var dirClient directory.Client
	if userServiceURL := os.Getenv("USER_SERVICE_URL"); userServiceURL != "" {
		dirClient = directory.NewClient(userServiceURL)
	} else {
		logger.Warn("USER_SERVICE_URL not set, falling back to the in-memory mock directory")
		dirClient = directory.NewMockClient(nil)
	}

	outboxStore := outbox.NewStore()
	orderSvc := service.NewOrderService(pool, querier, dirClient, userCache, outboxStore, metrics)

	// ── Background tasks: lifecycle processor and event consumer ──────────
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	lifecycleProcessor := processor.New(pool, outboxStore, processor.Config{
		ConfirmDelay: tunables.OrderConfirmDelay,
		ShipDelay:    tunables.OrderShipDelay,
		Interval:     tunables.ProcessorInterval,
	}, logger, metrics)
	go lifecycleProcessor.Run(bgCtx)

	eventConsumer := consumer.New(natsClient, pool, querier, userCache, relay.NewPublisher(natsClient),
		"order-lifecycle-consumer", logger, metrics)
	go func() {
		if err := eventConsumer.Run(bgCtx); err != nil {
			logger.Error("event consumer exited", zap.Error(err))
		}
	}()

	// ── HTTP Server ────────────────────────────────────────────────────────
	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware(svcCfg.Name))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("HTTP request",
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	handler.NewOrderHandler(orderSvc, logger).Register(e)
	handler.NewHealthHandler(pool, userCache).Register(e)

	go func() {
		logger.Info("order-lifecycle-api HTTP server listening", zap.String("addr", ":8080"))
		if err := e.Start(":8080"); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failure", zap.Error(err))
		}
	}()

	// ── Graceful Shutdown ──────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("initiating graceful shutdown")

	bgCancel() // stop the lifecycle processor and event consumer loops

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown error", zap.Error(err))
	}
	logger.Info("order-lifecycle-api shut down cleanly")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
