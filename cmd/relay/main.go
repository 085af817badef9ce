package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arc-self/order-lifecycle/internal/config"
	"github.com/arc-self/order-lifecycle/internal/natsclient"
	"github.com/arc-self/order-lifecycle/internal/relay"
	"github.com/arc-self/order-lifecycle/internal/telemetry"
)

// cmd/relay is the §6.7 standalone relay process — the same §4.4 worker
// cmd/api could run in-process, deployed separately so it scales
// independently of the HTTP API.
func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	svcCfg := config.LoadService("order-lifecycle-relay")
	tunables := config.LoadTunables()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint != "" {
		tp, err := telemetry.InitTracer(context.Background(), svcCfg.Name, otelEndpoint)
		if err != nil {
			logger.Error("failed to init OTel tracer", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

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

	natsClient, err := natsclient.NewClient(natsURL, logger)
	if err != nil {
		logger.Fatal("NATS connection failed", zap.Error(err))
	}
	defer natsClient.Close()
	if err := natsClient.ProvisionStreams(); err != nil {
		logger.Fatal("NATS stream provisioning failed", zap.Error(err))
	}

	r := relay.NewRelay(pool, relay.NewPublisher(natsClient), relay.Config{
		BatchSize:       tunables.OutboxBatchSize,
		PollInterval:    tunables.OutboxPollInterval,
		ErrorBackoff:    tunables.OutboxErrorBackoff,
		MaxRetries:      tunables.OutboxMaxRetryAttempts,
		ErrorMessageMax: tunables.OutboxErrorMessageMax,
	}, logger, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	logger.Info("order-lifecycle-relay started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("initiating graceful shutdown")
	cancel()
	logger.Info("order-lifecycle-relay shut down cleanly")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
