package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cimillas/ticket-ledger/internal/app"
	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/config"
	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/logger"
	"github.com/cimillas/ticket-ledger/internal/messaging"
	"github.com/cimillas/ticket-ledger/internal/oracle"
	"github.com/cimillas/ticket-ledger/internal/storage/postgres"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadOracleWorkerConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if err := logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags:      map[string]string{"service": "ticket-ledger-oracle-worker"},
	}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := postgres.OpenPool(startupCtx, postgres.PoolConfig{
		ConnString:      cfg.Database.ConnString(),
		MaxConns:        cfg.Database.MaxConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer pool.Close()

	publisher := messaging.Publisher(messaging.NopPublisher{})
	if cfg.NATS.URL != "" {
		publisher, err = messaging.NewJetStreamPublisher(startupCtx, messaging.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
		})
		if err != nil {
			logger.Fatal("failed to connect to NATS", zap.Error(err))
		}
	}
	defer publisher.Close()

	identity := domain.Identity(cfg.Oracle.DefaultIdentity)
	clk := clock.NewSystem()
	store := postgres.NewStore(pool, clk)
	resolutions := app.NewOracleService(store, clk,
		app.WithPublisher(publisher),
		app.WithDefaultOracle(identity),
		app.WithReResolution(cfg.Oracle.AllowReResolution),
	)

	gamma := oracle.NewGammaClient(cfg.Polymarket.GammaURL, cfg.Polymarket.Timeout,
		oracle.WithAPIKey(cfg.Polymarket.APIKey),
		oracle.WithMaxRetries(cfg.Polymarket.MaxRetries),
	)

	worker := oracle.NewWorker(oracle.WorkerConfig{
		Identity:     identity,
		PoolSize:     cfg.Worker.PoolSize,
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.BatchSize,
	}, gamma, resolutions)

	if err := worker.Run(ctx); err != nil {
		logger.Error(err)
	}
	logger.Info("oracle worker stopped")
}
