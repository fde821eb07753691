package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cimillas/ticket-ledger/internal/app"
	"github.com/cimillas/ticket-ledger/internal/auth"
	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/config"
	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/logger"
	"github.com/cimillas/ticket-ledger/internal/messaging"
	"github.com/cimillas/ticket-ledger/internal/storage/postgres"
	transporthttp "github.com/cimillas/ticket-ledger/internal/transport/http"
	"github.com/cimillas/ticket-ledger/migrations"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if err := logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags:      map[string]string{"service": "ticket-ledger-api"},
	}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)

	startupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
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

	if cfg.Database.RunMigrations {
		if err := migrations.Apply(startupCtx, pool); err != nil {
			logger.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

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
		logger.Info("publishing ledger events", zap.String("stream", cfg.NATS.StreamName))
	} else {
		logger.Warn("nats.url not set, ledger events are not published")
	}
	defer publisher.Close()

	addressing, err := domain.ParseAddressingScheme(cfg.Ledger.TicketAddressing)
	if err != nil {
		logger.Fatal("invalid ticket addressing", zap.Error(err))
	}
	opts := []app.Option{
		app.WithPublisher(publisher),
		app.WithAddressing(addressing),
		app.WithPurchasePayments(cfg.Ledger.PurchasePayments),
		app.WithDefaultOracle(domain.Identity(cfg.Oracle.DefaultIdentity)),
		app.WithReResolution(cfg.Oracle.AllowReResolution),
	}

	clk := clock.NewSystem()
	store := postgres.NewStore(pool, clk)
	passport := app.NewPassportService(store)
	services := transporthttp.Services{
		Registry: app.NewRegistryService(store, clk, opts...),
		Tickets:  app.NewTicketService(store, store, clk, opts...),
		Resale:   app.NewResaleService(store, clk, opts...),
		Oracle:   app.NewOracleService(store, clk, opts...),
		Refunds:  app.NewRefundService(store, store, clk, opts...),
		CheckIn:  app.NewCheckInService(store, passport, clk, opts...),
		Passport: passport,
		Accounts: app.NewAccountService(store),
	}

	verifier := auth.NewVerifier(auth.Config{
		JWTSecret:    cfg.Auth.JWTSecret,
		Issuer:       cfg.Auth.Issuer,
		OperatorKeys: cfg.Auth.OperatorKeys,
		Leeway:       cfg.Auth.Leeway,
	})

	handler := transporthttp.NewRouter(services, verifier, transporthttp.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger.Default(),
		DB:             pool,
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	logger.Info("api listening", zap.String("addr", server.Addr))

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, zap.String("phase", "serve"))
		}
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(err, zap.String("phase", "shutdown"))
	}
	logger.Info("server stopped")
}
