package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"binance-trade-assistant/internal/binance"
	"binance-trade-assistant/internal/config"
	"binance-trade-assistant/internal/database"
	"binance-trade-assistant/internal/exchangeinfo"
	"binance-trade-assistant/internal/logger"
	"binance-trade-assistant/internal/server"
	"binance-trade-assistant/internal/store"
	"binance-trade-assistant/internal/trading"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")
	trades := store.NewTradeStore(db)
	registry := store.NewAutoSellStore(db)

	// Initialize Binance REST client
	restClient := binance.NewRestClient(&cfg.Binance, log)
	if _, err := restClient.GetServerTime(); err != nil {
		log.Fatal("Failed to connect to Binance API", zap.Error(err))
	}
	log.Info("Successfully connected to Binance API.")

	// Prime the exchange-info cache; the normalizer is useless without it.
	rules := exchangeinfo.NewCache(restClient, log)
	if err := rules.Refresh(); err != nil {
		log.Fatal("Failed to fetch initial exchange info", zap.Error(err))
	}

	service := trading.NewService(log, restClient, rules, trades, registry,
		time.Duration(cfg.Poller.FillCheckWait)*time.Second)
	poller := trading.NewPoller(log, restClient, registry,
		time.Duration(cfg.Poller.Interval)*time.Second)
	api := server.New(&cfg.Server, log, restClient, service, trades, registry)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Background tasks: hourly exchange-info refresh and the per-minute
	// auto-sell reconciliation loop.
	go rules.Run(ctx, time.Duration(cfg.Poller.ExchangeInfoRefresh)*time.Second)
	go poller.Run(ctx)

	go func() {
		if err := api.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("API server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	log.Info("Server has been shut down.")
}
