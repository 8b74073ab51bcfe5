package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coincheck-trade-bot-go/internal/coincheck"
	"coincheck-trade-bot-go/internal/collector"
	"coincheck-trade-bot-go/internal/config"
	"coincheck-trade-bot-go/internal/database"
	"coincheck-trade-bot-go/internal/logger"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	pair, err := cfg.Bot.Pair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid target pair: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the database
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := coincheck.NewClient(cfg.Exchange, log)
	interval := time.Duration(cfg.Collector.IntervalSec) * time.Second
	collector.NewCollector(client, database.NewStore(db), pair, interval, log).Run(ctx)
}
