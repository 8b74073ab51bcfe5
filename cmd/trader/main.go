package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coincheck-trade-bot-go/internal/coincheck"
	"coincheck-trade-bot-go/internal/config"
	"coincheck-trade-bot-go/internal/database"
	"coincheck-trade-bot-go/internal/lock"
	"coincheck-trade-bot-go/internal/logger"
	"coincheck-trade-bot-go/internal/slack"
	"coincheck-trade-bot-go/internal/trader"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}
	pair, err := cfg.Bot.Pair()
	if err != nil {
		panic(err)
	}

	// Initialize logger. The run id tags every log line and owns the lease.
	baseLog, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer baseLog.Sync()
	runID := uuid.NewString()
	log := logger.ForBot(baseLog, cfg.Bot.Name, pair.String(), runID)

	// Initialize database
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	store := database.NewStore(db)
	log.Info("Database connection successful and schema migrated.", zap.String("driver", cfg.Database.Driver))

	// Initialize collaborators
	client := coincheck.NewClient(cfg.Exchange, log)
	notifier := slack.NewClient(cfg.Slack, log)
	locker := lock.NewLocker(cfg.Redis, cfg.Bot.Name, runID, log)

	strategy, err := trader.NewStrategy(cfg.Bot.Strategy, cfg.Strategy, log)
	if err != nil {
		log.Fatal("Failed to create strategy", zap.Error(err))
	}

	poller := trader.NewPoller(cfg.Bot.WaitInterval(), cfg.Bot.ExternalServiceMaxAttempts, log)
	executor := trader.NewExecutor(client, store, notifier, poller, pair, cfg.Bot.DemoMode, cfg.Strategy.KeepLot, log)

	// the engine adds its own pair and run_id fields
	engine, err := trader.NewEngine(runID, cfg.Bot, cfg.Strategy, strategy, client, store, executor, locker,
		baseLog.With(zap.String("bot", cfg.Bot.Name)))
	if err != nil {
		log.Fatal("Failed to create trading engine", zap.Error(err))
	}

	// Setup context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the status API
	api := trader.NewAPIServer(engine, cfg.Server.StatusPort, log)
	api.Start()

	// Run the trading engine until a shutdown signal arrives
	log.Info("Bot started", zap.Bool("demo_mode", cfg.Bot.DemoMode))
	engine.Run(ctx)
	log.Info("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := api.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server", zap.Error(err))
	}
	if err := locker.Release(shutdownCtx); err != nil {
		log.Warn("Failed to release lock", zap.Error(err))
	}

	log.Info("Bot has been shut down.")
}
