package collector

import (
	"context"
	"fmt"
	"time"

	"coincheck-trade-bot-go/internal/coincheck"
	"coincheck-trade-bot-go/internal/database"
	"coincheck-trade-bot-go/internal/models"
	"go.uber.org/zap"
)

// Collector records one market row per interval. The rows are the rate history the bot reads.
type Collector struct {
	client   coincheck.ClientInterface
	store    database.StoreInterface
	pair     models.Pair
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	lastTick time.Time
}

// NewCollector creates a collector for pair.
func NewCollector(client coincheck.ClientInterface, store database.StoreInterface, pair models.Pair, interval time.Duration, logger *zap.Logger) *Collector {
	return &Collector{
		client:   client,
		store:    store,
		pair:     pair,
		interval: interval,
		logger:   logger.Named("collector").With(zap.String("pair", pair.String())),
		now:      time.Now,
	}
}

// Run records a market every interval until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("Starting market collector", zap.Duration("interval", c.interval))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stopping market collector...")
			return
		case <-ticker.C:
			if _, err := c.Record(ctx); err != nil {
				c.logger.Error("Failed to record market", zap.Error(err))
			}
		}
	}
}

// Record fetches the rates and the volumes traded since the previous tick and stores them.
func (c *Collector) Record(ctx context.Context) (*models.Market, error) {
	now := c.now()
	pair := c.pair.String()

	sellRate, err := c.client.GetTickerRate(ctx, coincheck.OrderTypeSell, pair)
	if err != nil {
		return nil, fmt.Errorf("failed to get sell rate: %w", err)
	}
	buyRate, err := c.client.GetTickerRate(ctx, coincheck.OrderTypeBuy, pair)
	if err != nil {
		return nil, fmt.Errorf("failed to get buy rate: %w", err)
	}
	trades, err := c.client.GetTrades(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("failed to get trades: %w", err)
	}

	since := c.lastTick
	if since.IsZero() {
		since = now.Add(-c.interval)
	}

	market := &models.Market{
		Pair:         pair,
		StoreRateAvg: (sellRate + buyRate) / 2,
		ExRateSell:   sellRate,
		ExRateBuy:    buyRate,
		RecordedAt:   now,
	}
	for _, trade := range trades {
		if !trade.CreatedAt.After(since) || trade.CreatedAt.After(now) {
			continue
		}
		switch trade.OrderType {
		case coincheck.OrderTypeSell:
			market.ExVolumeSell += trade.Amount
		case coincheck.OrderTypeBuy:
			market.ExVolumeBuy += trade.Amount
		}
	}

	if err := c.store.InsertMarket(market); err != nil {
		return nil, fmt.Errorf("failed to insert market: %w", err)
	}
	c.lastTick = now

	c.logger.Debug("Market recorded",
		zap.Float64("sell_rate", market.ExRateSell),
		zap.Float64("buy_rate", market.ExRateBuy),
		zap.Float64("sell_volume", market.ExVolumeSell),
		zap.Float64("buy_volume", market.ExVolumeBuy),
	)
	return market, nil
}
