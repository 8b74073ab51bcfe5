package trader

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"coincheck-trade-bot-go/internal/coincheck"
	"coincheck-trade-bot-go/internal/config"
	"coincheck-trade-bot-go/internal/database"
	"coincheck-trade-bot-go/internal/lock"
	"coincheck-trade-bot-go/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	metricPairAll = "all"
	metricTotal   = "total_jpy"

	longTrendFlat = 0
	longTrendUp   = 1
	longTrendDown = 2
)

// CycleStatus describes the outcome of the last cycle.
type CycleStatus struct {
	At      time.Time `json:"at"`
	Actions int       `json:"actions"`
	Error   string    `json:"error,omitempty"`
}

// Engine is the control loop: snapshot, persist metrics, decide, execute, sleep.
type Engine struct {
	UUID      string
	Name      string
	StartTime time.Time

	bot      config.Bot
	cfg      config.Strategy
	pair     models.Pair
	strategy Strategy
	client   coincheck.ClientInterface
	store    database.StoreInterface
	executor *Executor
	locker   lock.Locker
	logger   *zap.Logger
	now      func() time.Time

	mu   sync.RWMutex
	last CycleStatus
}

// NewEngine creates a new trading engine. An empty runID gets a random one.
func NewEngine(
	runID string,
	bot config.Bot,
	cfg config.Strategy,
	strategy Strategy,
	client coincheck.ClientInterface,
	store database.StoreInterface,
	executor *Executor,
	locker lock.Locker,
	logger *zap.Logger,
) (*Engine, error) {
	pair, err := bot.Pair()
	if err != nil {
		return nil, err
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Engine{
		UUID:      runID,
		Name:      bot.Name,
		StartTime: time.Now(),
		bot:       bot,
		cfg:       cfg,
		pair:      pair,
		strategy:  strategy,
		client:    client,
		store:     store,
		executor:  executor,
		locker:    locker,
		logger:    logger.With(zap.String("pair", pair.String()), zap.String("run_id", runID)),
		now:       time.Now,
	}, nil
}

// Run starts the engine's main loop and blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	interval := e.bot.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting trade loop",
		zap.String("strategy", e.strategy.Name()),
		zap.Duration("interval", interval),
		zap.Bool("demo_mode", e.bot.DemoMode),
	)

	e.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine...")
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	if err := e.RunOnce(ctx); err != nil {
		e.logger.Error("Cycle failed", zap.Error(err))
	}
}

// RunOnce runs a single cycle.
func (e *Engine) RunOnce(ctx context.Context) (err error) {
	now := e.now()
	actions := 0
	defer func() {
		status := CycleStatus{At: now, Actions: actions}
		if err != nil {
			status.Error = err.Error()
		}
		e.mu.Lock()
		e.last = status
		e.mu.Unlock()
	}()

	held, err := e.locker.Hold(ctx)
	if err != nil {
		return err
	}
	if !held {
		e.logger.Warn("Another instance holds the lease, skipping cycle")
		return nil
	}

	info, err := e.fetch(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to fetch trade info: %w", err)
	}
	e.logBanner(info)

	if err := e.upsertMetrics(info); err != nil {
		return err
	}

	perLot, err := e.buyJPYPerLot(info)
	if err != nil {
		return err
	}

	decided, err := e.strategy.Judge(now, info, perLot)
	if err != nil {
		return fmt.Errorf("failed to judge: %w", err)
	}
	actions = len(decided)
	for _, a := range decided {
		e.logger.Info("Action decided", zap.String("action", a.Name()), zap.Any("detail", a))
	}

	// waits inside an action may outlive the lease TTL
	guarded, stop := lock.Guard(ctx, e.locker, e.logger)
	defer stop()
	e.executor.Execute(guarded, decided)
	if cause := context.Cause(guarded); errors.Is(cause, lock.ErrLeaseLost) {
		return cause
	}
	return nil
}

// LastCycle returns the status of the most recent cycle.
func (e *Engine) LastCycle() CycleStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// StrategyName returns the name of the running strategy.
func (e *Engine) StrategyName() string {
	return e.strategy.Name()
}

func (e *Engine) fetch(ctx context.Context, now time.Time) (*TradeInfo, error) {
	pair := e.pair.String()

	buyRate, err := e.client.GetTickerRate(ctx, coincheck.OrderTypeBuy, pair)
	if err != nil {
		return nil, err
	}

	balances, err := e.client.GetBalances(ctx)
	if err != nil {
		return nil, err
	}

	// the key currency is always priced, other currencies only when held
	currencies := []string{e.pair.Key}
	for currency, b := range balances {
		if currency == e.pair.Settlement || currency == e.pair.Key || b.Total() <= 0 {
			continue
		}
		currencies = append(currencies, currency)
	}
	slices.Sort(currencies[1:])

	sellRates := make(map[string]float64, len(currencies))
	for _, currency := range currencies {
		p := e.pair.WithSettlement(currency)
		r, err := e.client.GetTickerRate(ctx, coincheck.OrderTypeSell, p)
		if err != nil {
			return nil, err
		}
		sellRates[p] = r
	}

	markets, err := e.store.SelectMarkets(pair, now.Add(-e.bot.RatePeriod()))
	if err != nil {
		return nil, err
	}

	orders, err := e.client.GetOpenOrders(ctx)
	if err != nil {
		return nil, err
	}
	var pairOrders []coincheck.OpenOrder
	for _, o := range orders {
		if o.Pair == pair {
			pairOrders = append(pairOrders, o)
		}
	}

	histories := markets.RateHistories()
	supportLong, err := SupportLines(histories, e.cfg.SupportLinePeriodLong, e.cfg.SupportLineOffset)
	if err != nil {
		return nil, err
	}
	supportShort, err := SupportLines(histories, e.cfg.SupportLinePeriodShort, e.cfg.SupportLineOffset)
	if err != nil {
		return nil, err
	}
	resistance, err := ResistanceLines(histories, e.cfg.ResistanceLinePeriod, e.cfg.ResistanceLineOffset)
	if err != nil {
		return nil, err
	}

	books, err := e.client.GetOrderBooks(ctx, pair)
	if err != nil {
		return nil, err
	}

	summary, err := e.store.SelectMarketSummary(pair, e.cfg.MarketSummaryOffsetHour, now)
	if err != nil {
		return nil, err
	}

	return NewTradeInfo(TradeInfo{
		Pair:              e.pair,
		SellRates:         sellRates,
		BuyRate:           buyRate,
		Balances:          balances,
		OpenOrders:        pairOrders,
		RateHistories:     histories,
		SellVolumes:       markets.SellVolumes(),
		BuyVolumes:        markets.BuyVolumes(),
		SupportLinesLong:  supportLong,
		SupportLinesShort: supportShort,
		ResistanceLines:   resistance,
		OrderBooks:        books,
		MarketSummary:     summary,
	})
}

func (e *Engine) logBanner(info *TradeInfo) {
	sellRate, _ := info.SellRate()
	key, _ := info.BalanceKey()
	settlement, _ := info.BalanceSettlement()
	e.logger.Info("==========",
		zap.Float64("sell_rate", sellRate),
		zap.Float64("buy_rate", info.BuyRate),
		zap.Float64("balance_"+e.pair.Key, key.Total()),
		zap.Float64("balance_"+e.pair.Settlement, settlement.Total()),
		zap.Int("open_orders", len(info.OpenOrders)),
	)
}

func (e *Engine) upsertMetrics(info *TradeInfo) error {
	pair := e.pair.String()

	minRate, ok := info.MinSellOrderRate()
	if !ok {
		minRate = -1
	}
	if err := e.upsert(pair, "sell_rate", minRate, ""); err != nil {
		return err
	}

	lines := []struct {
		name  string
		value []float64
	}{
		{"resistance_line", info.ResistanceLines},
		{"support_line", info.SupportLinesLong},
		{"support_line_short", info.SupportLinesShort},
	}
	for _, line := range lines {
		last, slope := lineTail(line.value)
		if err := e.upsert(pair, line.name+"_value", last, ""); err != nil {
			return err
		}
		if err := e.upsert(pair, line.name+"_slope", slope, ""); err != nil {
			return err
		}
	}

	if err := e.upsert(pair, "long_trend", float64(e.longTrend(info)), ""); err != nil {
		return err
	}

	return e.upsertTotal(info)
}

// upsertTotal keeps the running capital baseline: it is only allowed to fall while no
// position is held.
func (e *Engine) upsertTotal(info *TradeInfo) error {
	total, err := info.TotalBalanceSettlement()
	if err != nil {
		return err
	}
	hasPosition, err := info.HasPosition()
	if err != nil {
		return err
	}

	stored, err := e.store.SelectBotStatus(e.Name, metricPairAll, metricTotal)
	switch {
	case errors.Is(err, database.ErrRecordNotFound):
	case err != nil:
		return err
	case hasPosition && total <= stored.Value:
		return nil
	}
	return e.upsert(metricPairAll, metricTotal, total, fmt.Sprintf("has_position:%t", hasPosition))
}

func (e *Engine) longTrend(info *TradeInfo) int {
	up, err := info.IsUpTrend(e.cfg.WMAPeriodShort, e.cfg.WMAPeriodLong)
	if err != nil {
		e.logger.Debug("Trend is unavailable", zap.Error(err))
		return longTrendFlat
	}
	if up {
		return longTrendUp
	}
	down, _ := info.IsDownTrend(e.cfg.WMAPeriodShort, e.cfg.WMAPeriodLong)
	if down {
		return longTrendDown
	}
	return longTrendFlat
}

func (e *Engine) upsert(pair, statusType string, value float64, memo string) error {
	return e.store.UpsertBotStatus(&models.BotStatus{
		BotName: e.Name,
		Pair:    pair,
		Type:    statusType,
		Value:   value,
		Memo:    memo,
	})
}

// buyJPYPerLot sizes one lot from the capital baseline, or from the current total when there
// is no baseline yet.
func (e *Engine) buyJPYPerLot(info *TradeInfo) (float64, error) {
	status, err := e.store.SelectBotStatus(e.Name, metricPairAll, metricTotal)
	if errors.Is(err, database.ErrRecordNotFound) {
		total, err := info.TotalBalanceSettlement()
		if err != nil {
			return 0, err
		}
		return total * e.cfg.FundsRatioPerOrder, nil
	}
	if err != nil {
		return 0, err
	}
	return status.Value * e.cfg.FundsRatioPerOrder, nil
}

func lineTail(line []float64) (last, slope float64) {
	if len(line) == 0 {
		return 0, 0
	}
	last = line[len(line)-1]
	if len(line) > 1 {
		slope = last - line[len(line)-2]
	}
	return last, slope
}
