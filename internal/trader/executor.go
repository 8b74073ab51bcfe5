package trader

import (
	"context"
	"fmt"
	"time"

	"coincheck-trade-bot-go/internal/coincheck"
	"coincheck-trade-bot-go/internal/database"
	"coincheck-trade-bot-go/internal/models"
	"coincheck-trade-bot-go/internal/slack"
	"go.uber.org/zap"
)

// Executor turns actions into exchange operations, one action at a time.
type Executor struct {
	client   coincheck.ClientInterface
	store    database.StoreInterface
	notifier slack.ClientInterface
	poller   *Poller
	pair     models.Pair
	demoMode bool
	keepLot  float64
	logger   *zap.Logger
	now      func() time.Time
}

// NewExecutor creates an executor trading pair.
func NewExecutor(
	client coincheck.ClientInterface,
	store database.StoreInterface,
	notifier slack.ClientInterface,
	poller *Poller,
	pair models.Pair,
	demoMode bool,
	keepLot float64,
	logger *zap.Logger,
) *Executor {
	return &Executor{
		client:   client,
		store:    store,
		notifier: notifier,
		poller:   poller,
		pair:     pair,
		demoMode: demoMode,
		keepLot:  keepLot,
		logger:   logger.Named("executor"),
		now:      time.Now,
	}
}

// Execute runs the actions in order. A failed action is logged and reported, and the
// remaining actions still run.
func (e *Executor) Execute(ctx context.Context, actions []Action) {
	for _, action := range actions {
		if ctx.Err() != nil {
			return
		}
		l := e.logger.With(zap.String("action", action.Name()))

		// sent in demo mode too
		if a, ok := action.(NotifyAction); ok {
			l.Info(a.LogMessage)
			e.notify(ctx, a.Message)
			continue
		}

		if e.demoMode {
			l.Info("[Demo] Skipping action", zap.Any("detail", action))
			continue
		}

		// an earlier action of the batch may have moved the balance
		balance, err := e.balance(ctx, e.pair.Settlement)
		if err != nil {
			l.Error("Failed to fetch settlement balance", zap.Error(err))
			e.notify(ctx, fmt.Sprintf("%s skipped, failed to fetch balance: %v", action.Name(), err))
			continue
		}

		if err := e.execute(ctx, l, action, balance); err != nil {
			l.Error("Failed to execute action", zap.Error(err))
			e.notify(ctx, fmt.Sprintf("%s failed: %v", action.Name(), err))
		}
	}
}

func (e *Executor) execute(ctx context.Context, l *zap.Logger, action Action, balance coincheck.Balance) error {
	switch a := action.(type) {
	case EntryAction:
		return e.entry(ctx, l, a, balance)
	case LossCutAction:
		return e.lossCut(ctx, a)
	case SellAction:
		return e.sellAll(ctx, a)
	case AvgDownAction:
		return e.avgDown(ctx, l, a, balance)
	case SetProfitAction:
		return e.setProfit(ctx, a)
	default:
		return fmt.Errorf("unknown action %T", action)
	}
}

func (e *Executor) entry(ctx context.Context, l *zap.Logger, a EntryAction, balance coincheck.Balance) error {
	if balance.Amount < a.BuyJPY {
		l.Warn("Skipping entry, balance is short",
			zap.Float64("balance", balance.Amount),
			zap.Float64("buy_jpy", a.BuyJPY))
		return nil
	}

	amount, err := e.marketBuy(ctx, a.Pair, a.BuyJPY)
	if err != nil {
		return err
	}

	rate := (a.BuyJPY + a.BuyJPY*a.ProfitRatio) / amount * (1 + a.OffsetSellRateRatio)
	if err := e.sell(ctx, a.Pair, rate, amount); err != nil {
		return err
	}

	e.notify(ctx, fmt.Sprintf("entry completed! jpy:%.3f amount:%.8f sell_rate:%.3f", a.BuyJPY, amount, rate))
	return nil
}

func (e *Executor) lossCut(ctx context.Context, a LossCutAction) error {
	if err := e.cancel(ctx, a.OpenOrderID); err != nil {
		return err
	}
	if err := e.marketSell(ctx, a.Pair, a.Amount); err != nil {
		return err
	}
	e.notify(ctx, fmt.Sprintf("loss cut completed! order_id:%d amount:%.8f", a.OpenOrderID, a.Amount))
	return nil
}

func (e *Executor) sellAll(ctx context.Context, a SellAction) error {
	for _, id := range a.OpenOrderIDs {
		if err := e.cancel(ctx, id); err != nil {
			return err
		}
	}
	if err := e.sell(ctx, a.Pair, a.Rate, a.Amount); err != nil {
		return err
	}
	e.notify(ctx, fmt.Sprintf("sell completed! rate:%.3f amount:%.8f", a.Rate, a.Amount))
	return nil
}

func (e *Executor) avgDown(ctx context.Context, l *zap.Logger, a AvgDownAction, balance coincheck.Balance) error {
	remaining := balance.Amount - a.MarketBuyAmount
	if reserve := a.BuyJPYPerLot * e.keepLot; remaining < reserve {
		l.Warn("Skipping avg down, balance would fall below the reserve",
			zap.Float64("remaining", remaining),
			zap.Float64("reserve", reserve))
		return nil
	}

	bought, err := e.marketBuy(ctx, a.Pair, a.MarketBuyAmount)
	if err != nil {
		return err
	}
	if err := e.cancel(ctx, a.OpenOrderID); err != nil {
		return err
	}

	// two equal sells at a rate that keeps the offset-adjusted target of the whole position
	amount := (a.OpenOrderAmount + bought) / 2
	offset := 1 + a.OffsetSellRateRatio
	rate := (a.OpenOrderAmount*(a.OpenOrderRate/offset) + a.MarketBuyAmount) / (amount * 2) * offset

	for i := 0; i < 2; i++ {
		if err := e.sell(ctx, a.Pair, rate, amount); err != nil {
			return err
		}
	}

	e.notify(ctx, fmt.Sprintf("avg down completed! rate:%.3f amount:%.8f x2 (%s)", rate, amount, a.Memo))
	return nil
}

func (e *Executor) setProfit(ctx context.Context, a SetProfitAction) error {
	if err := e.cancel(ctx, a.OpenOrderID); err != nil {
		return err
	}
	if err := e.marketSell(ctx, a.Pair, a.Amount); err != nil {
		return err
	}
	e.notify(ctx, fmt.Sprintf("set profit completed! order_id:%d amount:%.8f", a.OpenOrderID, a.Amount))
	return nil
}

// marketBuy spends jpy at market, waits for the fill and returns the received key currency.
func (e *Executor) marketBuy(ctx context.Context, pair string, jpy float64) (float64, error) {
	before, err := e.balance(ctx, e.pair.Key)
	if err != nil {
		return 0, err
	}

	order, err := e.client.PlaceOrder(ctx, coincheck.NewMarketBuyOrder(pair, jpy))
	if err != nil {
		return 0, err
	}

	err = e.poller.Until(ctx, fmt.Sprintf("market buy %d fill", order.ID), func(ctx context.Context) (bool, error) {
		orders, err := e.client.GetOpenOrders(ctx)
		if err != nil {
			return false, err
		}
		for _, o := range orders {
			if o.ID == order.ID {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	e.insertEvent(pair, models.EventTypeBuy, fmt.Sprintf("market buy, order_id:%d, jpy:%.3f", order.ID, jpy))

	var received float64
	err = e.poller.Until(ctx, fmt.Sprintf("market buy %d balance", order.ID), func(ctx context.Context) (bool, error) {
		after, err := e.balance(ctx, e.pair.Key)
		if err != nil {
			return false, err
		}
		received = after.Amount - before.Amount
		return received > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return received, nil
}

func (e *Executor) marketSell(ctx context.Context, pair string, amount float64) error {
	order, err := e.client.PlaceOrder(ctx, coincheck.NewMarketSellOrder(pair, amount))
	if err != nil {
		return err
	}
	e.insertEvent(pair, models.EventTypeSell, fmt.Sprintf("market sell, order_id:%d, amount:%.8f", order.ID, amount))
	return nil
}

func (e *Executor) sell(ctx context.Context, pair string, rate, amount float64) error {
	order, err := e.client.PlaceOrder(ctx, coincheck.NewLimitSellOrder(pair, rate, amount))
	if err != nil {
		return err
	}
	e.insertEvent(pair, models.EventTypeSell, fmt.Sprintf("sell, order_id:%d, rate:%.3f, amount:%.8f", order.ID, rate, amount))
	return nil
}

// cancel requests the cancellation and waits until the exchange confirms it.
func (e *Executor) cancel(ctx context.Context, orderID int64) error {
	id, err := e.client.CancelOrder(ctx, orderID)
	if err != nil {
		return err
	}
	return e.poller.Until(ctx, fmt.Sprintf("cancel %d", id), func(ctx context.Context) (bool, error) {
		return e.client.GetCancelStatus(ctx, id)
	})
}

func (e *Executor) balance(ctx context.Context, currency string) (coincheck.Balance, error) {
	balances, err := e.client.GetBalances(ctx)
	if err != nil {
		return coincheck.Balance{}, err
	}
	b, ok := balances[currency]
	if !ok {
		return coincheck.Balance{}, &KeyNotFoundError{Key: currency, Collection: "balances"}
	}
	return b, nil
}

func (e *Executor) insertEvent(pair string, eventType models.EventType, memo string) {
	event := &models.Event{Pair: pair, EventType: eventType, Memo: memo, RecordedAt: e.now()}
	if err := e.store.InsertEvent(event); err != nil {
		e.logger.Warn("Failed to record event", zap.String("event_type", eventType.String()), zap.Error(err))
	}
}

func (e *Executor) notify(ctx context.Context, message string) {
	if err := e.notifier.PostMessage(ctx, message); err != nil {
		e.logger.Warn("Failed to post message", zap.Error(err))
	}
}
