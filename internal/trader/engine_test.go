package trader

import (
	"context"
	"errors"
	"testing"
	"time"

	"coincheck-trade-bot-go/internal/coincheck"
	"coincheck-trade-bot-go/internal/config"
	"coincheck-trade-bot-go/internal/database"
	"coincheck-trade-bot-go/internal/lock"
	"coincheck-trade-bot-go/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubStrategy records what the engine hands to it.
type stubStrategy struct {
	actions []Action
	info    *TradeInfo
	perLot  float64
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Judge(_ time.Time, info *TradeInfo, buyJPYPerLot float64) ([]Action, error) {
	s.info = info
	s.perLot = buyJPYPerLot
	return s.actions, nil
}

type engineMocks struct {
	client   *MockClient
	store    *MockStore
	locker   *MockLocker
	notifier *MockNotifier
	strategy *stubStrategy
}

var engineNow = time.Date(2026, 1, 1, 10, 5, 0, 0, time.UTC)

func setupEngine(t *testing.T) (*Engine, engineMocks) {
	t.Helper()
	m := engineMocks{
		client:   new(MockClient),
		store:    new(MockStore),
		locker:   new(MockLocker),
		notifier: new(MockNotifier),
		strategy: &stubStrategy{actions: []Action{NotifyAction{LogMessage: "hi", Message: "hi"}}},
	}
	bot := config.Bot{
		Name:              "scalping",
		TargetPair:        "btc_jpy",
		IntervalSec:       60,
		RatePeriodMinutes: 60,
		DemoMode:          true,
	}
	executor := NewExecutor(m.client, m.store, m.notifier, NewPoller(time.Millisecond, 1, zap.NewNop()),
		btcJPY, true, 2, zap.NewNop())

	e, err := NewEngine("", bot, testStrategyConfig(), m.strategy, m.client, m.store, executor, m.locker, zap.NewNop())
	require.NoError(t, err)
	e.now = func() time.Time { return engineNow }
	return e, m
}

// expectSnapshot sets up a healthy exchange and store for one cycle.
func expectSnapshot(m engineMocks, balances map[string]coincheck.Balance) {
	m.locker.On("Hold", mock.Anything).Return(true, nil)
	m.locker.On("RefreshInterval").Return(time.Duration(0))
	m.notifier.On("PostMessage", mock.Anything, mock.Anything).Return(nil)
	m.client.On("GetTickerRate", mock.Anything, coincheck.OrderTypeBuy, "btc_jpy").Return(106.0, nil)
	m.client.On("GetTickerRate", mock.Anything, coincheck.OrderTypeSell, "btc_jpy").Return(105.0, nil)
	m.client.On("GetTickerRate", mock.Anything, coincheck.OrderTypeSell, "eth_jpy").Return(1000.0, nil)
	m.client.On("GetBalances", mock.Anything).Return(balances, nil)
	m.client.On("GetOpenOrders", mock.Anything).Return([]coincheck.OpenOrder{
		{ID: 1, OrderType: coincheck.OrderTypeSell, Rate: 1100, Pair: "eth_jpy", PendingAmount: 1},
	}, nil)
	m.client.On("GetOrderBooks", mock.Anything, "btc_jpy").Return(coincheck.OrderBooks{}, nil)

	var markets models.Markets
	for _, rate := range []float64{100, 100, 100, 95, 100, 105} {
		markets = append(markets, models.Market{Pair: "btc_jpy", ExRateSell: rate})
	}
	m.store.On("SelectMarkets", "btc_jpy", engineNow.Add(-time.Hour)).Return(markets, nil)
	m.store.On("SelectMarketSummary", "btc_jpy", 0, engineNow).
		Return(models.MarketSummary{TradeFrequencyRatio: 1}, nil)
	m.store.On("UpsertBotStatus", mock.Anything).Return(nil)
}

func upserted(m *MockStore) map[string]*models.BotStatus {
	res := map[string]*models.BotStatus{}
	for _, call := range m.Calls {
		if call.Method == "UpsertBotStatus" {
			s := call.Arguments.Get(0).(*models.BotStatus)
			res[s.Type] = s
		}
	}
	return res
}

func TestNewEngine(t *testing.T) {
	e, _ := setupEngine(t)

	_, err := uuid.Parse(e.UUID)
	assert.NoError(t, err)
	assert.Equal(t, "scalping", e.Name)
	assert.Equal(t, "stub", e.StrategyName())

	fixed, err := NewEngine("run-1", config.Bot{TargetPair: "btc_jpy"}, config.Strategy{}, &stubStrategy{}, nil, nil, nil, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "run-1", fixed.UUID)

	_, err = NewEngine("", config.Bot{TargetPair: "btcjpy"}, config.Strategy{}, &stubStrategy{}, nil, nil, nil, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestEngine_RunOnce(t *testing.T) {
	t.Run("FirstCycle", func(t *testing.T) {
		// Arrange
		e, m := setupEngine(t)
		expectSnapshot(m, map[string]coincheck.Balance{
			"jpy": {Amount: 100000},
			"btc": {},
			"eth": {Amount: 1},
		})
		m.store.On("SelectBotStatus", "scalping", "all", "total_jpy").
			Return(models.BotStatus{}, database.ErrRecordNotFound)

		// Act
		err := e.RunOnce(context.Background())

		// Assert
		require.NoError(t, err)
		m.client.AssertExpectations(t)

		info := m.strategy.info
		require.NotNil(t, info)
		assert.Empty(t, info.OpenOrders, "orders of other pairs are dropped")
		assert.Equal(t, map[string]float64{"btc_jpy": 105, "eth_jpy": 1000}, info.SellRates)
		assert.Equal(t, 106.0, info.BuyRate)
		assert.Len(t, info.ResistanceLines, 6)
		assert.InDelta(t, 10100, m.strategy.perLot, 1e-9)

		statuses := upserted(m.store)
		assert.Equal(t, -1.0, statuses["sell_rate"].Value)
		assert.Equal(t, "btc_jpy", statuses["sell_rate"].Pair)
		assert.Equal(t, float64(longTrendUp), statuses["long_trend"].Value)
		for _, name := range []string{"resistance_line", "support_line", "support_line_short"} {
			assert.Contains(t, statuses, name+"_value")
			assert.Contains(t, statuses, name+"_slope")
		}
		total := statuses["total_jpy"]
		require.NotNil(t, total)
		assert.Equal(t, "all", total.Pair)
		assert.Equal(t, 101000.0, total.Value)
		assert.Equal(t, "has_position:false", total.Memo)

		last := e.LastCycle()
		assert.Equal(t, engineNow, last.At)
		assert.Equal(t, 1, last.Actions)
		assert.Empty(t, last.Error)
	})

	t.Run("BaselineKeptWhileHolding", func(t *testing.T) {
		e, m := setupEngine(t)
		expectSnapshot(m, map[string]coincheck.Balance{
			"jpy": {Amount: 100000},
			"btc": {Amount: 1},
		})
		m.store.On("SelectBotStatus", "scalping", "all", "total_jpy").
			Return(models.BotStatus{Value: 200000}, nil)

		err := e.RunOnce(context.Background())

		require.NoError(t, err)
		assert.NotContains(t, upserted(m.store), "total_jpy")
		assert.InDelta(t, 20000, m.strategy.perLot, 1e-9)
	})

	t.Run("BaselineFallsWithoutPosition", func(t *testing.T) {
		e, m := setupEngine(t)
		expectSnapshot(m, map[string]coincheck.Balance{"jpy": {Amount: 90000}, "btc": {}})
		m.store.On("SelectBotStatus", "scalping", "all", "total_jpy").
			Return(models.BotStatus{Value: 100000}, nil)

		err := e.RunOnce(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 90000.0, upserted(m.store)["total_jpy"].Value)
	})

	t.Run("LeaseHeldElsewhere", func(t *testing.T) {
		e, m := setupEngine(t)
		m.locker.On("Hold", mock.Anything).Return(false, nil)

		err := e.RunOnce(context.Background())

		require.NoError(t, err)
		assert.Empty(t, m.client.Calls)
		assert.Nil(t, m.strategy.info)
	})

	t.Run("LeaseLostMidAction", func(t *testing.T) {
		// Arrange
		e, m := setupEngine(t)
		m.locker.On("Hold", mock.Anything).Return(true, nil).Once()
		m.locker.On("Hold", mock.Anything).Return(false, nil)
		m.locker.On("RefreshInterval").Return(5 * time.Millisecond)
		var notifyCtx context.Context
		m.notifier.On("PostMessage", mock.Anything, "hi").Run(func(args mock.Arguments) {
			notifyCtx = args.Get(0).(context.Context)
			<-notifyCtx.Done()
		}).Return(nil)
		expectSnapshot(m, map[string]coincheck.Balance{"jpy": {Amount: 100000}, "btc": {}})
		m.store.On("SelectBotStatus", "scalping", "all", "total_jpy").Return(models.BotStatus{Value: 100000}, nil)

		// Act
		err := e.RunOnce(context.Background())

		// Assert
		require.ErrorIs(t, err, lock.ErrLeaseLost)
		assert.Contains(t, e.LastCycle().Error, "lease lost")
		require.NotNil(t, notifyCtx)
		assert.ErrorIs(t, context.Cause(notifyCtx), lock.ErrLeaseLost)
		m.locker.AssertNumberOfCalls(t, "Hold", 2)
	})

	t.Run("FetchError", func(t *testing.T) {
		e, m := setupEngine(t)
		m.locker.On("Hold", mock.Anything).Return(true, nil)
		m.client.On("GetTickerRate", mock.Anything, coincheck.OrderTypeBuy, "btc_jpy").
			Return(0.0, errors.New("exchange down"))

		err := e.RunOnce(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "exchange down")
		assert.Contains(t, e.LastCycle().Error, "exchange down")
		assert.Nil(t, m.strategy.info)
	})

	t.Run("MetricsErrorAbortsCycle", func(t *testing.T) {
		e, m := setupEngine(t)
		m.locker.On("Hold", mock.Anything).Return(true, nil)
		m.client.On("GetTickerRate", mock.Anything, mock.Anything, mock.Anything).Return(105.0, nil)
		m.client.On("GetBalances", mock.Anything).Return(map[string]coincheck.Balance{"jpy": {Amount: 1}, "btc": {}}, nil)
		m.client.On("GetOpenOrders", mock.Anything).Return([]coincheck.OpenOrder{}, nil)
		m.client.On("GetOrderBooks", mock.Anything, "btc_jpy").Return(coincheck.OrderBooks{}, nil)
		m.store.On("SelectMarkets", mock.Anything, mock.Anything).
			Return(models.Markets{{ExRateSell: 1}, {ExRateSell: 2}, {ExRateSell: 3}, {ExRateSell: 4}, {ExRateSell: 5}, {ExRateSell: 6}}, nil)
		m.store.On("SelectMarketSummary", mock.Anything, mock.Anything, mock.Anything).Return(models.MarketSummary{}, nil)
		m.store.On("UpsertBotStatus", mock.Anything).Return(errors.New("db locked"))

		err := e.RunOnce(context.Background())

		assert.ErrorContains(t, err, "db locked")
		assert.Nil(t, m.strategy.info)
	})
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	e, m := setupEngine(t)
	m.locker.On("Hold", mock.Anything).Return(false, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
}
