package trader

import (
	"testing"
	"time"

	"coincheck-trade-bot-go/internal/coincheck"
	"coincheck-trade-bot-go/internal/config"
	"coincheck-trade-bot-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testStrategyConfig() config.Strategy {
	return config.Strategy{
		WMAPeriodShort:                2,
		WMAPeriodLong:                 6,
		ResistanceLinePeriod:          6,
		ResistanceLineWidthRatioUpper: 0.05,
		ResistanceLineWidthRatioLower: 0.05,
		SupportLinePeriodLong:         6,
		SupportLinePeriodShort:        3,
		SupportLineWidthRatioUpper:    0.01,
		SupportLineWidthRatioLower:    0.01,
		ReboundCheckPeriod:            3,
		VolumePeriodShort:             3,
		OrderBooksSizeRatio:           1,
		FundsRatioPerOrder:            0.1,
		ProfitRatioPerOrder:           0.01,
		OffsetSellRateRatio:           0.05,
		HoldLimitMinutes:              10,
		AvgDownRateRatio:              0.9,
		LossCutRateRatio:              0.8,
		EntrySkipRateRatio:            0.99,
		OverSellVolumeRatio:           0.1,
		RequiredTradeFrequencyRatio:   0.5,
		KeepLot:                       2,
		UnusedCoinBorder:              0.001,
		NotificationIntervalMinutes:   60,
	}
}

// scenarioInfo is a market that just bounced off a flat resistance line at 100.
func scenarioInfo() *TradeInfo {
	return &TradeInfo{
		Pair:      btcJPY,
		SellRates: map[string]float64{"btc_jpy": 105},
		BuyRate:   106,
		Balances: map[string]coincheck.Balance{
			"btc": {},
			"jpy": {Amount: 100000},
		},
		RateHistories:     []float64{100, 100, 100, 95, 100, 105},
		SellVolumes:       make([]float64, 6),
		BuyVolumes:        make([]float64, 6),
		SupportLinesLong:  flatLine(90, 6),
		SupportLinesShort: flatLine(90, 6),
		ResistanceLines:   flatLine(100, 6),
		MarketSummary: models.MarketSummary{
			TradeFrequencyRatio: 1.0,
			ExVolumeSellTotal:   100,
		},
	}
}

var scenarioNow = time.Date(2026, 1, 1, 10, 5, 0, 0, time.UTC)

func sellOrder(id int64, rate, amount float64, createdAt time.Time) coincheck.OpenOrder {
	return coincheck.OpenOrder{
		ID:            id,
		OrderType:     coincheck.OrderTypeSell,
		Rate:          rate,
		Pair:          "btc_jpy",
		PendingAmount: amount,
		CreatedAt:     createdAt,
	}
}

func TestNewStrategy(t *testing.T) {
	for _, name := range []string{"scalping", ""} {
		s, err := NewStrategy(name, testStrategyConfig(), zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "scalping", s.Name())
	}

	_, err := NewStrategy("martingale", testStrategyConfig(), zap.NewNop())
	assert.Error(t, err)
}

func TestScalpingStrategy_Entry(t *testing.T) {
	entry := EntryAction{Pair: "btc_jpy", BuyJPY: 1000, ProfitRatio: 0.01, OffsetSellRateRatio: 0.05}

	t.Run("ResistanceLineBreakout", func(t *testing.T) {
		s := NewScalpingStrategy(testStrategyConfig(), zap.NewNop())

		actions, err := s.Judge(scenarioNow, scenarioInfo(), 1000)

		require.NoError(t, err)
		assert.Equal(t, []Action{entry}, actions)
	})

	t.Run("DownTrendClosesGate", func(t *testing.T) {
		cfg := testStrategyConfig()
		cfg.WMAPeriodShort, cfg.WMAPeriodLong = 6, 2
		s := NewScalpingStrategy(cfg, zap.NewNop())

		actions, err := s.Judge(scenarioNow, scenarioInfo(), 1000)

		require.NoError(t, err)
		assert.Empty(t, actions)
	})

	t.Run("SupportLineRebound", func(t *testing.T) {
		cfg := testStrategyConfig()
		cfg.SupportLineWidthRatioUpper, cfg.SupportLineWidthRatioLower = 0.05, 0.05
		s := NewScalpingStrategy(cfg, zap.NewNop())
		info := scenarioInfo()
		info.ResistanceLines = []float64{110, 109, 108, 107, 106, 105}
		info.SupportLinesLong = flatLine(100, 6)

		actions, err := s.Judge(scenarioNow, info, 1000)

		require.NoError(t, err)
		assert.Equal(t, []Action{entry}, actions)
	})

	t.Run("FallingRate", func(t *testing.T) {
		s := NewScalpingStrategy(testStrategyConfig(), zap.NewNop())
		info := scenarioInfo()
		info.RateHistories = []float64{100, 100, 100, 95, 106, 105}

		actions, err := s.Judge(scenarioNow, info, 1000)

		require.NoError(t, err)
		assert.Empty(t, actions)
	})

	t.Run("BuyOrdersAreIgnored", func(t *testing.T) {
		s := NewScalpingStrategy(testStrategyConfig(), zap.NewNop())
		info := scenarioInfo()
		info.OpenOrders = []coincheck.OpenOrder{
			{ID: 9, OrderType: coincheck.OrderTypeBuy, Rate: 104, Pair: "btc_jpy", PendingAmount: 1},
		}

		actions, err := s.Judge(scenarioNow, info, 1000)

		require.NoError(t, err)
		assert.Equal(t, []Action{entry}, actions)
	})

	t.Run("InvalidBuyRateClosesGate", func(t *testing.T) {
		s := NewScalpingStrategy(testStrategyConfig(), zap.NewNop())
		info := scenarioInfo()
		info.BuyRate = 0

		actions, err := s.Judge(scenarioNow, info, 1000)

		require.NoError(t, err)
		assert.Empty(t, actions)
	})
}

func TestScalpingStrategy_EntryGates(t *testing.T) {
	tests := []struct {
		name   string
		config func(cfg *config.Strategy)
		info   func(info *TradeInfo)
	}{
		{
			name:   "DownTrend",
			config: func(cfg *config.Strategy) { cfg.WMAPeriodShort, cfg.WMAPeriodLong = 6, 2 },
		},
		{
			name: "NearRateSellOrder",
			info: func(info *TradeInfo) {
				info.OpenOrders = []coincheck.OpenOrder{sellOrder(1, 106, 0.01, scenarioNow)}
			},
		},
		{
			name: "LowTradeFrequency",
			info: func(info *TradeInfo) { info.MarketSummary.TradeFrequencyRatio = 0.1 },
		},
		{
			name: "OverSell",
			info: func(info *TradeInfo) { info.SellVolumes = []float64{0, 0, 0, 0, 0, 20} },
		},
		{
			name: "HeavyBoard",
			info: func(info *TradeInfo) {
				info.OrderBooks.Asks = []coincheck.OrderBook{{Rate: 106, Amount: 1}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			cfg := testStrategyConfig()
			if tt.config != nil {
				tt.config(&cfg)
			}
			info := scenarioInfo()
			if tt.info != nil {
				tt.info(info)
			}
			s := NewScalpingStrategy(cfg, zap.NewNop())

			// Act
			actions, err := s.Judge(scenarioNow, info, 1000)

			// Assert
			require.NoError(t, err)
			for _, a := range actions {
				assert.NotEqual(t, "entry", a.Name(), "a single closed gate blocks entry")
			}
		})
	}
}

func TestScalpingStrategy_UnusedCoin(t *testing.T) {
	cfg := testStrategyConfig()
	cfg.NotificationIntervalMinutes = 30
	s := NewScalpingStrategy(cfg, zap.NewNop())

	info := scenarioInfo()
	info.Balances["btc"] = coincheck.Balance{Amount: 2.0}
	info.SellRates["btc_jpy"] = 79
	info.OpenOrders = []coincheck.OpenOrder{sellOrder(1, 100, 0.01, scenarioNow)}

	t.Run("NotifiesAlone", func(t *testing.T) {
		now := time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC)

		actions, err := s.Judge(now, info, 1000)

		require.NoError(t, err)
		require.Len(t, actions, 1)
		assert.Equal(t, NotifyAction{
			LogMessage: "unused coin exist (btc 2)",
			Message:    "unused coin exist (btc 2)",
		}, actions[0])
	})

	t.Run("OffTiming", func(t *testing.T) {
		now := time.Date(2026, 1, 1, 10, 31, 0, 0, time.UTC)

		actions, err := s.Judge(now, info, 1000)

		require.NoError(t, err)
		require.Len(t, actions, 1)
		assert.IsType(t, LossCutAction{}, actions[0])
	})
}

func TestScalpingStrategy_OpenOrders(t *testing.T) {
	s := NewScalpingStrategy(testStrategyConfig(), zap.NewNop())

	t.Run("LossCut", func(t *testing.T) {
		info := scenarioInfo()
		info.SellRates["btc_jpy"] = 79
		info.OpenOrders = []coincheck.OpenOrder{sellOrder(1, 100, 0.01, scenarioNow.Add(-time.Minute))}

		actions, err := s.Judge(scenarioNow, info, 1000)

		require.NoError(t, err)
		assert.Equal(t, []Action{LossCutAction{Pair: "btc_jpy", OpenOrderID: 1, Amount: 0.01}}, actions)
	})

	t.Run("AvgDownAfterHoldLimit", func(t *testing.T) {
		info := scenarioInfo()
		info.OpenOrders = []coincheck.OpenOrder{sellOrder(1, 100, 1.0, scenarioNow.Add(-20*time.Minute))}

		actions, err := s.Judge(scenarioNow, info, 30)

		require.NoError(t, err)
		require.Len(t, actions, 1, "the near rate order closes the entry gate")
		avgDown, ok := actions[0].(AvgDownAction)
		require.True(t, ok)
		assert.Equal(t, "btc_jpy", avgDown.Pair)
		assert.Equal(t, 30.0, avgDown.BuyJPYPerLot)
		assert.Equal(t, 60.0, avgDown.MarketBuyAmount)
		assert.Equal(t, int64(1), avgDown.OpenOrderID)
		assert.Equal(t, 100.0, avgDown.OpenOrderRate)
		assert.Equal(t, 1.0, avgDown.OpenOrderAmount)
		assert.Equal(t, 0.05, avgDown.OffsetSellRateRatio)
		assert.Contains(t, avgDown.Memo, "lot:2")
	})

	t.Run("NoAvgDownOnFallingSupportLine", func(t *testing.T) {
		info := scenarioInfo()
		info.SupportLinesShort = []float64{95, 94, 93, 92, 91, 90}
		info.OpenOrders = []coincheck.OpenOrder{sellOrder(1, 100, 1.0, scenarioNow.Add(-20*time.Minute))}

		actions, err := s.Judge(scenarioNow, info, 30)

		require.NoError(t, err)
		assert.Empty(t, actions)
	})

	t.Run("SetProfit", func(t *testing.T) {
		info := scenarioInfo()
		info.RateHistories = []float64{100, 100, 100, 95, 105, 103}
		info.SellRates["btc_jpy"] = 103
		info.OpenOrders = []coincheck.OpenOrder{sellOrder(1, 100, 1.0, scenarioNow.Add(-20*time.Minute))}

		actions, err := s.Judge(scenarioNow, info, 30)

		require.NoError(t, err)
		assert.Equal(t, []Action{SetProfitAction{Pair: "btc_jpy", OpenOrderID: 1, Amount: 1.0}}, actions)
	})

	t.Run("OneActionPerOrder", func(t *testing.T) {
		info := scenarioInfo()
		info.RateHistories = []float64{100, 100, 100, 95, 105, 103}
		info.SellRates["btc_jpy"] = 103
		info.OpenOrders = []coincheck.OpenOrder{
			sellOrder(1, 130, 0.5, scenarioNow),
			sellOrder(2, 100, 1.0, scenarioNow),
		}

		actions, err := s.Judge(scenarioNow, info, 30)

		require.NoError(t, err)
		assert.Equal(t, []Action{
			LossCutAction{Pair: "btc_jpy", OpenOrderID: 1, Amount: 0.5},
			SetProfitAction{Pair: "btc_jpy", OpenOrderID: 2, Amount: 1.0},
		}, actions)
	})
}

func TestScalpingStrategy_MissingSellRate(t *testing.T) {
	s := NewScalpingStrategy(testStrategyConfig(), zap.NewNop())
	info := scenarioInfo()
	info.SellRates = map[string]float64{}

	_, err := s.Judge(scenarioNow, info, 1000)

	var notFound *KeyNotFoundError
	assert.ErrorAs(t, err, &notFound)
}
