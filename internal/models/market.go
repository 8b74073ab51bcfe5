package models

import "time"

// Market is one recorded tick of the exchange rates and traded volumes of a pair.
// The ordered series of markets is the rate history the strategy works on.
type Market struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Pair         string    `gorm:"size:16;index:idx_markets_pair_recorded_at" json:"pair"`
	StoreRateAvg float64   `json:"store_rate_avg"`
	ExRateSell   float64   `json:"ex_rate_sell"`
	ExRateBuy    float64   `json:"ex_rate_buy"`
	ExVolumeSell float64   `json:"ex_volume_sell"`
	ExVolumeBuy  float64   `json:"ex_volume_buy"`
	RecordedAt   time.Time `gorm:"index:idx_markets_pair_recorded_at" json:"recorded_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// Markets is an ordered (oldest first) series of markets.
type Markets []Market

// RateHistories returns the sell rates of the series.
func (m Markets) RateHistories() []float64 {
	res := make([]float64, len(m))
	for i, market := range m {
		res[i] = market.ExRateSell
	}
	return res
}

// SellVolumes returns the sell volumes of the series.
func (m Markets) SellVolumes() []float64 {
	res := make([]float64, len(m))
	for i, market := range m {
		res[i] = market.ExVolumeSell
	}
	return res
}

// BuyVolumes returns the buy volumes of the series.
func (m Markets) BuyVolumes() []float64 {
	res := make([]float64, len(m))
	for i, market := range m {
		res[i] = market.ExVolumeBuy
	}
	return res
}

// MarketSummary aggregates the markets of a pair over a rolling 24 hour window.
type MarketSummary struct {
	Count               int64     `json:"count"`
	RecordedAtBegin     time.Time `json:"recorded_at_begin"`
	RecordedAtEnd       time.Time `json:"recorded_at_end"`
	ExRateSellMax       float64   `json:"ex_rate_sell_max"`
	ExRateSellMin       float64   `json:"ex_rate_sell_min"`
	ExRateBuyMax        float64   `json:"ex_rate_buy_max"`
	ExRateBuyMin        float64   `json:"ex_rate_buy_min"`
	ExVolumeSellTotal   float64   `json:"ex_volume_sell_total"`
	ExVolumeBuyTotal    float64   `json:"ex_volume_buy_total"`
	TradeFrequencyRatio float64   `json:"trade_frequency_ratio"` // share of markets with any traded volume
}
