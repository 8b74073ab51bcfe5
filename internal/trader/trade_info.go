package trader

import (
	"fmt"

	"coincheck-trade-bot-go/internal/coincheck"
	"coincheck-trade-bot-go/internal/models"
)

// TradeInfo is the market snapshot of one cycle. It is built once and only read afterwards.
type TradeInfo struct {
	Pair              models.Pair
	SellRates         map[string]float64 // pair -> rate
	BuyRate           float64
	Balances          map[string]coincheck.Balance // currency -> balance
	OpenOrders        []coincheck.OpenOrder        // target pair only
	RateHistories     []float64                    // oldest first, the last point is the current tick
	SellVolumes       []float64
	BuyVolumes        []float64
	SupportLinesLong  []float64
	SupportLinesShort []float64
	ResistanceLines   []float64
	OrderBooks        coincheck.OrderBooks
	MarketSummary     models.MarketSummary
}

// NewTradeInfo checks that every derived series is aligned with the rate history.
func NewTradeInfo(info TradeInfo) (*TradeInfo, error) {
	size := len(info.RateHistories)
	series := []struct {
		name   string
		values []float64
	}{
		{"sell volumes", info.SellVolumes},
		{"buy volumes", info.BuyVolumes},
		{"support lines long", info.SupportLinesLong},
		{"support lines short", info.SupportLinesShort},
		{"resistance lines", info.ResistanceLines},
	}
	for _, s := range series {
		if len(s.values) != size {
			return nil, fmt.Errorf("%s has %d points, rate histories has %d", s.name, len(s.values), size)
		}
	}
	if _, ok := info.SellRates[info.Pair.String()]; !ok {
		return nil, &KeyNotFoundError{Key: info.Pair.String(), Collection: "sell rates"}
	}
	return &info, nil
}

// SellRate returns the sell rate of the target pair.
func (t *TradeInfo) SellRate() (float64, error) {
	r, ok := t.SellRates[t.Pair.String()]
	if !ok {
		return 0, &KeyNotFoundError{Key: t.Pair.String(), Collection: "sell rates"}
	}
	return r, nil
}

func (t *TradeInfo) balance(currency string) (coincheck.Balance, error) {
	b, ok := t.Balances[currency]
	if !ok {
		return coincheck.Balance{}, &KeyNotFoundError{Key: currency, Collection: "balances"}
	}
	return b, nil
}

// BalanceKey returns the balance of the key currency.
func (t *TradeInfo) BalanceKey() (coincheck.Balance, error) {
	return t.balance(t.Pair.Key)
}

// BalanceSettlement returns the balance of the settlement currency.
func (t *TradeInfo) BalanceSettlement() (coincheck.Balance, error) {
	return t.balance(t.Pair.Settlement)
}

// TotalBalanceSettlement values every balance in the settlement currency.
func (t *TradeInfo) TotalBalanceSettlement() (float64, error) {
	var total float64
	for currency, b := range t.Balances {
		if currency == t.Pair.Settlement {
			total += b.Total()
			continue
		}
		if b.Total() == 0 {
			continue
		}
		pair := t.Pair.WithSettlement(currency)
		r, ok := t.SellRates[pair]
		if !ok {
			return 0, &KeyNotFoundError{Key: pair, Collection: "sell rates"}
		}
		total += b.Total() * r
	}
	return total, nil
}

// HasPosition reports whether at least one settlement unit worth of the key currency is held.
func (t *TradeInfo) HasPosition() (bool, error) {
	key, err := t.BalanceKey()
	if err != nil {
		return false, err
	}
	r, err := t.SellRate()
	if err != nil {
		return false, err
	}
	return key.Total()*r >= 1.0, nil
}

func (t *TradeInfo) WMA(period int) (float64, error) {
	return WMA(t.RateHistories, period)
}

// IsUpTrend compares the short and long WMA.
func (t *TradeInfo) IsUpTrend(shortPeriod, longPeriod int) (bool, error) {
	short, long, err := t.wmaPair(shortPeriod, longPeriod)
	if err != nil {
		return false, err
	}
	return short > long, nil
}

// IsDownTrend compares the short and long WMA.
func (t *TradeInfo) IsDownTrend(shortPeriod, longPeriod int) (bool, error) {
	short, long, err := t.wmaPair(shortPeriod, longPeriod)
	if err != nil {
		return false, err
	}
	return short < long, nil
}

func (t *TradeInfo) wmaPair(shortPeriod, longPeriod int) (float64, float64, error) {
	short, err := t.WMA(shortPeriod)
	if err != nil {
		return 0, 0, err
	}
	long, err := t.WMA(longPeriod)
	if err != nil {
		return 0, 0, err
	}
	return short, long, nil
}

// PreviousRate returns the history point before the current tick.
func (t *TradeInfo) PreviousRate() (float64, error) {
	if len(t.RateHistories) < 2 {
		return 0, &TooShortError{Name: "rate histories", Len: len(t.RateHistories), Required: 2}
	}
	return t.RateHistories[len(t.RateHistories)-2], nil
}

// ShortVolumes sums the sell and buy volumes of the trailing period points.
func (t *TradeInfo) ShortVolumes(period int) (sell, buy float64) {
	from := max(len(t.SellVolumes)-period, 0)
	for _, v := range t.SellVolumes[from:] {
		sell += v
	}
	from = max(len(t.BuyVolumes)-period, 0)
	for _, v := range t.BuyVolumes[from:] {
		buy += v
	}
	return sell, buy
}

// SellOrders returns the resting limit sell orders.
func (t *TradeInfo) SellOrders() []coincheck.OpenOrder {
	var orders []coincheck.OpenOrder
	for _, o := range t.OpenOrders {
		if o.OrderType == coincheck.OrderTypeSell {
			orders = append(orders, o)
		}
	}
	return orders
}

// MinSellOrderRate returns the lowest rate of the resting sell orders, false when there is none.
func (t *TradeInfo) MinSellOrderRate() (float64, bool) {
	orders := t.SellOrders()
	if len(orders) == 0 {
		return 0, false
	}
	minRate := orders[0].Rate
	for _, o := range orders[1:] {
		minRate = min(minRate, o.Rate)
	}
	return minRate, true
}
