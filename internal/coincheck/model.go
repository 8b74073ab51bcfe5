package coincheck

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType is the order_type field of the exchange API.
type OrderType string

const (
	OrderTypeSell       OrderType = "sell"
	OrderTypeBuy        OrderType = "buy"
	OrderTypeMarketSell OrderType = "market_sell"
	OrderTypeMarketBuy  OrderType = "market_buy"
)

// ParseOrderType returns a *ParseError for unknown values.
func ParseOrderType(s string) (OrderType, error) {
	switch t := OrderType(s); t {
	case OrderTypeSell, OrderTypeBuy, OrderTypeMarketSell, OrderTypeMarketBuy:
		return t, nil
	default:
		return "", &ParseError{Field: "order_type", Value: s}
	}
}

// Balance is the available and reserved amount of one currency.
type Balance struct {
	Amount   float64 `json:"amount"`
	Reserved float64 `json:"reserved"`
}

// Total returns the amount including the part locked in open orders.
func (b Balance) Total() float64 {
	return b.Amount + b.Reserved
}

// OpenOrder is an order resting on the exchange.
type OpenOrder struct {
	ID                     int64
	OrderType              OrderType
	Rate                   float64 // 0 for market orders
	Pair                   string
	PendingAmount          float64
	PendingMarketBuyAmount float64
	CreatedAt              time.Time
}

// OrderBook is one price level.
type OrderBook struct {
	Rate   float64
	Amount float64
}

// OrderBooks is the depth of a pair, asks ascending and bids descending as served.
type OrderBooks struct {
	Asks []OrderBook
	Bids []OrderBook
}

// NewOrder is a request to place an order. Zero values are omitted from the request.
type NewOrder struct {
	Pair            string
	OrderType       OrderType
	Rate            float64
	Amount          float64
	MarketBuyAmount float64
}

// NewLimitSellOrder sells amount of the key currency at rate.
func NewLimitSellOrder(pair string, rate, amount float64) NewOrder {
	return NewOrder{Pair: pair, OrderType: OrderTypeSell, Rate: rate, Amount: amount}
}

// NewLimitBuyOrder buys amount of the key currency at rate.
func NewLimitBuyOrder(pair string, rate, amount float64) NewOrder {
	return NewOrder{Pair: pair, OrderType: OrderTypeBuy, Rate: rate, Amount: amount}
}

// NewMarketBuyOrder spends settlementAmount of the settlement currency at market.
func NewMarketBuyOrder(pair string, settlementAmount float64) NewOrder {
	return NewOrder{Pair: pair, OrderType: OrderTypeMarketBuy, MarketBuyAmount: settlementAmount}
}

// NewMarketSellOrder sells amount of the key currency at market.
func NewMarketSellOrder(pair string, amount float64) NewOrder {
	return NewOrder{Pair: pair, OrderType: OrderTypeMarketSell, Amount: amount}
}

func (o NewOrder) requestBody() map[string]string {
	body := map[string]string{
		"pair":       o.Pair,
		"order_type": string(o.OrderType),
	}
	if o.Rate != 0 {
		body["rate"] = FormatRequestNumber(o.Rate)
	}
	if o.Amount != 0 {
		body["amount"] = FormatRequestNumber(o.Amount)
	}
	if o.MarketBuyAmount != 0 {
		body["market_buy_amount"] = FormatRequestNumber(o.MarketBuyAmount)
	}
	return body
}

// Order is the exchange's answer to a placed order.
type Order struct {
	ID        int64
	OrderType OrderType
	Rate      float64
	Amount    float64
	Pair      string
	CreatedAt time.Time
}

// Trade is one public execution.
type Trade struct {
	ID        int64
	OrderType OrderType
	Rate      float64
	Amount    float64
	Pair      string
	CreatedAt time.Time
}

// FormatRequestNumber renders numbers the way the order endpoint accepts them:
// five or more integer digits drop the fraction, anything else is cut to five digits.
func FormatRequestNumber(v float64) string {
	d := decimal.NewFromFloat(v)
	if s := d.StringFixed(0); len(strings.TrimPrefix(s, "-")) >= 5 {
		return s
	}
	s := d.StringFixed(5)
	if len(s) < 6 {
		return s
	}
	return s[:6]
}

// ResponseError is a request the exchange rejected.
type ResponseError struct {
	Path    string
	Status  int
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("coincheck %s responded %d: %s", e.Path, e.Status, e.Message)
}

// ParseError is a response field that could not be decoded.
type ParseError struct {
	Field string
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s %q", e.Field, e.Value)
}
