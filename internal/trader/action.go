package trader

// Action is one decision of a strategy. The set of actions is closed, the executor
// switches over the concrete types.
type Action interface {
	Name() string
	isAction()
}

// EntryAction buys with BuyJPY at market and rests a sell for the bought amount.
type EntryAction struct {
	Pair                string
	BuyJPY              float64
	ProfitRatio         float64
	OffsetSellRateRatio float64
}

// LossCutAction cancels a sell order and sells its amount at market.
type LossCutAction struct {
	Pair        string
	OpenOrderID int64
	Amount      float64
}

// SellAction replaces the given orders with one limit sell.
type SellAction struct {
	OpenOrderIDs []int64
	Pair         string
	Rate         float64
	Amount       float64
}

// AvgDownAction buys more at market and splits the position into two sells at a blended rate.
type AvgDownAction struct {
	Pair                string
	BuyJPYPerLot        float64
	MarketBuyAmount     float64
	OpenOrderID         int64
	OpenOrderRate       float64
	OpenOrderAmount     float64
	OffsetSellRateRatio float64
	Memo                string
}

// SetProfitAction cancels a sell order and takes the gain at market.
type SetProfitAction struct {
	Pair        string
	OpenOrderID int64
	Amount      float64
}

// NotifyAction only reports.
type NotifyAction struct {
	LogMessage string
	Message    string
}

func (EntryAction) Name() string     { return "entry" }
func (LossCutAction) Name() string   { return "loss cut" }
func (SellAction) Name() string      { return "sell" }
func (AvgDownAction) Name() string   { return "avg down" }
func (SetProfitAction) Name() string { return "set profit" }
func (NotifyAction) Name() string    { return "notify" }

func (EntryAction) isAction()     {}
func (LossCutAction) isAction()   {}
func (SellAction) isAction()      {}
func (AvgDownAction) isAction()   {}
func (SetProfitAction) isAction() {}
func (NotifyAction) isAction()    {}
