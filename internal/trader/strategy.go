package trader

import (
	"fmt"
	"time"

	"coincheck-trade-bot-go/internal/config"
	"go.uber.org/zap"
)

// Strategy defines the interface for a trading strategy.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Judge maps a snapshot to the actions of this cycle. It has no side effects.
	Judge(now time.Time, info *TradeInfo, buyJPYPerLot float64) ([]Action, error)
}

// NewStrategy returns the strategy registered under name.
func NewStrategy(name string, cfg config.Strategy, logger *zap.Logger) (Strategy, error) {
	switch name {
	case "scalping", "":
		return NewScalpingStrategy(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown strategy: %s", name)
	}
}
