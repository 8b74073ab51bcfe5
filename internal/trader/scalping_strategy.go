package trader

import (
	"fmt"
	"time"

	"coincheck-trade-bot-go/internal/coincheck"
	"coincheck-trade-bot-go/internal/config"
	"go.uber.org/zap"
)

// ScalpingStrategy takes small profits on rebounds off the trend lines and resolves the
// sell orders it left resting.
type ScalpingStrategy struct {
	cfg    config.Strategy
	logger *zap.Logger
}

// NewScalpingStrategy creates the strategy with a copy of its thresholds.
func NewScalpingStrategy(cfg config.Strategy, logger *zap.Logger) *ScalpingStrategy {
	return &ScalpingStrategy{cfg: cfg, logger: logger.Named("scalping")}
}

func (s *ScalpingStrategy) Name() string {
	return "scalping"
}

// Judge evaluates, in order: the unused coin notification (exclusive), the resolution of every
// resting sell order, the entry gates and the entry signals.
func (s *ScalpingStrategy) Judge(now time.Time, info *TradeInfo, buyJPYPerLot float64) ([]Action, error) {
	sellRate, err := info.SellRate()
	if err != nil {
		return nil, err
	}

	s.logger.Debug("========== check unused coin ==========")
	notify, err := s.checkUnusedCoin(now, info)
	if err != nil {
		return nil, err
	}
	if notify != nil {
		return []Action{notify}, nil
	}

	s.logger.Debug("========== check open orders ==========")
	actions := s.checkOpenOrders(now, info, sellRate, buyJPYPerLot)

	s.logger.Debug("========== check entry ==========")
	if !s.checkEntryGates(info, sellRate, buyJPYPerLot) {
		return actions, nil
	}

	if s.checkResistanceLineBreakout(info, sellRate) || s.checkSupportLineRebound(info, sellRate) {
		actions = append(actions, EntryAction{
			Pair:                info.Pair.String(),
			BuyJPY:              buyJPYPerLot,
			ProfitRatio:         s.cfg.ProfitRatioPerOrder,
			OffsetSellRateRatio: s.cfg.OffsetSellRateRatio,
		})
	}
	return actions, nil
}

func (s *ScalpingStrategy) checkUnusedCoin(now time.Time, info *TradeInfo) (Action, error) {
	key, err := info.BalanceKey()
	if err != nil {
		return nil, err
	}

	timing, timingMsg := isNotificationTiming(now, s.cfg.NotificationIntervalMinutes)
	unused, unusedMsg := hasUnusedCoin(key, s.cfg.UnusedCoinBorder)
	if !timing || !unused {
		s.logger.Debug("NONE <= no unused coin notification", zap.String("timing", timingMsg), zap.String("coin", unusedMsg))
		return nil, nil
	}

	message := fmt.Sprintf("unused coin exist (%s %.8g)", info.Pair.Key, key.Amount)
	s.logger.Debug("Notify <= "+unusedMsg, zap.String("timing", timingMsg))
	return NotifyAction{LogMessage: message, Message: message}, nil
}

// checkOpenOrders yields at most one action per resting sell order.
func (s *ScalpingStrategy) checkOpenOrders(now time.Time, info *TradeInfo, sellRate, buyJPYPerLot float64) []Action {
	var actions []Action
	orders := info.SellOrders()
	if len(orders) == 0 {
		s.logger.Debug("NONE <= open orders is empty")
		return nil
	}

	previous, prevErr := info.PreviousRate()

	for _, order := range orders {
		l := s.logger.With(zap.Int64("order_id", order.ID), zap.Float64("order_rate", order.Rate))

		lossCut, msg := shouldLossCut(sellRate, order, s.cfg.LossCutRateRatio)
		l.Debug(msg)
		if lossCut {
			actions = append(actions, LossCutAction{Pair: order.Pair, OpenOrderID: order.ID, Amount: order.PendingAmount})
			continue
		}

		if prevErr != nil {
			l.Debug("NONE <= previous rate is unavailable", zap.Error(prevErr))
			continue
		}

		if s.checkAvgDown(l, now, info, sellRate, previous, order) {
			amount, memo := CalcAvgDownBuyAmount(buyJPYPerLot, order)
			l.Debug("AvgDown <= " + memo)
			actions = append(actions, AvgDownAction{
				Pair:                order.Pair,
				BuyJPYPerLot:        buyJPYPerLot,
				MarketBuyAmount:     amount,
				OpenOrderID:         order.ID,
				OpenOrderRate:       order.Rate,
				OpenOrderAmount:     order.PendingAmount,
				OffsetSellRateRatio: s.cfg.OffsetSellRateRatio,
				Memo:                memo,
			})
			continue
		}

		setProfit, msg := shouldSetProfit(sellRate, previous, order, s.cfg.OffsetSellRateRatio)
		l.Debug(msg)
		if setProfit {
			actions = append(actions, SetProfitAction{Pair: order.Pair, OpenOrderID: order.ID, Amount: order.PendingAmount})
		}
	}
	return actions
}

func (s *ScalpingStrategy) checkAvgDown(l *zap.Logger, now time.Time, info *TradeInfo, sellRate, previous float64, order coincheck.OpenOrder) bool {
	slope, err := lineSlope("support lines short", info.SupportLinesShort)
	if err != nil {
		l.Debug("NONE <= avg down check failed", zap.Error(err))
		return false
	}
	if slope < 0 {
		l.Debug("NONE <= support line short is falling", zap.Float64("slope", slope))
		return false
	}

	rising, msg := isRateRising(sellRate, previous)
	if !rising {
		l.Debug(msg)
		return false
	}

	avgDown, msg := shouldAvgDown(now, info.BuyRate, order, s.cfg.AvgDownRateRatio, s.cfg.HoldLimit())
	l.Debug(msg)
	return avgDown
}

// checkEntryGates evaluates every gate so each one shows up in the log.
func (s *ScalpingStrategy) checkEntryGates(info *TradeInfo, sellRate, buyJPYPerLot float64) bool {
	ok := true
	gate := func(name string, passed bool, msg string) {
		mark := "OK"
		if !passed {
			mark = "NG"
			ok = false
		}
		s.logger.Debug(fmt.Sprintf("%s %s(%s)", mark, name, msg))
	}

	shortWMA, longWMA, err := info.wmaPair(s.cfg.WMAPeriodShort, s.cfg.WMAPeriodLong)
	if err != nil {
		gate("not down trend", false, err.Error())
	} else {
		down, msg := isDownTrend(shortWMA, longWMA)
		gate("not down trend", !down, msg)
	}

	near, msg := hasNearRateOrder(sellRate, info.SellOrders(), s.cfg.EntrySkipRateRatio)
	gate("no near rate order", !near, msg)

	enough, msg := isTradeFrequencyEnough(info.MarketSummary.TradeFrequencyRatio, s.cfg.RequiredTradeFrequencyRatio)
	gate("trade frequency", enough, msg)

	shortSell, shortBuy := info.ShortVolumes(s.cfg.VolumePeriodShort)
	overSell, msg := isOverSell(shortSell, shortBuy, info.MarketSummary.ExVolumeSellTotal, s.cfg.OverSellVolumeRatio)
	gate("not over sell", !overSell, msg)

	if info.BuyRate <= 0 {
		gate("board not heavy", false, fmt.Sprintf("invalid buy rate:%.3f", info.BuyRate))
	} else {
		estimated := estimateSellRate(info.BuyRate, buyJPYPerLot, s.cfg.ProfitRatioPerOrder)
		heavy, msg := isBoardHeavy(estimated, info.OrderBooks.Asks, shortSell, s.cfg.OrderBooksSizeRatio)
		gate("board not heavy", !heavy, msg)
	}

	return ok
}

func (s *ScalpingStrategy) checkResistanceLineBreakout(info *TradeInfo, sellRate float64) bool {
	lines := info.ResistanceLines

	slope, err := lineSlope("resistance lines", lines)
	if err != nil {
		s.logger.Debug("NG resistance line breakout", zap.Error(err))
		return false
	}
	if slope < 0 {
		s.logger.Debug(fmt.Sprintf("NG resistance line breakout(slope:%.3f)", slope))
		return false
	}

	rebounded, msg := isRebounded(sellRate, info.RateHistories, lines,
		s.cfg.ResistanceLineWidthRatioUpper, s.cfg.ResistanceLineWidthRatioLower, s.cfg.ReboundCheckPeriod)
	if !rebounded {
		s.logger.Debug("NG resistance line breakout(" + msg + ")")
		return false
	}

	onLine, msg := isOnLine(sellRate, lines, s.cfg.ResistanceLineWidthRatioUpper, s.cfg.ResistanceLineWidthRatioLower)
	if !onLine {
		s.logger.Debug("NG resistance line breakout(" + msg + ")")
		return false
	}

	previous, err := info.PreviousRate()
	if err != nil {
		s.logger.Debug("NG resistance line breakout", zap.Error(err))
		return false
	}
	rising, msg := isRateRising(sellRate, previous)
	if !rising {
		s.logger.Debug("NG resistance line breakout(" + msg + ")")
		return false
	}

	s.logger.Debug("OK resistance line breakout")
	return true
}

func (s *ScalpingStrategy) checkSupportLineRebound(info *TradeInfo, sellRate float64) bool {
	upper, lower := s.cfg.SupportLineWidthRatioUpper, s.cfg.SupportLineWidthRatioLower

	reboundLong, msgLong := isRebounded(sellRate, info.RateHistories, info.SupportLinesLong, upper, lower, s.cfg.ReboundCheckPeriod)
	reboundShort, msgShort := isRebounded(sellRate, info.RateHistories, info.SupportLinesShort, upper, lower, s.cfg.ReboundCheckPeriod)
	if !reboundLong && !reboundShort {
		s.logger.Debug("NG support line rebound", zap.String("long", msgLong), zap.String("short", msgShort))
		return false
	}

	onLong, msgLong := isOnLine(sellRate, info.SupportLinesLong, upper, lower)
	onShort, msgShort := isOnLine(sellRate, info.SupportLinesShort, upper, lower)
	if !onLong && !onShort {
		s.logger.Debug("NG support line rebound", zap.String("long", msgLong), zap.String("short", msgShort))
		return false
	}

	s.logger.Debug("OK support line rebound")
	return true
}
