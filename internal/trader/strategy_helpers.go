package trader

import (
	"fmt"
	"time"

	"coincheck-trade-bot-go/internal/coincheck"
)

// The checks below are pure. Each returns its verdict and a message describing the numbers
// behind it, which the strategy logs.

func isNotificationTiming(now time.Time, intervalMinutes int) (bool, string) {
	minute := now.Minute()
	if minute%intervalMinutes == 0 {
		return true, fmt.Sprintf("it is notification timing now, minute:%d %% %d == 0", minute, intervalMinutes)
	}
	return false, fmt.Sprintf("it is not notification timing now, minute:%d %% %d != 0", minute, intervalMinutes)
}

func hasUnusedCoin(balance coincheck.Balance, border float64) (bool, string) {
	if balance.Amount >= border {
		return true, fmt.Sprintf("has unused coin, coin:%.3f >= border:%.3f", balance.Amount, border)
	}
	return false, fmt.Sprintf("has not unused coin, coin:%.3f < border:%.3f", balance.Amount, border)
}

func shouldLossCut(sellRate float64, order coincheck.OpenOrder, lossCutRateRatio float64) (bool, string) {
	lower := order.Rate * lossCutRateRatio
	if sellRate < lower {
		return true, fmt.Sprintf("should loss cut, sell_rate:%.3f < lower:%.3f", sellRate, lower)
	}
	return false, fmt.Sprintf("should not loss cut, sell_rate:%.3f >= lower:%.3f", sellRate, lower)
}

func shouldAvgDown(now time.Time, buyRate float64, order coincheck.OpenOrder, avgDownRateRatio float64, holdLimit time.Duration) (bool, string) {
	lower := order.Rate * avgDownRateRatio
	holding := now.Sub(order.CreatedAt)
	if buyRate < lower {
		return true, fmt.Sprintf("should avg down, buy_rate:%.3f < lower:%.3f", buyRate, lower)
	}
	if holding > holdLimit {
		return true, fmt.Sprintf("should avg down, holding:%s > limit:%s", holding, holdLimit)
	}
	return false, fmt.Sprintf("should not avg down, buy_rate:%.3f >= lower:%.3f, holding:%s <= limit:%s",
		buyRate, lower, holding, holdLimit)
}

// CalcAvgDownBuyAmount returns the smallest lot (1, 2, 4, ...) worth of buyJPYPerLot whose running
// doubling sum reaches 80% of the capital committed to the order.
func CalcAvgDownBuyAmount(buyJPYPerLot float64, order coincheck.OpenOrder) (float64, string) {
	used := order.Rate * order.PendingAmount
	if buyJPYPerLot <= 0 {
		return 0, fmt.Sprintf("lot:0, buy_jpy_per_lot:%.3f, used_jpy:%.3f", buyJPYPerLot, used)
	}

	lot := 1.0
	sum := buyJPYPerLot
	for sum < used*0.8 {
		lot *= 2
		sum += lot * buyJPYPerLot
	}
	return lot * buyJPYPerLot, fmt.Sprintf("lot:%.0f, buy_jpy_per_lot:%.3f, used_jpy:%.3f", lot, buyJPYPerLot, used)
}

func shouldSetProfit(sellRate, previousRate float64, order coincheck.OpenOrder, offsetSellRateRatio float64) (bool, string) {
	target := order.Rate / (1 + offsetSellRateRatio)
	if sellRate > previousRate {
		return false, fmt.Sprintf("should not set profit, rate is rising, sell_rate:%.3f > previous:%.3f", sellRate, previousRate)
	}
	if sellRate < target {
		return false, fmt.Sprintf("should not set profit, sell_rate:%.3f < target:%.3f", sellRate, target)
	}
	return true, fmt.Sprintf("should set profit, sell_rate:%.3f >= target:%.3f and not above previous:%.3f", sellRate, target, previousRate)
}

func isRateRising(sellRate, previousRate float64) (bool, string) {
	if sellRate > previousRate {
		return true, fmt.Sprintf("rate is rising, sell_rate:%.3f > previous:%.3f", sellRate, previousRate)
	}
	return false, fmt.Sprintf("rate is not rising, sell_rate:%.3f <= previous:%.3f", sellRate, previousRate)
}

func isDownTrend(wmaShort, wmaLong float64) (bool, string) {
	if wmaShort < wmaLong {
		return true, fmt.Sprintf("is down trend, wma_short:%.3f < wma_long:%.3f", wmaShort, wmaLong)
	}
	return false, fmt.Sprintf("is not down trend, wma_short:%.3f >= wma_long:%.3f", wmaShort, wmaLong)
}

func hasNearRateOrder(sellRate float64, orders []coincheck.OpenOrder, entrySkipRateRatio float64) (bool, string) {
	if len(orders) == 0 {
		return false, "has not near rate order, open orders is empty"
	}
	minRate := orders[0].Rate
	for _, o := range orders[1:] {
		minRate = min(minRate, o.Rate)
	}
	if sellRate > minRate*entrySkipRateRatio {
		return true, fmt.Sprintf("has near rate order, sell_rate:%.3f > (min_rate:%.3f * %.3f)", sellRate, minRate, entrySkipRateRatio)
	}
	return false, fmt.Sprintf("has not near rate order, sell_rate:%.3f <= (min_rate:%.3f * %.3f)", sellRate, minRate, entrySkipRateRatio)
}

func isTradeFrequencyEnough(ratio, required float64) (bool, string) {
	if ratio < required {
		return false, fmt.Sprintf("trade frequency is too low, frequency:%.3f < required:%.3f", ratio, required)
	}
	return true, fmt.Sprintf("trade frequency is enough, frequency:%.3f >= required:%.3f", ratio, required)
}

func isOverSell(shortSell, shortBuy, longSell, overSellVolumeRatio float64) (bool, string) {
	diff := shortSell - shortBuy
	border := longSell * overSellVolumeRatio
	if diff >= border {
		return true, fmt.Sprintf("over sell, volume_diff:%.3f >= border:%.3f", diff, border)
	}
	return false, fmt.Sprintf("not over sell, volume_diff:%.3f < border:%.3f", diff, border)
}

func isBoardHeavy(orderSellRate float64, asks []coincheck.OrderBook, shortSell, orderBooksSizeRatio float64) (bool, string) {
	var askTotal float64
	for _, ask := range asks {
		if ask.Rate < orderSellRate {
			askTotal += ask.Amount
		}
	}
	border := shortSell * orderBooksSizeRatio
	if askTotal > border {
		return true, fmt.Sprintf("board is too heavy, ask_total:%.3f > border:%.3f", askTotal, border)
	}
	return false, fmt.Sprintf("board is not heavy, ask_total:%.3f <= border:%.3f", askTotal, border)
}

// estimateSellRate is the rate at which a lot bought at buyRate sells with profitRatio.
func estimateSellRate(buyRate, buyJPYPerLot, profitRatio float64) float64 {
	amount := buyJPYPerLot / buyRate
	profit := buyJPYPerLot * profitRatio
	return (buyJPYPerLot + profit) / amount
}

func isOnLine(sellRate float64, line []float64, widthRatioUpper, widthRatioLower float64) (bool, string) {
	if len(line) == 0 {
		return false, "line is empty"
	}
	last := line[len(line)-1]
	upper := last + sellRate*widthRatioUpper
	lower := last - sellRate*widthRatioLower
	if sellRate >= lower && sellRate <= upper {
		return true, fmt.Sprintf("sell rate:%.3f is on line:%.3f...%.3f", sellRate, lower, upper)
	}
	return false, fmt.Sprintf("sell rate:%.3f is not on line:%.3f...%.3f", sellRate, lower, upper)
}

func isRebounded(sellRate float64, rates, line []float64, widthRatioUpper, widthRatioLower float64, period int) (bool, string) {
	rebounded := IsUpperRebound(rates, line, sellRate*widthRatioUpper, sellRate*widthRatioLower, period)
	return rebounded, fmt.Sprintf("is rebound: %t", rebounded)
}

func lineSlope(name string, line []float64) (float64, error) {
	if len(line) < 2 {
		return 0, &TooShortError{Name: name, Len: len(line), Required: 2}
	}
	return Slope(line), nil
}
