package trader

// SupportLines fits a lower envelope to the window [len-period-offset, len-offset] of history
// and evaluates it over the whole history.
func SupportLines(history []float64, period, offset int) ([]float64, error) {
	return envelope(history, period, offset, func(rate, fit float64) bool { return rate <= fit })
}

// ResistanceLines fits an upper envelope, see SupportLines.
func ResistanceLines(history []float64, period, offset int) ([]float64, error) {
	return envelope(history, period, offset, func(rate, fit float64) bool { return rate >= fit })
}

// envelope refits a least squares line on the points on the outer side of the previous fit
// until three or fewer points remain.
func envelope(history []float64, period, offset int, outside func(rate, fit float64) bool) ([]float64, error) {
	size := len(history)
	if size < period+offset {
		return nil, &TooShortError{Name: "rate histories", Len: size, Required: period + offset}
	}

	begin := size - period - offset
	end := size - offset

	var a, b float64
	first := true
	for pass := 0; pass < size; pass++ {
		var xs, ys []float64
		for i := begin; i <= end && i < size; i++ {
			rate := history[i]
			if first || outside(rate, a*float64(i)+b) {
				xs = append(xs, float64(i))
				ys = append(ys, rate)
			}
		}
		if len(xs) <= 3 {
			break
		}
		a, b = lineFit(xs, ys)
		first = false
	}
	return makeLine(a, b, size), nil
}

func lineFit(xs, ys []float64) (a, b float64) {
	n := len(xs)
	if n < 2 {
		return 0, 0
	}

	var sx, sy float64
	for i := 0; i < n; i++ {
		sx += xs[i]
		sy += ys[i]
	}
	mean := sx / float64(n)

	var st2 float64
	for i := 0; i < n; i++ {
		t := xs[i] - mean
		st2 += t * t
		a += t * ys[i]
	}
	a /= st2
	b = (sy - sx*a) / float64(n)
	return a, b
}

func makeLine(a, b float64, size int) []float64 {
	line := make([]float64, size)
	for i := range line {
		line[i] = a*float64(i) + b
	}
	return line
}

// Slope returns the per-step change of a fitted line.
func Slope(line []float64) float64 {
	if len(line) < 2 {
		return 0
	}
	return line[1] - line[0]
}

// IsUpperRebound scans the last period points from newest to oldest for a V whose bottom stays
// within [line-widthLower, line+widthUpper]. Any point below line-widthLower ends the scan.
func IsUpperRebound(rates, lines []float64, widthUpper, widthLower float64, period int) bool {
	size := len(rates)
	if size < period || size == 0 {
		return false
	}

	end := size - 1
	for idx := end; idx >= end-period; idx-- {
		if idx-2 < 0 || idx >= len(lines) {
			return false
		}
		r1, r2, r3 := rates[idx-2], rates[idx-1], rates[idx]
		l1, l2, l3 := lines[idx-2], lines[idx-1], lines[idx]

		if r1 < l1-widthLower || r2 < l2-widthLower || r3 < l3-widthLower {
			return false
		}
		if !(r1 >= r2 && r2 < r3) {
			continue
		}
		if r2 > l2+widthUpper {
			continue
		}
		return true
	}
	return false
}

// WMA weights the trailing period points with period-i, so the oldest point of the window
// weighs the most.
func WMA(history []float64, period int) (float64, error) {
	if period <= 0 || len(history) < period {
		return 0, &TooShortError{Name: "rate histories", Len: len(history), Required: period}
	}

	window := history[len(history)-period:]
	var sum, weights float64
	for i, rate := range window {
		w := float64(period - i)
		sum += rate * w
		weights += w
	}
	return sum / weights, nil
}
