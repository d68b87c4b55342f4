// Package indicator implements the momentum indicators the workers trade on.
// All functions are pure: they take a close series ordered oldest to newest
// and keep no state between calls. Callers fetch a fresh window every cycle.
package indicator

// WilderRSI computes the 0-100 relative strength index with Wilder's
// recursive smoothing: avg = (delta + avg*(period-1)) / period.
// It needs at least period+1 closes and returns 0 when the window is too
// short, which callers treat as "no reading", never as a signal.
//
// Degenerate windows are clamped instead of propagating Inf/NaN: a window
// with no losses reads 100, a flat window reads 50.
func WilderRSI(closes []float64, period int) float64 {
	if period < 1 || len(closes) < period+1 {
		return 0
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d >= 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		var gain, loss float64
		if d >= 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (gain + avgGain*float64(period-1)) / float64(period)
		avgLoss = (loss + avgLoss*float64(period-1)) / float64(period)
	}

	return rsiValue(avgGain, avgLoss)
}

// ClassicRSI computes the unsmoothed ratio variant over the trailing window:
// 100 * sum(gains) / (sum(gains) + sum(losses)). Display indicator only; the
// trading decision uses WilderRSI.
func ClassicRSI(closes []float64, period int) float64 {
	if period < 1 || len(closes) < period+1 {
		return 0
	}

	var inc, dec float64
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d >= 0 {
			inc += d
		} else {
			dec -= d
		}
	}
	if inc+dec == 0 {
		return 50
	}
	return 100 * inc / (inc + dec)
}

// EMA returns the exponential moving average series for the given period.
// The first value seeds as the arithmetic mean of the first period closes;
// each later value is (close - prev)*w + prev with w = 2/(period+1).
// Returns nil when fewer than period closes are supplied.
func EMA(closes []float64, period int) []float64 {
	if period < 1 || len(closes) < period {
		return nil
	}

	w := 2.0 / float64(period+1)
	out := make([]float64, 0, len(closes)-period+1)

	var sum float64
	for _, c := range closes[:period] {
		sum += c
	}
	prev := sum / float64(period)
	out = append(out, prev)

	for _, c := range closes[period:] {
		prev = (c-prev)*w + prev
		out = append(out, prev)
	}
	return out
}

// MACD is the trend-strength signal EMA(14) - EMA(28) over the same closes.
// Returns 0 when the window is shorter than the slow period.
func MACD(closes []float64) float64 {
	fast := EMA(closes, 14)
	slow := EMA(closes, 28)
	if len(fast) == 0 || len(slow) == 0 {
		return 0
	}
	return fast[len(fast)-1] - slow[len(slow)-1]
}

func rsiValue(avgGain, avgLoss float64) float64 {
	switch {
	case avgGain == 0 && avgLoss == 0:
		return 50
	case avgLoss == 0:
		return 100
	}
	return 100 * (1 - 1/(1+avgGain/avgLoss))
}
