package service

import (
	"math"

	"signal_bot/internal/models"
)

type Trend int

const (
	TrendNone Trend = iota
	TrendUp
	TrendDown
)

func (t Trend) String() string {
	switch t {
	case TrendUp:
		return "up"
	case TrendDown:
		return "down"
	default:
		return "sideways"
	}
}

type swingPoint struct {
	Index    int
	Price    float64
	High     bool
	Strength int
}

// swingPoints: swing high, если high выше high у lookback свечей с каждой стороны,
// swing low: зеркально по low. Результат отсортирован по индексу.
func swingPoints(w []models.Candle, lookback, minStrength int) []swingPoint {
	if lookback < 1 {
		lookback = 1
	}
	out := make([]swingPoint, 0, 16)
	for i := lookback; i < len(w)-lookback; i++ {
		strength := 0
		isHigh := true
		for j := 1; j <= lookback; j++ {
			if w[i].High > w[i-j].High && w[i].High > w[i+j].High {
				strength++
			} else {
				isHigh = false
				break
			}
		}
		if isHigh && strength >= minStrength {
			out = append(out, swingPoint{Index: i, Price: w[i].High, High: true, Strength: strength})
		}

		strength = 0
		isLow := true
		for j := 1; j <= lookback; j++ {
			if w[i].Low < w[i-j].Low && w[i].Low < w[i+j].Low {
				strength++
			} else {
				isLow = false
				break
			}
		}
		if isLow && strength >= minStrength {
			out = append(out, swingPoint{Index: i, Price: w[i].Low, High: false, Strength: strength})
		}
	}
	return out
}

func splitSwings(sw []swingPoint) (highs, lows []swingPoint) {
	for _, s := range sw {
		if s.High {
			highs = append(highs, s)
		} else {
			lows = append(lows, s)
		}
	}
	return highs, lows
}

func lastN(sw []swingPoint, n int) []swingPoint {
	if len(sw) <= n {
		return sw
	}
	return sw[len(sw)-n:]
}

// trendBySwings: higher highs + higher lows = up, lower highs + lower lows = down.
// Берутся последние lookback свечей и последние 10 свингов.
func trendBySwings(w []models.Candle, lookback int) Trend {
	if lookback > 0 && len(w) > lookback {
		w = w[len(w)-lookback:]
	}
	sw := swingPoints(w, 3, 1)
	if len(sw) < 4 {
		return TrendNone
	}
	highs, lows := splitSwings(lastN(sw, 10))
	if len(highs) < 2 || len(lows) < 2 {
		return TrendNone
	}

	h1, h0 := highs[len(highs)-1].Price, highs[len(highs)-2].Price
	l1, l0 := lows[len(lows)-1].Price, lows[len(lows)-2].Price

	switch {
	case h1 > h0 && l1 > l0:
		return TrendUp
	case h1 < h0 && l1 < l0:
		return TrendDown
	default:
		return TrendNone
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// retracement: какая доля ноги legStart→legEnd отыграна ценой price.
// Для ноги вверх (low→high) это (high-price)/(high-low).
func retracement(price, legStart, legEnd float64) float64 {
	rng := legEnd - legStart
	if rng == 0 {
		return 0
	}
	return round3((legEnd - price) / rng)
}

func nearLevel(price, legStart, legEnd, target, tol float64) bool {
	return math.Abs(retracement(price, legStart, legEnd)-target) <= tol
}

// levelPrice: цена уровня target на ноге legStart→legEnd.
func levelPrice(legStart, legEnd, target float64) float64 {
	return legEnd - (legEnd-legStart)*target
}

// retestFound: low или high одной из последних lookback свечей касался уровня
// в пределах tolPct процентов.
func retestFound(w []models.Candle, level, tolPct float64, lookback int) bool {
	if lookback > 0 && len(w) > lookback {
		w = w[len(w)-lookback:]
	}
	tol := level * tolPct / 100
	for _, c := range w {
		if math.Abs(c.Low-level) <= tol || math.Abs(c.High-level) <= tol {
			return true
		}
	}
	return false
}

func maxHigh(w []models.Candle) float64 {
	return maxSlice(highs(w))
}

func minLow(w []models.Candle) float64 {
	return minSlice(lows(w))
}

func maxSlice(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, v := range xs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minSlice(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, v := range xs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func avgVolume(w []models.Candle) float64 {
	if len(w) == 0 {
		return 0
	}
	var s float64
	for _, c := range w {
		s += c.Volume
	}
	return s / float64(len(w))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// tail: последние n свечей окна.
func tail(w []models.Candle, n int) []models.Candle {
	if n <= 0 || len(w) <= n {
		return w
	}
	return w[len(w)-n:]
}
