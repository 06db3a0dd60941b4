package service

import (
	"fmt"
	"math"

	"signal_bot/internal/models"
)

// LondonBreakout: диапазон азиатской сессии текущих UTC-суток и первое закрытие
// за его пределами в лондонские часы. Имеет смысл на таймфреймах до 1h.
type LondonBreakout struct {
	p Params
}

func NewLondonBreakout(p Params) *LondonBreakout { return &LondonBreakout{p: p} }

func (r *LondonBreakout) Name() string { return RuleLondonBreakout }

func (r *LondonBreakout) MinCandles() int { return r.p.ATRPeriod + 2 }

func (r *LondonBreakout) Evaluate(w []models.Candle) (*models.CandidateSignal, error) {
	if len(w) < r.MinCandles() {
		return nil, nil
	}
	cfg := r.p.London
	last := w[len(w)-1]
	t := last.Time.UTC()
	if t.Hour() < cfg.LondonStartHour || t.Hour() >= cfg.LondonEndHour {
		return nil, nil
	}
	y, m, d := t.Date()

	var (
		asia      []models.Candle
		london    []models.Candle // лондонские свечи до текущей
		rangeHigh float64
		rangeLow  float64
	)
	for _, c := range w[:len(w)-1] {
		ct := c.Time.UTC()
		cy, cm, cd := ct.Date()
		if cy != y || cm != m || cd != d {
			continue
		}
		switch {
		case ct.Hour() >= cfg.AsiaStartHour && ct.Hour() < cfg.AsiaEndHour:
			asia = append(asia, c)
		case ct.Hour() >= cfg.LondonStartHour && ct.Hour() < cfg.LondonEndHour:
			london = append(london, c)
		}
	}
	if len(asia) < 2 {
		return nil, nil
	}
	rangeHigh, rangeLow = maxHigh(asia), minLow(asia)
	rng := rangeHigh - rangeLow
	atr := lastATR(w, r.p.ATRPeriod)
	if rng <= 0 || atr <= 0 || rng < cfg.MinRangeATR*atr {
		return nil, nil
	}

	threshold := rng * cfg.ThresholdPct / 100
	up := last.Close > rangeHigh+threshold
	down := last.Close < rangeLow-threshold
	if !up && !down {
		return nil, nil
	}
	// только первый пробой за сессию
	for _, c := range london {
		if (up && c.Close > rangeHigh+threshold) || (down && c.Close < rangeLow-threshold) {
			return nil, nil
		}
	}

	entry := last.Close
	maxStop := cfg.MaxStopATR * atr
	var dir models.Direction
	var sl, tp float64
	if up {
		dir = models.DirectionLong
		sl = rangeLow
		if entry-sl > maxStop {
			sl = entry - maxStop
		}
		tp = entry + (entry-sl)*r.p.TakeProfitRR
	} else {
		dir = models.DirectionShort
		sl = rangeHigh
		if sl-entry > maxStop {
			sl = entry + maxStop
		}
		tp = entry - (sl-entry)*r.p.TakeProfitRR
	}

	confidence := 0.55
	if v := avgVolume(asia); v > 0 && last.Volume > v {
		confidence += 0.15
	}
	trend := trendBySwings(w, r.p.TrendLookback)
	if (up && trend == TrendUp) || (down && trend == TrendDown) {
		confidence += 0.1
	}
	if last.Range() > 0 {
		pos := (last.Close - last.Low) / last.Range()
		if (up && pos >= 0.75) || (down && pos <= 0.25) {
			confidence += 0.1
		}
	}

	return &models.CandidateSignal{
		Direction:  dir,
		Strategy:   r.Name(),
		Entry:      entry,
		StopLoss:   sl,
		TakeProfit: tp,
		Confidence: clamp01(confidence),
		Rationale: fmt.Sprintf("London breakout of Asia range %.2f-%.2f (width %.2f, atr %.2f)",
			rangeLow, rangeHigh, rng, math.Round(atr*100)/100),
		CandleTime: last.Time,
	}, nil
}
