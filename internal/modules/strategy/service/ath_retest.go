package service

import (
	"fmt"
	"math"

	"signal_bot/internal/models"
)

// ATHRetest: недавний пробой максимума (минимума) окна lookback и первый ретест
// пробитого уровня текущей свечой с закрытием по направлению пробоя.
type ATHRetest struct {
	p Params
}

func NewATHRetest(p Params) *ATHRetest { return &ATHRetest{p: p} }

func (r *ATHRetest) Name() string { return RuleATHRetest }

func (r *ATHRetest) MinCandles() int {
	return r.p.ATH.BreakoutWithin + r.p.ATRPeriod + 10
}

func (r *ATHRetest) Evaluate(w []models.Candle) (*models.CandidateSignal, error) {
	if len(w) < r.MinCandles() {
		return nil, nil
	}
	cfg := r.p.ATH
	w = tail(w, cfg.Lookback)
	n := len(w)
	last := w[n-1]

	// уровень считаем по истории до окна пробоя
	within := cfg.BreakoutWithin
	if within >= n-1 {
		return nil, nil
	}
	ref := w[:n-1-within]
	recent := w[n-1-within : n-1]
	if len(ref) == 0 {
		return nil, nil
	}
	ath, atl := maxHigh(ref), minLow(ref)

	tolUp, tolDown := ath*cfg.RetestTolerancePct/100, atl*cfg.RetestTolerancePct/100

	// после первого закрытия за уровнем цена не должна была к нему возвращаться:
	// сигнал даёт только первый ретест
	brokeUp, brokeDown := false, false
	retestedUp, retestedDown := false, false
	for _, c := range recent {
		if brokeUp && c.Low <= ath+tolUp {
			retestedUp = true
		}
		if brokeDown && c.High >= atl-tolDown {
			retestedDown = true
		}
		if c.Close > ath {
			brokeUp = true
		}
		if c.Close < atl {
			brokeDown = true
		}
	}
	brokeUp = brokeUp && !retestedUp
	brokeDown = brokeDown && !retestedDown

	atr := lastATR(w, r.p.ATRPeriod)
	entry := last.Close
	var (
		dir       models.Direction
		level, sl float64
	)
	switch {
	case brokeUp && math.Abs(last.Low-ath) <= tolUp && last.Close > ath:
		dir = models.DirectionLong
		level = ath
		sl = ath - cfg.ATRBuffer*atr
		if sl >= entry {
			return nil, nil
		}
	case brokeDown && math.Abs(last.High-atl) <= tolDown && last.Close < atl:
		dir = models.DirectionShort
		level = atl
		sl = atl + cfg.ATRBuffer*atr
		if sl <= entry {
			return nil, nil
		}
	default:
		return nil, nil
	}

	risk := math.Abs(entry - sl)
	tp := entry + risk*r.p.TakeProfitRR
	if dir == models.DirectionShort {
		tp = entry - risk*r.p.TakeProfitRR
	}

	confidence := 0.6
	trend := trendBySwings(w, r.p.TrendLookback)
	if (dir == models.DirectionLong && trend == TrendUp) || (dir == models.DirectionShort && trend == TrendDown) {
		confidence += 0.2
	}
	rsi := lastRSI(w, r.p.RSIPeriod)
	if (dir == models.DirectionLong && rsi < 70) || (dir == models.DirectionShort && rsi > 30) {
		confidence += 0.1
	}
	if (dir == models.DirectionLong && last.Bullish()) || (dir == models.DirectionShort && last.Bearish()) {
		confidence += 0.1
	}

	return &models.CandidateSignal{
		Direction:  dir,
		Strategy:   r.Name(),
		Entry:      entry,
		StopLoss:   sl,
		TakeProfit: tp,
		Confidence: clamp01(confidence),
		Rationale:  fmt.Sprintf("retest of broken extreme %.2f over %d bars", level, len(ref)),
		CandleTime: last.Time,
	}, nil
}
