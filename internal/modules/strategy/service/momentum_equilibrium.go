package service

import (
	"fmt"
	"math"

	"signal_bot/internal/models"
)

// MomentumEquilibrium: откат к 50% последней импульсной ноги по тренду
// и закрытие свечи обратно по тренду.
type MomentumEquilibrium struct {
	p Params
}

func NewMomentumEquilibrium(p Params) *MomentumEquilibrium { return &MomentumEquilibrium{p: p} }

func (r *MomentumEquilibrium) Name() string    { return RuleMomentumEquilibrium }
func (r *MomentumEquilibrium) MinCandles() int { return r.p.minWindow() }

func (r *MomentumEquilibrium) Evaluate(w []models.Candle) (*models.CandidateSignal, error) {
	if len(w) < r.MinCandles() {
		return nil, nil
	}
	cfg := r.p.Momentum
	last := w[len(w)-1]

	trend := trendBySwings(w, r.p.TrendLookback)
	if trend == TrendNone {
		return nil, nil
	}

	hs, ls := splitSwings(swingPoints(w, r.p.SwingLookback, r.p.SwingMinStrength))
	if len(hs) == 0 || len(ls) == 0 {
		return nil, nil
	}
	h, l := hs[len(hs)-1], ls[len(ls)-1]
	rng := h.Price - l.Price
	if rng <= 0 {
		return nil, nil
	}

	atr := lastATR(w, r.p.ATRPeriod)
	if atr <= 0 || rng < cfg.ImpulseATR*atr {
		return nil, nil
	}

	var (
		dir        models.Direction
		entry      = last.Close
		sl, tp     float64
		legStart   float64
		legEnd     float64
		touchPrice float64
		confirmed  bool
	)
	switch {
	case trend == TrendUp && l.Index < h.Index:
		dir = models.DirectionLong
		legStart, legEnd = l.Price, h.Price
		touchPrice = last.Low
		confirmed = last.Bullish() && last.Close > levelPrice(legStart, legEnd, cfg.Level)
		sl = levelPrice(legStart, legEnd, cfg.StopLevel) - cfg.ATRBuffer*atr
	case trend == TrendDown && h.Index < l.Index:
		dir = models.DirectionShort
		legStart, legEnd = h.Price, l.Price
		touchPrice = last.High
		confirmed = last.Bearish() && last.Close < levelPrice(legStart, legEnd, cfg.Level)
		sl = levelPrice(legStart, legEnd, cfg.StopLevel) + cfg.ATRBuffer*atr
	default:
		return nil, nil
	}

	if !confirmed || !nearLevel(touchPrice, legStart, legEnd, cfg.Level, cfg.Tolerance) {
		return nil, nil
	}

	risk := math.Abs(entry - sl)
	if risk <= 0 {
		return nil, nil
	}
	if dir == models.DirectionLong {
		tp = math.Max(entry+risk*r.p.TakeProfitRR, legEnd)
	} else {
		tp = math.Min(entry-risk*r.p.TakeProfitRR, legEnd)
	}

	confidence := 0.5 + 0.2 + 0.1 // база + тренд + подтверждающая свеча
	rsi := lastRSI(w, r.p.RSIPeriod)
	if rsi > 40 && rsi < 60 {
		confidence += 0.1
	}
	if ema := lastEMA(w, r.p.EMAPeriod); ema > 0 {
		if (dir == models.DirectionLong && last.Close > ema) || (dir == models.DirectionShort && last.Close < ema) {
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
		Rationale: fmt.Sprintf("%s equilibrium %.0f%% of leg %.2f→%.2f, rsi=%.1f",
			trend, cfg.Level*100, legStart, legEnd, rsi),
		CandleTime: last.Time,
	}, nil
}
