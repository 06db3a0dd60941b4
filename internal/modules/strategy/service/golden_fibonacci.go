package service

import (
	"fmt"
	"math"

	"signal_bot/internal/models"
)

// GoldenFibonacci: касание 61.8% последней ноги и поглощающая свеча в сторону ноги.
// Направление берётся из порядка последних свингов: low→high даёт LONG, high→low даёт SHORT.
type GoldenFibonacci struct {
	p Params
}

func NewGoldenFibonacci(p Params) *GoldenFibonacci { return &GoldenFibonacci{p: p} }

func (r *GoldenFibonacci) Name() string    { return RuleGoldenFibonacci }
func (r *GoldenFibonacci) MinCandles() int { return r.p.minWindow() }

func (r *GoldenFibonacci) Evaluate(w []models.Candle) (*models.CandidateSignal, error) {
	if len(w) < r.MinCandles() {
		return nil, nil
	}
	cfg := r.p.Golden
	last, prev := w[len(w)-1], w[len(w)-2]

	hs, ls := splitSwings(swingPoints(w, r.p.SwingLookback, r.p.SwingMinStrength))
	if len(hs) == 0 || len(ls) == 0 {
		return nil, nil
	}
	h, l := hs[len(hs)-1], ls[len(ls)-1]
	if h.Price <= l.Price {
		return nil, nil
	}
	atr := lastATR(w, r.p.ATRPeriod)

	var (
		dir              models.Direction
		legStart, legEnd float64
		touch            float64
		sl, tp           float64
	)
	entry := last.Close

	if l.Index < h.Index {
		// нога вверх, ждём бычье поглощение
		if !(last.Bullish() && prev.Bearish() && last.Close >= prev.Open && last.Open <= prev.Close) {
			return nil, nil
		}
		dir = models.DirectionLong
		legStart, legEnd = l.Price, h.Price
		touch = math.Min(last.Low, prev.Low)
		sl = levelPrice(legStart, legEnd, cfg.StopLevel) - cfg.ATRBuffer*atr
	} else {
		if !(last.Bearish() && prev.Bullish() && last.Close <= prev.Open && last.Open >= prev.Close) {
			return nil, nil
		}
		dir = models.DirectionShort
		legStart, legEnd = h.Price, l.Price
		touch = math.Max(last.High, prev.High)
		sl = levelPrice(legStart, legEnd, cfg.StopLevel) + cfg.ATRBuffer*atr
	}

	if !nearLevel(touch, legStart, legEnd, cfg.Level, cfg.Tolerance) {
		return nil, nil
	}

	risk := math.Abs(entry - sl)
	if risk <= 0 {
		return nil, nil
	}
	if dir == models.DirectionLong {
		if entry <= sl {
			return nil, nil
		}
		tp = math.Max(entry+risk*r.p.TakeProfitRR, legEnd)
	} else {
		if entry >= sl {
			return nil, nil
		}
		tp = math.Min(entry-risk*r.p.TakeProfitRR, legEnd)
	}

	confidence := 0.6
	trend := trendBySwings(w, r.p.TrendLookback)
	if (dir == models.DirectionLong && trend == TrendUp) || (dir == models.DirectionShort && trend == TrendDown) {
		confidence += 0.2
	}
	if rsi := lastRSI(w, r.p.RSIPeriod); rsi > 30 && rsi < 70 {
		confidence += 0.1
	}
	if v := avgVolume(tail(w[:len(w)-1], 20)); v > 0 && last.Volume > v {
		confidence += 0.1
	}

	return &models.CandidateSignal{
		Direction:  dir,
		Strategy:   r.Name(),
		Entry:      entry,
		StopLoss:   sl,
		TakeProfit: tp,
		Confidence: clamp01(confidence),
		Rationale: fmt.Sprintf("golden %.1f%% of %.2f→%.2f with engulfing close %.2f",
			cfg.Level*100, legStart, legEnd, entry),
		CandleTime: last.Time,
	}, nil
}
