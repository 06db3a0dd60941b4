package service

import (
	"fmt"
	"math"

	"signal_bot/internal/models"
)

// FibRetest: аптренд, пробой предыдущего swing high, откат low к уровню 0.786
// последней ноги swing low → swing high. Только LONG.
type FibRetest struct {
	p Params
}

func NewFibRetest(p Params) *FibRetest { return &FibRetest{p: p} }

func (r *FibRetest) Name() string    { return RuleFibRetest }
func (r *FibRetest) MinCandles() int { return r.p.minWindow() }

func (r *FibRetest) Evaluate(w []models.Candle) (*models.CandidateSignal, error) {
	if len(w) < r.MinCandles() {
		return nil, nil
	}
	cfg := r.p.FibRetest
	last := w[len(w)-1]

	trend := trendBySwings(w, r.p.TrendLookback)
	if trend != TrendUp {
		return nil, nil
	}

	sw := swingPoints(w, r.p.SwingLookback, r.p.SwingMinStrength)
	if len(sw) < 4 {
		return nil, nil
	}
	hs, ls := splitSwings(sw)
	hs, ls = lastN(hs, 3), lastN(ls, 3)
	if len(hs) < 2 || len(ls) < 1 {
		return nil, nil
	}
	swingHigh := hs[len(hs)-1]
	prevHigh := hs[len(hs)-2]
	swingLow := ls[len(ls)-1]
	if swingHigh.Price <= swingLow.Price {
		return nil, nil
	}

	breakoutLevel := prevHigh.Price
	if maxHigh(tail(w, cfg.BreakoutLookback+1)) <= breakoutLevel {
		return nil, nil
	}

	if !nearLevel(last.Low, swingLow.Price, swingHigh.Price, cfg.Level, cfg.Tolerance) {
		return nil, nil
	}

	retest := retestFound(w, breakoutLevel, cfg.RetestTolerancePct, cfg.RetestLookback)

	entry := last.Close
	atr := lastATR(w, r.p.ATRPeriod)
	sl := swingLow.Price - atr*cfg.ATRBuffer
	risk := entry - sl
	if risk <= 0 {
		return nil, nil
	}
	tp := math.Max(entry+risk*r.p.TakeProfitRR, swingHigh.Price)

	confidence := 0.5 + 0.2 // база + аптренд
	if retest {
		confidence += 0.2
	}
	if rsi := lastRSI(w, r.p.RSIPeriod); rsi > 30 && rsi < 70 {
		confidence += 0.1
	}

	return &models.CandidateSignal{
		Direction:  models.DirectionLong,
		Strategy:   r.Name(),
		Entry:      entry,
		StopLoss:   sl,
		TakeProfit: tp,
		Confidence: clamp01(confidence),
		Rationale: fmt.Sprintf("Fib %.1f%% retest at %.2f, breakout %.2f, SL %.2f, TP %.2f",
			cfg.Level*100, entry, breakoutLevel, sl, tp),
		CandleTime: last.Time,
	}, nil
}
