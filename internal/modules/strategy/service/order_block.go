package service

import (
	"fmt"
	"math"

	"signal_bot/internal/models"
)

// OrderBlockRetest: последняя противоположная свеча перед импульсной свечой
// (тело >= ImpulseATR*ATR): блок. Текущая свеча возвращается в блок и закрывается
// за его пределами по направлению импульса. Блок не должен быть пробит закрытием.
type OrderBlockRetest struct {
	p Params
}

func NewOrderBlockRetest(p Params) *OrderBlockRetest { return &OrderBlockRetest{p: p} }

func (r *OrderBlockRetest) Name() string { return RuleOrderBlockRetest }

func (r *OrderBlockRetest) MinCandles() int {
	return r.p.OrderBlock.Lookback + r.p.ATRPeriod + 2
}

func (r *OrderBlockRetest) Evaluate(w []models.Candle) (*models.CandidateSignal, error) {
	if len(w) < r.MinCandles() {
		return nil, nil
	}
	cfg := r.p.OrderBlock
	n := len(w)
	atr := lastATR(w[:n-1], r.p.ATRPeriod)
	if atr <= 0 {
		return nil, nil
	}

	// самый свежий импульс, исключая текущую и предыдущую свечи
	start := n - 1 - cfg.Lookback
	if start < 1 {
		start = 1
	}
	for i := n - 3; i >= start; i-- {
		imp, ob := w[i], w[i-1]
		if imp.Body() < cfg.ImpulseATR*atr {
			continue
		}

		var dir models.Direction
		switch {
		case imp.Bullish() && ob.Bearish() && imp.Close > ob.High:
			dir = models.DirectionLong
		case imp.Bearish() && ob.Bullish() && imp.Close < ob.Low:
			dir = models.DirectionShort
		default:
			continue
		}

		if mitigated(w[i+1:n-1], ob, dir) {
			return nil, nil
		}
		return r.retest(w, ob, imp, dir, atr)
	}
	return nil, nil
}

// mitigated: после импульса было закрытие за дальней границей блока.
func mitigated(after []models.Candle, ob models.Candle, dir models.Direction) bool {
	for _, c := range after {
		if dir == models.DirectionLong && c.Close < ob.Low {
			return true
		}
		if dir == models.DirectionShort && c.Close > ob.High {
			return true
		}
	}
	return false
}

func (r *OrderBlockRetest) retest(w []models.Candle, ob, imp models.Candle, dir models.Direction, atr float64) (*models.CandidateSignal, error) {
	cfg := r.p.OrderBlock
	last := w[len(w)-1]
	tol := ob.Close * cfg.TolerancePct / 100
	entry := last.Close

	var sl, tp float64
	if dir == models.DirectionLong {
		touched := last.Low <= ob.High+tol && last.Low >= ob.Low-tol
		if !touched || last.Close <= ob.High {
			return nil, nil
		}
		sl = ob.Low - cfg.ATRBuffer*atr
		tp = math.Max(entry+(entry-sl)*r.p.TakeProfitRR, imp.High)
	} else {
		touched := last.High >= ob.Low-tol && last.High <= ob.High+tol
		if !touched || last.Close >= ob.Low {
			return nil, nil
		}
		sl = ob.High + cfg.ATRBuffer*atr
		tp = math.Min(entry-(sl-entry)*r.p.TakeProfitRR, imp.Low)
	}

	confidence := 0.55
	trend := trendBySwings(w, r.p.TrendLookback)
	if (dir == models.DirectionLong && trend == TrendUp) || (dir == models.DirectionShort && trend == TrendDown) {
		confidence += 0.2
	}
	if (dir == models.DirectionLong && last.Bullish()) || (dir == models.DirectionShort && last.Bearish()) {
		confidence += 0.15
	}
	if rsi := lastRSI(w, r.p.RSIPeriod); rsi > 30 && rsi < 70 {
		confidence += 0.1
	}

	return &models.CandidateSignal{
		Direction:  dir,
		Strategy:   r.Name(),
		Entry:      entry,
		StopLoss:   sl,
		TakeProfit: tp,
		Confidence: clamp01(confidence),
		Rationale: fmt.Sprintf("order block %.2f-%.2f from %s retested",
			ob.Low, ob.High, ob.Time.UTC().Format("2006-01-02 15:04")),
		CandleTime: last.Time,
	}, nil
}
