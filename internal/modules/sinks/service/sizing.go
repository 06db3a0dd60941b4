package service

import (
	"fmt"
	"math"

	"signal_bot/internal/helper"
	"signal_bot/internal/models"
)

// OrderPlan: что ушло бы на биржу по сигналу.
type OrderPlan struct {
	SignalID  string           `json:"signal_id"`
	InstID    string           `json:"inst_id"`
	Side      string           `json:"side"`
	Direction models.Direction `json:"direction"`
	Entry     float64          `json:"entry"`
	SL        float64          `json:"sl"`
	TP        float64          `json:"tp"`
	Size      float64          `json:"size"`
	RiskDist  float64          `json:"risk_dist"`
	RiskUSDT  float64          `json:"risk_usdt"`
	CtVal     float64          `json:"ct_val"`
}

// buildPlan округляет уровни к шагу цены и считает размер в контрактах.
func buildPlan(sig models.ValidatedSignal, inst models.Instrument, equity, riskPct float64) (OrderPlan, error) {
	if sig.Entry <= 0 || sig.StopLoss <= 0 {
		return OrderPlan{}, fmt.Errorf("entry/sl <= 0")
	}

	side := "buy"
	var sl, tp float64
	// SL и TP округляем дальше от входа
	if sig.Direction == models.DirectionShort {
		side = "sell"
		sl = helper.RoundUpToTick(sig.StopLoss, inst.TickSz)
		tp = helper.RoundDownToTick(sig.TakeProfit, inst.TickSz)
	} else {
		sl = helper.RoundDownToTick(sig.StopLoss, inst.TickSz)
		tp = helper.RoundUpToTick(sig.TakeProfit, inst.TickSz)
	}

	riskDist := math.Abs(sig.Entry - sl)
	if riskDist <= 0 {
		return OrderPlan{}, fmt.Errorf("riskDist <= 0 after rounding")
	}

	size, riskUSDT, err := sizeByRisk(riskDist, equity, riskPct, inst)
	if err != nil {
		return OrderPlan{}, err
	}

	return OrderPlan{
		SignalID:  sig.ID,
		InstID:    inst.InstID,
		Side:      side,
		Direction: sig.Direction,
		Entry:     sig.Entry,
		SL:        sl,
		TP:        tp,
		Size:      size,
		RiskDist:  riskDist,
		RiskUSDT:  riskUSDT,
		CtVal:     inst.CtVal,
	}, nil
}

// sizeByRisk: PnL(USDT) ≈ stopDist * ctVal * sz  =>  sz = riskUSDT / (stopDist * ctVal)
func sizeByRisk(stopDist, equity, riskPct float64, inst models.Instrument) (size, riskUSDT float64, err error) {
	if equity <= 0 {
		return 0, 0, fmt.Errorf("equity <= 0")
	}
	riskFraction := riskPct / 100.0
	if riskFraction <= 0 {
		return 0, 0, fmt.Errorf("riskFraction <= 0")
	}
	riskUSDT = equity * riskFraction

	ctVal := inst.CtVal
	if ctVal <= 0 {
		ctVal = 1.0
	}
	sz := riskUSDT / (stopDist * ctVal)
	if sz <= 0 || math.IsNaN(sz) || math.IsInf(sz, 0) {
		return 0, 0, fmt.Errorf("szRisk invalid: %.8f", sz)
	}

	lotSz, minSz := inst.LotSz, inst.MinSz
	if lotSz <= 0 {
		lotSz = 1
	}
	if minSz <= 0 {
		minSz = lotSz
	}

	// вниз до шага lotSz
	sz = math.Floor(sz/lotSz+1e-9) * lotSz
	if sz < minSz {
		// риск чуть превысит целевой, но иначе ордер не примут
		sz = minSz
	}
	return sz, riskUSDT, nil
}

// pnl плана при выходе по цене px.
func (p OrderPlan) pnl(px float64) float64 {
	ct := p.CtVal
	if ct <= 0 {
		ct = 1
	}
	if p.Direction == models.DirectionShort {
		return (p.Entry - px) * p.Size * ct
	}
	return (px - p.Entry) * p.Size * ct
}
