package models

import "time"

type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// CandidateSignal: сырой сигнал одного правила, ещё не прошедший проверки.
type CandidateSignal struct {
	Direction  Direction `json:"direction"`
	Strategy   string    `json:"strategy"`
	Entry      float64   `json:"entry"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Confidence float64   `json:"confidence"`
	Rationale  string    `json:"rationale"`
	CandleTime time.Time `json:"candle_time"`
}

// RiskDistance: расстояние entry→SL по цене (со знаком направления).
func (c CandidateSignal) RiskDistance() float64 {
	if c.Direction == DirectionShort {
		return c.StopLoss - c.Entry
	}
	return c.Entry - c.StopLoss
}

// RewardDistance: расстояние entry→TP по цене (со знаком направления).
func (c CandidateSignal) RewardDistance() float64 {
	if c.Direction == DirectionShort {
		return c.Entry - c.TakeProfit
	}
	return c.TakeProfit - c.Entry
}

// RiskReward возвращает 0, если риск неположительный.
func (c CandidateSignal) RiskReward() float64 {
	risk := c.RiskDistance()
	if risk <= 0 {
		return 0
	}
	return c.RewardDistance() / risk
}

// ValidatedSignal: сигнал, прошедший валидатор. Единица доставки в синки.
type ValidatedSignal struct {
	CandidateSignal

	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Timeframe   string    `json:"timeframe"`
	RiskPips    float64   `json:"risk_pips"`
	RewardPips  float64   `json:"reward_pips"`
	RR          float64   `json:"risk_reward_ratio"`
	ValidatedAt time.Time `json:"validated_at"`
}

type SignalStatus string

const (
	SignalPending      SignalStatus = "pending"
	SignalActive       SignalStatus = "active"
	SignalClosedTP     SignalStatus = "closed_tp"
	SignalClosedSL     SignalStatus = "closed_sl"
	SignalClosedManual SignalStatus = "closed_manual"
	SignalCancelled    SignalStatus = "cancelled"
)
