package models

import "time"

type ExitReason string

const (
	ExitStopLoss   ExitReason = "closed_sl"
	ExitTakeProfit ExitReason = "closed_tp"
	ExitEndOfData  ExitReason = "closed_end_of_data"
)

// Position: открытая симулированная позиция бэктеста.
type Position struct {
	Strategy   string
	Direction  Direction
	Size       float64
	Entry      float64
	SL         float64
	TP         float64
	Commission float64
	PlannedRR  float64
	OpenedAt   time.Time
}

// Unrealized: плавающий P&L по цене px.
func (p Position) Unrealized(px float64) float64 {
	if p.Direction == DirectionShort {
		return (p.Entry - px) * p.Size
	}
	return (px - p.Entry) * p.Size
}

// TradeRecord: закрытая сделка бэктеста, неизменяемая после создания.
type TradeRecord struct {
	Strategy   string     `json:"strategy"`
	Direction  Direction  `json:"direction"`
	Size       float64    `json:"size"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`
	PnL        float64    `json:"pnl"`
	PnLPct     float64    `json:"pnl_pct"`
	PlannedRR  float64    `json:"planned_rr"`
	Exit       ExitReason `json:"exit_reason"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   time.Time  `json:"closed_at"`
}

func (t TradeRecord) Win() bool { return t.PnL > 0 }
