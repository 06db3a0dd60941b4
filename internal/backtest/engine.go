package backtest

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"signal_bot/internal/models"
)

// Evaluator: общий с живым контуром движок правил.
type Evaluator interface {
	EvaluateWhere(window []models.Candle, skip func(rule string) bool) []models.CandidateSignal
}

type Params struct {
	InitialBalance float64 `json:"initial_balance"`
	// доля equity под риск на сделку, 0.01 = 1%
	RiskFraction  float64 `json:"risk_fraction"`
	MinRiskReward float64 `json:"min_risk_reward"`
	WindowSize    int     `json:"window_size"`
	// общий лимит открытых позиций, 0 = без лимита (по правилу всегда одна)
	MaxOpenTrades int `json:"max_open_trades"`
	// фиксированная комиссия за сторону сделки
	Commission float64 `json:"commission"`
	// ухудшение цены входа в единицах цены
	Slippage float64 `json:"slippage"`
}

func DefaultParams() Params {
	return Params{
		InitialBalance: 10000,
		RiskFraction:   0.02,
		MinRiskReward:  1.5,
		WindowSize:     200,
	}
}

func (p Params) validate() error {
	switch {
	case p.InitialBalance <= 0:
		return errors.Errorf("initial balance must be positive, got %v", p.InitialBalance)
	case p.RiskFraction <= 0 || p.RiskFraction > 1:
		return errors.Errorf("risk fraction must be in (0, 1], got %v", p.RiskFraction)
	case p.WindowSize < 1:
		return errors.Errorf("window size must be at least 1, got %d", p.WindowSize)
	case p.MaxOpenTrades < 0:
		return errors.Errorf("max open trades must not be negative, got %d", p.MaxOpenTrades)
	case p.Commission < 0 || p.Slippage < 0:
		return errors.Errorf("commission and slippage must not be negative")
	}
	return nil
}

type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

type Result struct {
	Start          time.Time            `json:"start"`
	End            time.Time            `json:"end"`
	Candles        int                  `json:"candles"`
	Params         Params               `json:"params"`
	InitialBalance float64              `json:"initial_balance"`
	FinalBalance   float64              `json:"final_balance"`
	Stats          Stats                `json:"stats"`
	PerRule        []RuleStats          `json:"per_rule"`
	Trades         []models.TradeRecord `json:"trades"`
	EquityCurve    []EquityPoint        `json:"equity_curve"`
}

// simulator: состояние одного прогона. Позиции хранятся срезом в порядке
// открытия, чтобы порядок закрытия не зависел от map.
type simulator struct {
	p       Params
	balance float64
	open    []models.Position
	trades  []models.TradeRecord
	curve   []EquityPoint
}

// Run прогоняет историю через движок правил. Детерминирован: ни часов,
// ни обхода map в решениях.
func Run(ctx context.Context, candles []models.Candle, engine Evaluator, p Params) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, errors.Wrap(err, "backtest params")
	}
	if err := ValidateSeries(candles); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s := &simulator{
		p:       p,
		balance: p.InitialBalance,
		curve:   make([]EquityPoint, 0, len(candles)),
	}

	for i, c := range candles {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "backtest interrupted at candle %d", i)
		}

		s.closeHits(c)
		equity := s.markToMarket(c.Close)
		s.curve = append(s.curve, EquityPoint{Time: c.Time, Equity: equity})

		if s.full() {
			continue
		}
		from := i + 1 - p.WindowSize
		if from < 0 {
			from = 0
		}
		candidates := engine.EvaluateWhere(candles[from:i+1], s.hasOpen)
		for _, cand := range candidates {
			if s.full() {
				break
			}
			s.tryOpen(cand, c, equity)
		}
	}

	last := candles[len(candles)-1]
	for _, pos := range s.open {
		s.record(pos, last.Close, last.Time, models.ExitEndOfData)
	}
	s.open = nil

	res := &Result{
		Start:          candles[0].Time,
		End:            last.Time,
		Candles:        len(candles),
		Params:         p,
		InitialBalance: p.InitialBalance,
		FinalBalance:   s.balance,
		Trades:         s.trades,
		EquityCurve:    s.curve,
	}
	res.Stats = computeStats(s.trades, p.InitialBalance, equityValues(s.curve))
	res.PerRule = perRuleStats(s.trades, p.InitialBalance)
	return res, nil
}

func (s *simulator) full() bool {
	return s.p.MaxOpenTrades > 0 && len(s.open) >= s.p.MaxOpenTrades
}

func (s *simulator) hasOpen(rule string) bool {
	for _, pos := range s.open {
		if pos.Strategy == rule {
			return true
		}
	}
	return false
}

// closeHits закрывает позиции, задетые свечой. SL проверяется первым:
// если свеча задела оба уровня, считаем худший исход.
func (s *simulator) closeHits(c models.Candle) {
	kept := s.open[:0]
	for _, pos := range s.open {
		var (
			exit   float64
			reason models.ExitReason
		)
		if pos.Direction == models.DirectionLong {
			if c.Low <= pos.SL {
				exit, reason = pos.SL, models.ExitStopLoss
			} else if c.High >= pos.TP {
				exit, reason = pos.TP, models.ExitTakeProfit
			}
		} else {
			if c.High >= pos.SL {
				exit, reason = pos.SL, models.ExitStopLoss
			} else if c.Low <= pos.TP {
				exit, reason = pos.TP, models.ExitTakeProfit
			}
		}

		if reason == "" {
			kept = append(kept, pos)
			continue
		}
		s.record(pos, exit, c.Time, reason)
	}
	s.open = kept
}

func (s *simulator) markToMarket(px float64) float64 {
	equity := s.balance
	for _, pos := range s.open {
		equity += pos.Unrealized(px)
	}
	return equity
}

func (s *simulator) tryOpen(c models.CandidateSignal, candle models.Candle, equity float64) {
	if !sane(c) || c.RiskReward() < s.p.MinRiskReward-1e-9 {
		return
	}

	fill := c.Entry + s.p.Slippage
	if c.Direction == models.DirectionShort {
		fill = c.Entry - s.p.Slippage
	}
	stop := math.Abs(fill - c.StopLoss)
	// проскальзывание могло утащить вход за стоп
	if stop <= 0 || (c.Direction == models.DirectionLong && fill <= c.StopLoss) ||
		(c.Direction == models.DirectionShort && fill >= c.StopLoss) {
		return
	}

	size := equity * s.p.RiskFraction / stop
	if size <= 0 || math.IsInf(size, 0) || math.IsNaN(size) {
		return
	}

	s.balance -= s.p.Commission
	s.open = append(s.open, models.Position{
		Strategy:   c.Strategy,
		Direction:  c.Direction,
		Size:       size,
		Entry:      fill,
		SL:         c.StopLoss,
		TP:         c.TakeProfit,
		Commission: s.p.Commission,
		PlannedRR:  c.RiskReward(),
		OpenedAt:   candle.Time,
	})
}

func (s *simulator) record(pos models.Position, exit float64, at time.Time, reason models.ExitReason) {
	gross := pos.Unrealized(exit)
	s.balance += gross - s.p.Commission
	pnl := gross - pos.Commission - s.p.Commission

	s.trades = append(s.trades, models.TradeRecord{
		Strategy:   pos.Strategy,
		Direction:  pos.Direction,
		Size:       pos.Size,
		EntryPrice: pos.Entry,
		ExitPrice:  exit,
		StopLoss:   pos.SL,
		TakeProfit: pos.TP,
		PnL:        pnl,
		PnLPct:     pnl / s.p.InitialBalance * 100,
		PlannedRR:  pos.PlannedRR,
		Exit:       reason,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   at,
	})
}

// sane: уровни стоят по правильные стороны от входа.
func sane(c models.CandidateSignal) bool {
	if !c.Direction.Valid() || c.Entry <= 0 || c.StopLoss <= 0 || c.TakeProfit <= 0 {
		return false
	}
	return c.RiskDistance() > 0 && c.RewardDistance() > 0
}

// ValidateSeries отбраковывает битую историю целиком: время строго растёт,
// цены положительные, high/low охватывают open/close.
func ValidateSeries(candles []models.Candle) error {
	if len(candles) == 0 {
		return errors.New("empty candle series")
	}
	for i, c := range candles {
		if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
			return errors.Errorf("candle %d (%s): non-positive price o=%v h=%v l=%v c=%v",
				i, c.Time.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close)
		}
		if c.High < c.Low || c.High < math.Max(c.Open, c.Close) || c.Low > math.Min(c.Open, c.Close) {
			return errors.Errorf("candle %d (%s): inconsistent range o=%v h=%v l=%v c=%v",
				i, c.Time.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close)
		}
		if i > 0 && !c.Time.After(candles[i-1].Time) {
			return errors.Errorf("candle %d: timestamp %s is not after %s",
				i, c.Time.Format(time.RFC3339), candles[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}

func equityValues(curve []EquityPoint) []float64 {
	out := make([]float64, len(curve))
	for i, p := range curve {
		out[i] = p.Equity
	}
	return out
}
