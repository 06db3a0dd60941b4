package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"signal_bot/internal/models"
	"signal_bot/pkg/logger"
)

type InstrumentSource interface {
	Instrument(ctx context.Context, instID string) (models.Instrument, error)
}

type PriceSource interface {
	Ticker(ctx context.Context, instID string) (float64, error)
}

// ExecutionRecorder отмечает сигнал исполненным (pending → active).
type ExecutionRecorder interface {
	MarkExecuted(ctx context.Context, id string, price float64, at time.Time) error
}

type ExecutionConfig struct {
	InstID           string
	RiskPct          float64
	Equity           float64
	MaxOpenPositions int
	MaxDailyLossPct  float64
	// статические шаги, если биржа недоступна или fetch выключен
	Instrument models.Instrument
}

// ExecutionSink исполняет в dry-run: строит план ордера, ведёт виртуальные
// позиции и дневной убыток, на биржу ничего не отправляет.
type ExecutionSink struct {
	cfg      ExecutionConfig
	meta     InstrumentSource
	prices   PriceSource
	recorder ExecutionRecorder
	now      func() time.Time
	log      *zap.Logger

	mu       sync.Mutex
	inst     *models.Instrument
	open     []OrderPlan
	day      time.Time
	dailyPnL float64
	realized float64
}

func NewExecutionSink(cfg ExecutionConfig, meta InstrumentSource, prices PriceSource, recorder ExecutionRecorder) *ExecutionSink {
	if cfg.Instrument.InstID == "" {
		cfg.Instrument.InstID = cfg.InstID
	}
	return &ExecutionSink{
		cfg:      cfg,
		meta:     meta,
		prices:   prices,
		recorder: recorder,
		now:      time.Now,
		log:      logger.With(zap.String("sink", "execution")),
	}
}

func (s *ExecutionSink) Name() string { return "execution" }

func (s *ExecutionSink) Receive(ctx context.Context, sig models.ValidatedSignal) error {
	inst := s.instrument(ctx)

	var (
		px    float64
		hasPx bool
	)
	if s.prices != nil {
		if p, err := s.prices.Ticker(ctx, s.cfg.InstID); err == nil {
			px, hasPx = p, true
		} else {
			s.log.Warn("price for settle unavailable", zap.Error(err))
		}
	}

	now := s.now()

	s.mu.Lock()
	s.rollDay(now)
	if hasPx {
		s.settle(px)
	}

	if s.cfg.MaxOpenPositions > 0 && len(s.open) >= s.cfg.MaxOpenPositions {
		s.mu.Unlock()
		s.log.Warn("plan skipped: max open positions",
			zap.String("signal_id", sig.ID), zap.Int("open", s.cfg.MaxOpenPositions))
		return nil
	}
	equity := s.cfg.Equity + s.realized
	if limit := s.cfg.Equity * s.cfg.MaxDailyLossPct / 100; limit > 0 && -s.dailyPnL >= limit {
		s.mu.Unlock()
		s.log.Warn("plan skipped: daily loss limit",
			zap.String("signal_id", sig.ID), zap.Float64("daily_pnl", s.dailyPnL))
		return nil
	}

	plan, err := buildPlan(sig, inst, equity, s.cfg.RiskPct)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.open = append(s.open, plan)
	s.mu.Unlock()

	s.log.Info("dry-run order",
		zap.String("signal_id", plan.SignalID),
		zap.String("inst_id", plan.InstID),
		zap.String("side", plan.Side),
		zap.Float64("entry", plan.Entry),
		zap.Float64("sl", plan.SL),
		zap.Float64("tp", plan.TP),
		zap.Float64("size", plan.Size),
		zap.Float64("risk_usdt", plan.RiskUSDT),
	)

	if s.recorder != nil {
		if err := s.recorder.MarkExecuted(ctx, sig.ID, plan.Entry, now); err != nil {
			s.log.Warn("mark executed failed", zap.String("signal_id", sig.ID), zap.Error(err))
		}
	}
	return nil
}

// Open: копия открытых виртуальных позиций.
func (s *ExecutionSink) Open() []OrderPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OrderPlan, len(s.open))
	copy(out, s.open)
	return out
}

func (s *ExecutionSink) DailyPnL() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dailyPnL
}

// settle закрывает позиции, чьи SL/TP пересекла цена px.
func (s *ExecutionSink) settle(px float64) {
	kept := s.open[:0]
	for _, p := range s.open {
		exit, closed := 0.0, false
		if p.Direction == models.DirectionShort {
			switch {
			case px >= p.SL:
				exit, closed = p.SL, true
			case px <= p.TP:
				exit, closed = p.TP, true
			}
		} else {
			switch {
			case px <= p.SL:
				exit, closed = p.SL, true
			case px >= p.TP:
				exit, closed = p.TP, true
			}
		}
		if !closed {
			kept = append(kept, p)
			continue
		}
		pnl := p.pnl(exit)
		s.dailyPnL += pnl
		s.realized += pnl
		s.log.Info("dry-run close",
			zap.String("signal_id", p.SignalID), zap.Float64("exit", exit), zap.Float64("pnl", pnl))
	}
	s.open = kept
}

func (s *ExecutionSink) rollDay(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(s.day) {
		s.day = day
		s.dailyPnL = 0
	}
}

// instrument берёт шаги с биржи один раз, при ошибке: статические из конфига.
func (s *ExecutionSink) instrument(ctx context.Context) models.Instrument {
	s.mu.Lock()
	if s.inst != nil {
		inst := *s.inst
		s.mu.Unlock()
		return inst
	}
	s.mu.Unlock()

	if s.meta == nil {
		return s.cfg.Instrument
	}
	inst, err := s.meta.Instrument(ctx, s.cfg.InstID)
	if err != nil {
		s.log.Warn("instrument meta unavailable, using static", zap.Error(err))
		return s.cfg.Instrument
	}

	s.mu.Lock()
	s.inst = &inst
	s.mu.Unlock()
	return inst
}
