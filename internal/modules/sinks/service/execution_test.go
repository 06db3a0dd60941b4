package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"signal_bot/internal/models"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

var goldInstrument = models.Instrument{InstID: "XAU-USDT-SWAP", TickSz: 0.1, LotSz: 0.01, MinSz: 0.01, CtVal: 1}

func TestBuildPlanSizesByRisk(t *testing.T) {
	sig := testSignal("a", models.DirectionLong)
	sig.StopLoss = 1980.04
	sig.TakeProfit = 2050.01

	plan, err := buildPlan(sig, goldInstrument, 10000, 1)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	// SL и TP уходят дальше от входа
	if !near(plan.SL, 1980.0) || !near(plan.TP, 2050.1) {
		t.Fatalf("levels = %v / %v", plan.SL, plan.TP)
	}
	// 100 USDT риска / 20 пунктов = 5 контрактов
	if !near(plan.Size, 5) || plan.Side != "buy" {
		t.Fatalf("size = %v side = %s", plan.Size, plan.Side)
	}
	if !near(plan.pnl(plan.SL), -100) {
		t.Fatalf("loss at SL = %v, want -100", plan.pnl(plan.SL))
	}
}

func TestBuildPlanShortAndMinSize(t *testing.T) {
	sig := testSignal("s", models.DirectionShort)
	inst := goldInstrument
	inst.MinSz = 10

	plan, err := buildPlan(sig, inst, 10000, 1)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Side != "sell" || plan.Size != 10 {
		t.Fatalf("plan = %+v", plan)
	}
	if plan.pnl(1950) <= 0 {
		t.Fatalf("short must profit below entry")
	}
}

func TestSizeByRiskErrors(t *testing.T) {
	if _, _, err := sizeByRisk(10, 0, 1, goldInstrument); err == nil {
		t.Fatalf("zero equity must fail")
	}
	if _, _, err := sizeByRisk(10, 1000, 0, goldInstrument); err == nil {
		t.Fatalf("zero risk must fail")
	}
}

type stubPrices struct {
	px  float64
	err error
}

func (p *stubPrices) Ticker(context.Context, string) (float64, error) { return p.px, p.err }

type stubMeta struct {
	calls int
	err   error
}

func (m *stubMeta) Instrument(context.Context, string) (models.Instrument, error) {
	m.calls++
	return goldInstrument, m.err
}

type stubRecorder struct{ ids []string }

func (r *stubRecorder) MarkExecuted(_ context.Context, id string, _ float64, _ time.Time) error {
	r.ids = append(r.ids, id)
	return nil
}

func TestExecutionSinkLimits(t *testing.T) {
	prices := &stubPrices{px: 2000}
	meta := &stubMeta{}
	rec := &stubRecorder{}
	s := NewExecutionSink(ExecutionConfig{
		InstID:           "XAU-USDT-SWAP",
		RiskPct:          1,
		Equity:           10000,
		MaxOpenPositions: 2,
		MaxDailyLossPct:  1.5,
	}, meta, prices, rec)
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.Receive(ctx, testSignal(id, models.DirectionLong)); err != nil {
			t.Fatalf("receive %s: %v", id, err)
		}
	}
	if n := len(s.Open()); n != 2 {
		t.Fatalf("open = %d, want capped at 2", n)
	}
	if meta.calls != 1 {
		t.Fatalf("instrument fetched %d times, want 1", meta.calls)
	}
	if len(rec.ids) != 2 {
		t.Fatalf("recorded = %v", rec.ids)
	}

	// цена ушла под SL: обе позиции закрываются, дневной убыток 200 > 150
	prices.px = 1975
	if err := s.Receive(ctx, testSignal("d", models.DirectionLong)); err != nil {
		t.Fatalf("receive d: %v", err)
	}
	if !near(s.DailyPnL(), -200) {
		t.Fatalf("daily pnl = %v", s.DailyPnL())
	}
	if n := len(s.Open()); n != 0 {
		t.Fatalf("open after loss limit = %d, want 0", n)
	}

	// новый день снимает ограничение
	now = now.Add(24 * time.Hour)
	prices.px = 2000
	if err := s.Receive(ctx, testSignal("e", models.DirectionLong)); err != nil {
		t.Fatalf("receive e: %v", err)
	}
	if n := len(s.Open()); n != 1 {
		t.Fatalf("open on new day = %d", n)
	}
}

func TestExecutionSinkStaticFallback(t *testing.T) {
	s := NewExecutionSink(ExecutionConfig{
		InstID:     "XAU-USDT-SWAP",
		RiskPct:    1,
		Equity:     10000,
		Instrument: goldInstrument,
	}, &stubMeta{err: errors.New("403")}, &stubPrices{err: errors.New("down")}, nil)

	if err := s.Receive(context.Background(), testSignal("a", models.DirectionLong)); err != nil {
		t.Fatalf("receive: %v", err)
	}
	open := s.Open()
	if len(open) != 1 || open[0].InstID != "XAU-USDT-SWAP" {
		t.Fatalf("open = %+v", open)
	}
}
