package backtest

import (
	"context"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"signal_bot/internal/models"
	strategy "signal_bot/internal/modules/strategy/service"
)

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func bar(i int, o, h, l, c float64) models.Candle {
	return models.Candle{
		Symbol:    "XAUUSD",
		Timeframe: "1h",
		Time:      t0.Add(time.Duration(i) * time.Hour),
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    1,
	}
}

func flatSeries(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = bar(i, 100, 101, 99, 100)
	}
	return out
}

// onceRule даёт сигнал ровно на свече at.
type onceRule struct {
	name string
	at   time.Time
	sig  models.CandidateSignal
}

func (r onceRule) Name() string    { return r.name }
func (r onceRule) MinCandles() int { return 1 }
func (r onceRule) Evaluate(w []models.Candle) (*models.CandidateSignal, error) {
	if !w[len(w)-1].Time.Equal(r.at) {
		return nil, nil
	}
	sig := r.sig
	return &sig, nil
}

// alwaysRule входит лонгом от close на каждой свече.
type alwaysRule struct {
	name       string
	stop, take float64
}

func (r alwaysRule) Name() string    { return r.name }
func (r alwaysRule) MinCandles() int { return 3 }
func (r alwaysRule) Evaluate(w []models.Candle) (*models.CandidateSignal, error) {
	c := w[len(w)-1].Close
	return &models.CandidateSignal{
		Direction:  models.DirectionLong,
		Entry:      c,
		StopLoss:   c - r.stop,
		TakeProfit: c + r.take,
	}, nil
}

func long(entry, sl, tp float64) models.CandidateSignal {
	return models.CandidateSignal{Direction: models.DirectionLong, Entry: entry, StopLoss: sl, TakeProfit: tp}
}

func engineOf(rules ...strategy.Rule) *strategy.Engine {
	return strategy.NewEngine(rules)
}

func testParams() Params {
	p := DefaultParams()
	p.RiskFraction = 0.01
	p.WindowSize = 50
	return p
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestTakeProfitHit(t *testing.T) {
	candles := flatSeries(10)
	candles[7] = bar(7, 100, 105, 99.5, 104.5)
	eng := engineOf(onceRule{name: "r", at: candles[5].Time, sig: long(100, 98, 104)})

	res, err := Run(context.Background(), candles, eng, testParams())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	// 10000 * 1% / 2 = 50 единиц, 4 * 50 = 200
	if tr.Exit != models.ExitTakeProfit || !approx(tr.Size, 50) || !approx(tr.PnL, 200) {
		t.Fatalf("trade = %+v", tr)
	}
	if !tr.OpenedAt.Equal(candles[5].Time) || !tr.ClosedAt.Equal(candles[7].Time) {
		t.Fatalf("trade times %v → %v", tr.OpenedAt, tr.ClosedAt)
	}
	if !approx(res.FinalBalance, 10200) {
		t.Fatalf("final balance = %v", res.FinalBalance)
	}
	if res.Stats.ProfitFactor != 0 || res.Stats.WinRate != 100 {
		t.Fatalf("stats = %+v", res.Stats)
	}
	if len(res.EquityCurve) != len(candles) {
		t.Fatalf("equity points = %d", len(res.EquityCurve))
	}
}

func TestStopLossWinsTie(t *testing.T) {
	candles := flatSeries(10)
	// свеча задевает и SL, и TP
	candles[6] = bar(6, 100, 106, 97, 100)
	eng := engineOf(onceRule{name: "r", at: candles[5].Time, sig: long(100, 98, 104)})

	res, err := Run(context.Background(), candles, eng, testParams())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	tr := res.Trades[0]
	if tr.Exit != models.ExitStopLoss || tr.ExitPrice != 98 || !approx(tr.PnL, -100) {
		t.Fatalf("trade = %+v", tr)
	}
}

func TestShortPosition(t *testing.T) {
	candles := flatSeries(10)
	candles[8] = bar(8, 100, 100.5, 95, 95.5)
	sig := models.CandidateSignal{Direction: models.DirectionShort, Entry: 100, StopLoss: 102, TakeProfit: 96}
	eng := engineOf(onceRule{name: "r", at: candles[5].Time, sig: sig})

	res, err := Run(context.Background(), candles, eng, testParams())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	tr := res.Trades[0]
	if tr.Exit != models.ExitTakeProfit || !approx(tr.PnL, 200) {
		t.Fatalf("trade = %+v", tr)
	}
}

func TestCommissionAndSlippage(t *testing.T) {
	candles := flatSeries(10)
	candles[7] = bar(7, 100, 105, 99.5, 104.5)
	eng := engineOf(onceRule{name: "r", at: candles[5].Time, sig: long(100, 98, 104)})

	p := testParams()
	p.Commission = 1
	p.Slippage = 0.5
	res, err := Run(context.Background(), candles, eng, p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	tr := res.Trades[0]
	// вход 100.5, стоп 2.5 → 40 единиц; выход ровно по TP
	if tr.EntryPrice != 100.5 || tr.ExitPrice != 104 || !approx(tr.Size, 40) {
		t.Fatalf("trade = %+v", tr)
	}
	if !approx(tr.PnL, 3.5*40-2) {
		t.Fatalf("pnl = %v, want 138", tr.PnL)
	}
	if !approx(res.FinalBalance, 10138) {
		t.Fatalf("final balance = %v", res.FinalBalance)
	}
	// на свече входа equity уже без комиссии за открытие
	if !approx(res.EquityCurve[6].Equity, 10000-1+(100-100.5)*40) {
		t.Fatalf("equity after open = %v", res.EquityCurve[6].Equity)
	}
}

func TestEndOfDataClose(t *testing.T) {
	candles := flatSeries(10)
	candles[9] = bar(9, 100, 101, 99, 101)
	eng := engineOf(onceRule{name: "r", at: candles[5].Time, sig: long(100, 98, 104)})

	res, err := Run(context.Background(), candles, eng, testParams())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	tr := res.Trades[0]
	if tr.Exit != models.ExitEndOfData || tr.ExitPrice != 101 || !approx(tr.PnL, 50) {
		t.Fatalf("trade = %+v", tr)
	}
	if !tr.ClosedAt.Equal(candles[9].Time) {
		t.Fatalf("closed at %v", tr.ClosedAt)
	}
}

func TestCandidatesBelowMinRRAreSkipped(t *testing.T) {
	candles := flatSeries(10)
	eng := engineOf(
		onceRule{name: "low_rr", at: candles[3].Time, sig: long(100, 98, 102)},
		onceRule{name: "inverted", at: candles[4].Time, sig: long(100, 102, 104)},
	)
	res, err := Run(context.Background(), candles, eng, testParams())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Fatalf("trades = %+v", res.Trades)
	}
	if res.FinalBalance != 10000 {
		t.Fatalf("final balance = %v", res.FinalBalance)
	}
}

// oscillating повторяет паттерн с периодом 3: свеча с большим хвостом вниз, нейтральная,
// свеча с большим хвостом вверх.
func oscillating(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		switch i % 3 {
		case 0:
			out[i] = bar(i, 100, 105, 99.5, 100)
		case 1:
			out[i] = bar(i, 100, 100.5, 97, 100)
		default:
			out[i] = bar(i, 100, 100.5, 99.5, 100)
		}
	}
	return out
}

func TestReconciliation(t *testing.T) {
	candles := oscillating(120)
	eng := engineOf(alwaysRule{name: "osc", stop: 2, take: 4})
	p := testParams()
	p.Commission = 0.5

	res, err := Run(context.Background(), candles, eng, p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	st := res.Stats
	if st.TotalTrades == 0 || st.WinningTrades == 0 || st.LosingTrades == 0 {
		t.Fatalf("expected a mix of trades: %+v", st)
	}
	if st.WinningTrades+st.LosingTrades != st.TotalTrades {
		t.Fatalf("wins %d + losses %d != total %d", st.WinningTrades, st.LosingTrades, st.TotalTrades)
	}
	if !approx(st.ProfitFactor, st.GrossProfit/st.GrossLoss) {
		t.Fatalf("profit factor %v != %v/%v", st.ProfitFactor, st.GrossProfit, st.GrossLoss)
	}

	var sum float64
	for _, tr := range res.Trades {
		sum += tr.PnL
	}
	if !approx(res.FinalBalance, p.InitialBalance+sum) {
		t.Fatalf("final %v != initial + Σpnl %v", res.FinalBalance, p.InitialBalance+sum)
	}
	if !approx(st.NetProfit, sum) || !approx(st.TotalReturn, sum/p.InitialBalance) {
		t.Fatalf("net %v return %v, Σpnl %v", st.NetProfit, st.TotalReturn, sum)
	}
}

func TestDeterminism(t *testing.T) {
	candles := oscillating(300)
	for i := range candles {
		// медленный тренд, чтобы реальные правила видели свинги
		shift := float64(i%40) * 0.8
		candles[i].Open += shift
		candles[i].High += shift
		candles[i].Low += shift
		candles[i].Close += shift
	}

	params := strategy.DefaultParams()
	params.Enabled = strategy.KnownRules()
	rules, err := strategy.BuildRules(params)
	if err != nil {
		t.Fatalf("build rules: %v", err)
	}
	rules = append(rules, alwaysRule{name: "osc", stop: 2, take: 4})

	p := testParams()
	p.MaxOpenTrades = 3
	first, err := Run(context.Background(), candles, engineOf(rules...), p)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := Run(context.Background(), candles, engineOf(rules...), p)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("runs differ")
	}
}

func TestMaxOpenTradesAndPerRule(t *testing.T) {
	candles := oscillating(60)
	eng := engineOf(
		alwaysRule{name: "a", stop: 2, take: 4},
		alwaysRule{name: "b", stop: 2, take: 4},
	)

	p := testParams()
	p.MaxOpenTrades = 1
	res, err := Run(context.Background(), candles, eng, p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, tr := range res.Trades {
		if tr.Strategy != "a" {
			t.Fatalf("rule b traded with max_open=1: %+v", tr)
		}
	}

	p.MaxOpenTrades = 2
	res, err = Run(context.Background(), candles, eng, p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.PerRule) != 2 || res.PerRule[0].Rule != "a" || res.PerRule[1].Rule != "b" {
		t.Fatalf("per rule = %+v", res.PerRule)
	}
	total := 0
	for _, rs := range res.PerRule {
		total += rs.TotalTrades
	}
	if total != res.Stats.TotalTrades {
		t.Fatalf("per-rule trades %d != total %d", total, res.Stats.TotalTrades)
	}
}

func TestDefaultsLetEveryRuleHoldAPosition(t *testing.T) {
	candles := oscillating(60)
	eng := engineOf(
		alwaysRule{name: "a", stop: 2, take: 4},
		alwaysRule{name: "b", stop: 2, take: 4},
	)

	res, err := Run(context.Background(), candles, eng, testParams())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	opened := map[string][]time.Time{}
	for _, tr := range res.Trades {
		opened[tr.Strategy] = append(opened[tr.Strategy], tr.OpenedAt)
	}
	if len(opened["a"]) == 0 || len(opened["b"]) == 0 {
		t.Fatalf("both rules must trade, got a=%d b=%d", len(opened["a"]), len(opened["b"]))
	}
	// оба правила входят на первой же свече с достаточной историей
	if !opened["a"][0].Equal(candles[2].Time) || !opened["b"][0].Equal(candles[2].Time) {
		t.Fatalf("first entries a=%v b=%v, want both at %v", opened["a"][0], opened["b"][0], candles[2].Time)
	}

	p := testParams()
	p.MaxOpenTrades = -1
	if _, err := Run(context.Background(), candles, eng, p); err == nil {
		t.Fatalf("negative max open trades must fail")
	}
}

func TestMalformedSeries(t *testing.T) {
	eng := engineOf(alwaysRule{name: "a", stop: 2, take: 4})

	cases := map[string]struct {
		mutate func([]models.Candle)
		want   string
	}{
		"non monotonic": {func(c []models.Candle) { c[4].Time = c[3].Time }, "candle 4: timestamp"},
		"zero close":    {func(c []models.Candle) { c[2].Close = 0 }, "candle 2"},
		"negative low":  {func(c []models.Candle) { c[5].Low = -1 }, "non-positive"},
		"high below low": {func(c []models.Candle) {
			c[1].High, c[1].Low = 98, 99
		}, "inconsistent range"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			candles := flatSeries(10)
			tc.mutate(candles)
			_, err := Run(context.Background(), candles, eng, testParams())
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}

	if _, err := Run(context.Background(), nil, eng, testParams()); err == nil {
		t.Fatalf("expected error on empty series")
	}
	bad := testParams()
	bad.RiskFraction = 0
	if _, err := Run(context.Background(), flatSeries(5), eng, bad); err == nil {
		t.Fatalf("expected params error")
	}
}

func TestRunHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, flatSeries(5), engineOf(), testParams()); err == nil {
		t.Fatalf("expected cancellation error")
	}
}
