package service

import (
	"errors"
	"math"
	"testing"
	"time"

	"signal_bot/internal/models"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func candle(i int, step time.Duration, o, h, l, c float64) models.Candle {
	return models.Candle{
		Symbol:    "XAUUSD",
		Timeframe: "15m",
		Time:      t0.Add(time.Duration(i) * step),
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    100,
	}
}

func flat(n int) []models.Candle {
	out := make([]models.Candle, 0, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			out = append(out, candle(i, 15*time.Minute, 100, 101, 99.5, 100.5))
		} else {
			out = append(out, candle(i, 15*time.Minute, 100.5, 101, 99.5, 100))
		}
	}
	return out
}

type stubRule struct {
	name string
	min  int
	fn   func([]models.Candle) (*models.CandidateSignal, error)
}

func (s stubRule) Name() string    { return s.name }
func (s stubRule) MinCandles() int { return s.min }
func (s stubRule) Evaluate(w []models.Candle) (*models.CandidateSignal, error) {
	return s.fn(w)
}

func TestEngineIsolatesFailingRules(t *testing.T) {
	good := stubRule{name: "good", fn: func(w []models.Candle) (*models.CandidateSignal, error) {
		return &models.CandidateSignal{Direction: models.DirectionLong, Entry: 1, StopLoss: 0.5, TakeProfit: 2}, nil
	}}
	panics := stubRule{name: "panics", fn: func(w []models.Candle) (*models.CandidateSignal, error) {
		var arr []int
		_ = arr[3]
		return nil, nil
	}}
	fails := stubRule{name: "fails", fn: func(w []models.Candle) (*models.CandidateSignal, error) {
		return nil, errors.New("boom")
	}}

	e := NewEngine([]Rule{panics, fails, good})
	w := flat(3)
	got := e.Evaluate(w)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Strategy != "good" {
		t.Fatalf("strategy must default to rule name, got %q", got[0].Strategy)
	}
	if !got[0].CandleTime.Equal(w[2].Time) {
		t.Fatalf("candle time must default to last candle, got %v", got[0].CandleTime)
	}
}

func TestEngineSkipAndMinCandles(t *testing.T) {
	calls := map[string]int{}
	mk := func(name string, min int) stubRule {
		return stubRule{name: name, min: min, fn: func(w []models.Candle) (*models.CandidateSignal, error) {
			calls[name]++
			return nil, nil
		}}
	}
	e := NewEngine([]Rule{mk("a", 0), mk("b", 0), mk("long", 10)})

	e.EvaluateWhere(flat(5), func(rule string) bool { return rule == "b" })

	if calls["a"] != 1 || calls["b"] != 0 || calls["long"] != 0 {
		t.Fatalf("unexpected calls: %v", calls)
	}
}

func TestBuildRules(t *testing.T) {
	p := DefaultParams()
	rules, err := BuildRules(p)
	if err != nil {
		t.Fatalf("default params: %v", err)
	}
	if len(rules) != len(KnownRules()) {
		t.Fatalf("expected %d rules, got %d", len(KnownRules()), len(rules))
	}
	for i, r := range rules {
		if r.Name() != p.Enabled[i] {
			t.Fatalf("order not preserved: %d %s != %s", i, r.Name(), p.Enabled[i])
		}
	}

	p.Enabled = []string{"fib_retest", "nope"}
	if _, err := BuildRules(p); err == nil {
		t.Fatalf("expected error for unknown rule")
	}

	p.Enabled = []string{"fib_retest", "FIB_RETEST"}
	if _, err := BuildRules(p); err == nil {
		t.Fatalf("expected error for duplicate rule")
	}

	p.Enabled = nil
	if _, err := BuildRules(p); err == nil {
		t.Fatalf("expected error for empty list")
	}
}

func TestRulesTolerateShortAndFlatWindows(t *testing.T) {
	rules, err := BuildRules(DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range rules {
		if sig, err := r.Evaluate(flat(5)); sig != nil || err != nil {
			t.Errorf("%s: short window must give nothing, got %v %v", r.Name(), sig, err)
		}
		if sig, err := r.Evaluate(flat(200)); sig != nil || err != nil {
			t.Errorf("%s: flat market must give nothing, got %v %v", r.Name(), sig, err)
		}
	}
}

func TestSwingPointsAndTrend(t *testing.T) {
	// пила с растущими вершинами и основаниями
	var w []models.Candle
	price := 100.0
	for i := 0; i < 60; i++ {
		phase := i % 8
		if phase < 4 {
			price += 2
		} else {
			price -= 1
		}
		w = append(w, candle(i, time.Hour, price-0.5, price+0.5, price-1, price))
	}

	sw := swingPoints(w, 3, 1)
	hs, ls := splitSwings(sw)
	if len(hs) < 2 || len(ls) < 2 {
		t.Fatalf("expected swings, got highs=%d lows=%d", len(hs), len(ls))
	}
	for i := 1; i < len(sw); i++ {
		if sw[i].Index < sw[i-1].Index {
			t.Fatalf("swings must be sorted by index")
		}
	}

	if got := trendBySwings(w, 50); got != TrendUp {
		t.Fatalf("expected up trend, got %s", got)
	}

	// зеркально: даунтренд
	var down []models.Candle
	for i, c := range w {
		m := 400.0
		down = append(down, candle(i, time.Hour, m-c.Open, m-c.Low, m-c.High, m-c.Close))
	}
	if got := trendBySwings(down, 50); got != TrendDown {
		t.Fatalf("expected down trend, got %s", got)
	}

	if got := trendBySwings(flat(60), 50); got != TrendNone {
		t.Fatalf("expected sideways, got %s", got)
	}
}

func TestRetracementLevels(t *testing.T) {
	if got := retracement(1921.4, 1900, 2000); got != 0.786 {
		t.Fatalf("up leg: got %v", got)
	}
	// нога вниз 2000→1900, откат до 1950 = 50%
	if got := retracement(1950, 2000, 1900); got != 0.5 {
		t.Fatalf("down leg: got %v", got)
	}
	if !nearLevel(1923, 1900, 2000, 0.786, 0.02) {
		t.Fatalf("1923 is within tolerance of 0.786")
	}
	if nearLevel(1950, 1900, 2000, 0.786, 0.02) {
		t.Fatalf("1950 is not near 0.786")
	}
	if got := levelPrice(1900, 2000, 0.618); math.Abs(got-1938.2) > 1e-9 {
		t.Fatalf("levelPrice: got %v", got)
	}
	if retracement(10, 5, 5) != 0 {
		t.Fatalf("zero range must give 0")
	}
}

func TestRetestFound(t *testing.T) {
	w := flat(20)
	if !retestFound(w, 101, 0.3, 10) {
		t.Fatalf("highs at 101 must count as retest")
	}
	if retestFound(w, 110, 0.3, 10) {
		t.Fatalf("110 is never touched")
	}
}

func londonSession(lastHour, lastMin int) []models.Candle {
	var w []models.Candle
	// азиатская сессия 00:00-06:45, 15m бары внутри 100-102
	for i := 0; i < 28; i++ {
		if i%2 == 0 {
			w = append(w, candle(i, 15*time.Minute, 100.5, 102, 100, 101.5))
		} else {
			w = append(w, candle(i, 15*time.Minute, 101.5, 102, 100, 100.5))
		}
	}
	last := models.Candle{
		Symbol: "XAUUSD", Timeframe: "15m",
		Time: time.Date(2024, 3, 1, lastHour, lastMin, 0, 0, time.UTC),
		Open: 101.5, High: 103.1, Low: 101.4, Close: 103, Volume: 150,
	}
	return append(w, last)
}

func TestLondonBreakout(t *testing.T) {
	r := NewLondonBreakout(DefaultParams())

	sig, err := r.Evaluate(londonSession(7, 0))
	if err != nil {
		t.Fatal(err)
	}
	if sig == nil {
		t.Fatalf("expected breakout signal")
	}
	if sig.Direction != models.DirectionLong {
		t.Fatalf("expected LONG, got %s", sig.Direction)
	}
	if sig.Entry != 103 || sig.StopLoss != 100 {
		t.Fatalf("unexpected levels: entry=%v sl=%v", sig.Entry, sig.StopLoss)
	}
	if math.Abs(sig.TakeProfit-109) > 1e-9 {
		t.Fatalf("tp must be entry + 2R, got %v", sig.TakeProfit)
	}
	if sig.Confidence <= 0 || sig.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", sig.Confidence)
	}

	// вне лондонской сессии: ничего
	if sig, _ := r.Evaluate(londonSession(12, 0)); sig != nil {
		t.Fatalf("no signal expected outside London hours")
	}

	// второй пробой за сессию игнорируется
	w := londonSession(7, 15)
	first := w[len(w)-1]
	first.Time = time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)
	w = append(w[:len(w)-1], first, w[len(w)-1])
	if sig, _ := r.Evaluate(w); sig != nil {
		t.Fatalf("only the first breakout of the session must trigger")
	}
}

func TestOrderBlockRetest(t *testing.T) {
	step := 15 * time.Minute
	w := flat(44)
	i := len(w)
	w = append(w,
		candle(i, step, 100.5, 100.7, 99.6, 99.8),     // блок: медвежья свеча
		candle(i+1, step, 99.9, 103.2, 99.8, 103),     // импульс
		candle(i+2, step, 103, 103.3, 101.8, 102),     // откат
		candle(i+3, step, 100.9, 101.5, 100.6, 101.2), // ретест блока
	)

	r := NewOrderBlockRetest(DefaultParams())
	sig, err := r.Evaluate(w)
	if err != nil {
		t.Fatal(err)
	}
	if sig == nil {
		t.Fatalf("expected order block signal")
	}
	if sig.Direction != models.DirectionLong {
		t.Fatalf("expected LONG, got %s", sig.Direction)
	}
	if sig.StopLoss >= 99.6 {
		t.Fatalf("sl must sit below the block, got %v", sig.StopLoss)
	}
	if rr := sig.RiskReward(); rr < 2-1e-9 {
		t.Fatalf("rr must be at least 2, got %v", rr)
	}

	// закрытие ниже блока после импульса: блок отработан
	w[len(w)-2].Close = 99.0
	w[len(w)-2].Low = 98.9
	if sig, _ := r.Evaluate(w); sig != nil {
		t.Fatalf("mitigated block must not trigger")
	}
}
