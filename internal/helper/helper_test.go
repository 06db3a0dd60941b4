package helper

import (
	"math"
	"testing"
	"time"
)

func TestTimeframeDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"5m":       5 * time.Minute,
		"15m":      15 * time.Minute,
		"30m":      30 * time.Minute,
		"1H":       time.Hour,
		"candle4h": 4 * time.Hour,
		"1d":       24 * time.Hour,
	}
	for tf, want := range cases {
		got, err := TimeframeDuration(tf)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tf, err)
		}
		if got != want {
			t.Errorf("%s: got %v want %v", tf, got, want)
		}
	}

	if _, err := TimeframeDuration("7m"); err == nil {
		t.Fatalf("expected error for unsupported timeframe")
	}
}

func TestNextBoundary(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 7, 30, 0, time.UTC)

	got := NextBoundary(now, 5*time.Minute)
	want := time.Date(2024, 3, 1, 10, 10, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("5m: got %v want %v", got, want)
	}

	got = NextBoundary(now, 4*time.Hour)
	want = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("4h: got %v want %v", got, want)
	}

	// ровно на границе: следующая граница
	onEdge := time.Date(2024, 3, 1, 10, 10, 0, 0, time.UTC)
	got = NextBoundary(onEdge, 5*time.Minute)
	want = time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("edge: got %v want %v", got, want)
	}
}

func TestLastClosedOpen(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 7, 30, 0, time.UTC)
	got := LastClosedOpen(now, 5*time.Minute)
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestRoundToTick(t *testing.T) {
	if got := RoundDownToTick(1999.987, 0.01); math.Abs(got-1999.98) > 1e-9 {
		t.Errorf("down: got %v", got)
	}
	if got := RoundUpToTick(1999.981, 0.01); math.Abs(got-1999.99) > 1e-9 {
		t.Errorf("up: got %v", got)
	}
	if got := RoundDownToTick(12.5, 0); got != 12.5 {
		t.Errorf("zero tick must be identity, got %v", got)
	}
}
