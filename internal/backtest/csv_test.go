package backtest

import (
	"strings"
	"testing"
	"time"
)

func TestLoadCSVFormats(t *testing.T) {
	in := strings.Join([]string{
		"timestamp,open,high,low,close,volume",
		"2024-01-02T00:00:00Z,2000,2010,1990,2005,12.5",
		"1704157200,2005,2015,2000,2010,3",
		"1704160800000,2010,2020,2005,2015,4",
		"# комментарий",
		"2024-01-02 03:00:00,2015,2025,2010,2020",
	}, "\n")

	candles, err := LoadCSV(strings.NewReader(in), "XAUUSD", "1h")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(candles) != 4 {
		t.Fatalf("candles = %d, want 4", len(candles))
	}
	for i, c := range candles {
		want := time.Date(2024, 1, 2, i, 0, 0, 0, time.UTC)
		if !c.Time.Equal(want) {
			t.Fatalf("candle %d time %v, want %v", i, c.Time, want)
		}
		if c.Symbol != "XAUUSD" || c.Timeframe != "1h" {
			t.Fatalf("candle %d identity %+v", i, c)
		}
	}
	if candles[0].Volume != 12.5 || candles[3].Volume != 0 || candles[2].Close != 2015 {
		t.Fatalf("values = %+v", candles)
	}
	if err := ValidateSeries(candles); err != nil {
		t.Fatalf("loaded series invalid: %v", err)
	}
}

func TestLoadCSVErrors(t *testing.T) {
	cases := map[string]string{
		"bad timestamp": "yesterday,1,2,0.5,1.5\n",
		"bad price":     "1704153600,1,two,0.5,1.5\n",
		"short row":     "1704153600,1,2\n",
		"empty":         "timestamp,open,high,low,close\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadCSV(strings.NewReader(in), "XAUUSD", "1h"); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
