package backtest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"signal_bot/internal/models"
)

// unix-время больше этого: миллисекунды
const msThreshold = 1e11

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// LoadCSVFile: см. LoadCSV.
func LoadCSVFile(path, symbol, timeframe string) ([]models.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open candles csv")
	}
	defer func() { _ = f.Close() }()
	return LoadCSV(f, symbol, timeframe)
}

// LoadCSV читает строки timestamp,open,high,low,close[,volume]. Заголовок
// необязателен. Время: RFC3339 или unix в секундах/миллисекундах.
func LoadCSV(r io.Reader, symbol, timeframe string) ([]models.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var out []models.Candle
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "csv line %d", line)
		}
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		if len(rec) < 5 {
			return nil, errors.Errorf("csv line %d: want at least 5 columns, got %d", line, len(rec))
		}

		ts, err := parseTimestamp(rec[0])
		if err != nil {
			return nil, errors.Wrapf(err, "csv line %d", line)
		}
		var vals [5]float64
		for i := 1; i < len(rec) && i <= 5; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "csv line %d column %d", line, i+1)
			}
			vals[i-1] = v
		}

		out = append(out, models.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			Time:      ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	if len(out) == 0 {
		return nil, errors.New("csv contains no candles")
	}
	return out, nil
}

func isHeader(rec []string) bool {
	if len(rec) < 2 {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
	return err != nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > msThreshold {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognised timestamp %q", raw)
}
