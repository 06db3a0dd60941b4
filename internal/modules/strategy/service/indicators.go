package service

import (
	"github.com/markcheno/go-talib"

	"signal_bot/internal/models"
)

// talib паникует на коротких рядах, поэтому длину проверяем сами.

func closes(w []models.Candle) []float64 {
	out := make([]float64, len(w))
	for i, c := range w {
		out[i] = c.Close
	}
	return out
}

func highs(w []models.Candle) []float64 {
	out := make([]float64, len(w))
	for i, c := range w {
		out[i] = c.High
	}
	return out
}

func lows(w []models.Candle) []float64 {
	out := make([]float64, len(w))
	for i, c := range w {
		out[i] = c.Low
	}
	return out
}

// lastATR: последний ATR(period), 0 если истории мало.
func lastATR(w []models.Candle, period int) float64 {
	if period < 1 || len(w) <= period {
		return 0
	}
	out := talib.Atr(highs(w), lows(w), closes(w), period)
	return out[len(out)-1]
}

// lastRSI: последний RSI(period), нейтральные 50 если истории мало.
func lastRSI(w []models.Candle, period int) float64 {
	if period < 2 || len(w) <= period {
		return 50
	}
	out := talib.Rsi(closes(w), period)
	return out[len(out)-1]
}

// lastEMA: последняя EMA(period) по close, 0 если истории мало.
func lastEMA(w []models.Candle, period int) float64 {
	if period < 2 || len(w) < period {
		return 0
	}
	out := talib.Ema(closes(w), period)
	return out[len(out)-1]
}
