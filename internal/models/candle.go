package models

import "time"

// Candle: закрытый OHLCV бар, Time это время открытия.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Time      time.Time `json:"time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Bullish: свеча закрылась выше открытия.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Bearish: свеча закрылась ниже открытия.
func (c Candle) Bearish() bool { return c.Close < c.Open }

// Range: размах high-low.
func (c Candle) Range() float64 { return c.High - c.Low }

// Body: модуль тела свечи.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}
