package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"signal_bot/internal/helper"
	"signal_bot/internal/models"
)

// цена из WS считается свежей не дольше этого
const tickerMaxAge = 30 * time.Second

// OKXSource отдаёт свечи одного таймфрейма: окна по REST, цена по WS с откатом на REST.
type OKXSource struct {
	client    *Client
	ticker    *TickerStream
	symbol    string
	instID    string
	timeframe string

	connected atomic.Bool
	candleTracker
}

func NewOKXSource(client *Client, ticker *TickerStream, symbol, instID, timeframe string) (*OKXSource, error) {
	if _, err := OKXBar(timeframe); err != nil {
		return nil, err
	}
	return &OKXSource{
		client:    client,
		ticker:    ticker,
		symbol:    symbol,
		instID:    instID,
		timeframe: helper.NormTF(timeframe),
	}, nil
}

// Connect проверяет доступность REST запросом тикера.
func (s *OKXSource) Connect(ctx context.Context) error {
	if _, err := s.client.Ticker(ctx, s.instID); err != nil {
		return fmt.Errorf("connect %s %s: %w", s.instID, s.timeframe, err)
	}
	s.connected.Store(true)
	return nil
}

func (s *OKXSource) Disconnect(context.Context) error {
	s.connected.Store(false)
	return nil
}

// LatestWindow: n последних закрытых свечей по возрастанию времени.
func (s *OKXSource) LatestWindow(ctx context.Context, n int) ([]models.Candle, error) {
	if !s.connected.Load() {
		return nil, ErrNotConnected
	}
	// +1 на незакрытую свечу, которую отфильтрует клиент
	candles, err := s.client.GetCandles(ctx, s.instID, s.timeframe, n+1)
	if err != nil {
		return nil, err
	}
	for i := range candles {
		candles[i].Symbol = s.symbol
	}
	if len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	return candles, nil
}

func (s *OKXSource) CurrentPrice(ctx context.Context) (float64, error) {
	if !s.connected.Load() {
		return 0, ErrNotConnected
	}
	if s.ticker != nil {
		if px, ok := s.ticker.Last(tickerMaxAge); ok {
			return px, nil
		}
	}
	return s.client.Ticker(ctx, s.instID)
}
