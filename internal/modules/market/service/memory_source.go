package service

import (
	"context"
	"errors"
	"sync"

	"signal_bot/internal/models"
)

// MemorySource: источник на срезе свечей для тестов и реплея.
type MemorySource struct {
	mu        sync.Mutex
	candles   []models.Candle
	price     float64
	connected bool

	connectFailures int
	windowFailures  int
	failErr         error

	connects    int
	disconnects int

	candleTracker
}

func NewMemorySource(candles []models.Candle) *MemorySource {
	cp := make([]models.Candle, len(candles))
	copy(cp, candles)
	return &MemorySource{candles: cp}
}

// Append добавляет закрытую свечу.
func (m *MemorySource) Append(c models.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles = append(m.candles, c)
}

// SetPrice задаёт текущую цену; 0: брать close последней свечи.
func (m *MemorySource) SetPrice(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.price = p
}

// FailConnect заставляет следующие n вызовов Connect вернуть err.
func (m *MemorySource) FailConnect(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectFailures, m.failErr = n, err
}

// FailWindow заставляет следующие n вызовов LatestWindow вернуть err.
func (m *MemorySource) FailWindow(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windowFailures, m.failErr = n, err
}

func (m *MemorySource) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if m.connectFailures > 0 {
		m.connectFailures--
		return m.err()
	}
	m.connected = true
	return nil
}

func (m *MemorySource) Disconnect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	m.connected = false
	return nil
}

func (m *MemorySource) LatestWindow(_ context.Context, n int) ([]models.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, ErrNotConnected
	}
	if m.windowFailures > 0 {
		m.windowFailures--
		return nil, m.err()
	}
	start := 0
	if n > 0 && len(m.candles) > n {
		start = len(m.candles) - n
	}
	out := make([]models.Candle, len(m.candles)-start)
	copy(out, m.candles[start:])
	return out, nil
}

func (m *MemorySource) CurrentPrice(context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return 0, ErrNotConnected
	}
	if m.price > 0 {
		return m.price, nil
	}
	if len(m.candles) == 0 {
		return 0, errors.New("no candles")
	}
	return m.candles[len(m.candles)-1].Close, nil
}

// Calls: сколько раз вызывали Connect/Disconnect.
func (m *MemorySource) Calls() (connects, disconnects int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects, m.disconnects
}

func (m *MemorySource) err() error {
	if m.failErr != nil {
		return m.failErr
	}
	return errors.New("memory source failure")
}
