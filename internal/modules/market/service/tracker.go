package service

import (
	"errors"
	"sync"
	"time"
)

var ErrNotConnected = errors.New("candle source is not connected")

// candleTracker помнит время последней обработанной закрытой свечи.
type candleTracker struct {
	mu   sync.Mutex
	last time.Time
}

// IsNewCandle: true, если ts строго новее последней виденной свечи; запоминает ts.
func (t *candleTracker) IsNewCandle(ts time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last.IsZero() || ts.After(t.last) {
		t.last = ts
		return true
	}
	return false
}
