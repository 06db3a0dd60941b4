package service

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// WorkerStatus: снимок состояния одного воркера таймфрейма.
type WorkerStatus struct {
	Timeframe   string    `json:"timeframe"`
	State       string    `json:"state"`
	LastCandle  time.Time `json:"last_candle"`
	LastPrice   float64   `json:"last_price"`
	Failures    int       `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
	Evaluations int64     `json:"evaluations"`
	Signals     int64     `json:"signals"`
	Rejections  int64     `json:"rejections"`
}

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	wsConnected  atomic.Bool
	lastTickUnix atomic.Int64 // unix seconds

	forwarded  atomic.Int64
	suppressed atomic.Int64

	mu      sync.RWMutex
	workers map[string]WorkerStatus
}

func NewState() *State {
	s := &State{
		startedAt: time.Now(),
		workers:   make(map[string]WorkerStatus),
	}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

func (s *State) TouchTick(t time.Time) { s.lastTickUnix.Store(t.Unix()) }
func (s *State) LastTick() time.Time {
	u := s.lastTickUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }

func (s *State) SetDedupCounters(forwarded, suppressed int64) {
	s.forwarded.Store(forwarded)
	s.suppressed.Store(suppressed)
}

func (s *State) DedupCounters() (forwarded, suppressed int64) {
	return s.forwarded.Load(), s.suppressed.Load()
}

func (s *State) SetWorker(st WorkerStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[st.Timeframe] = st
}

// Workers: воркеры в порядке таймфреймов по имени.
func (s *State) Workers() []WorkerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]WorkerStatus, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timeframe < out[j].Timeframe })
	return out
}

// Degraded: есть воркер, который сейчас переподключается.
func (s *State) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.workers {
		if w.Failures > 0 {
			return true
		}
	}
	return false
}
