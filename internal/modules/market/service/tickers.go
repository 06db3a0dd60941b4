package service

import (
	"context"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"signal_bot/pkg/logger"
)

// keepalive ping каждые 20s, иначе OKX рвёт соединение
const pingInterval = 20 * time.Second

// TickerStream держит последнюю цену инструмента из канала tickers.
type TickerStream struct {
	url    string
	instID string
	dialer *websocket.Dialer

	lastBits  atomic.Uint64
	lastAt    atomic.Int64 // unix ms
	connected atomic.Bool

	// OnConnect/OnTick: необязательные хуки для health
	OnConnect func(connected bool)
	OnTick    func(at time.Time)
}

func NewTickerStream(wsURL, instID string) *TickerStream {
	return &TickerStream{
		url:    wsURL,
		instID: instID,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Last: цена, если она не старше maxAge.
func (s *TickerStream) Last(maxAge time.Duration) (float64, bool) {
	at := s.lastAt.Load()
	if at == 0 || time.Since(time.UnixMilli(at)) > maxAge {
		return 0, false
	}
	return math.Float64frombits(s.lastBits.Load()), true
}

func (s *TickerStream) Connected() bool { return s.connected.Load() }

// Run переподключается до отмены ctx.
func (s *TickerStream) Run(ctx context.Context) {
	var delay time.Duration
	for {
		subscribed, err := s.session(ctx)
		s.setConnected(false)
		if ctx.Err() != nil {
			return
		}
		delay = reconnectDelay(delay, subscribed)
		logger.Warn("[WS] tickers %s: %v, reconnect in %s", s.instID, err, delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
)

// reconnectDelay: после живой сессии снова с базовой паузы, иначе удвоение до потолка.
func reconnectDelay(prev time.Duration, subscribed bool) time.Duration {
	if subscribed || prev <= 0 {
		return reconnectBase
	}
	next := prev * 2
	if next > reconnectMax {
		next = reconnectMax
	}
	return next
}

// session возвращает true, если подписка успела установиться.
func (s *TickerStream) session(ctx context.Context) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	sub := map[string]any{
		"op":   "subscribe",
		"args": []map[string]string{{"channel": "tickers", "instId": s.instID}},
	}
	payload, err := sonic.Marshal(sub)
	if err != nil {
		return false, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return false, err
	}
	s.setConnected(true)
	logger.Info("[WS] tickers %s subscribed", s.instID)

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				// разблокирует ReadMessage
				_ = conn.Close()
				return
			case <-done:
				return
			case <-t.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				_ = conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		s.handleFrame(msg)
	}
}

type tickerFrame struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []okxTicker `json:"data"`
}

func (s *TickerStream) handleFrame(msg []byte) {
	if string(msg) == "pong" {
		return
	}
	var frame tickerFrame
	if err := sonic.Unmarshal(msg, &frame); err != nil {
		return
	}
	if frame.Arg.Channel != "tickers" || len(frame.Data) == 0 {
		return
	}
	for _, d := range frame.Data {
		px, err := strconv.ParseFloat(d.Last, 64)
		if err != nil || px <= 0 {
			continue
		}
		at := time.Now()
		if ms, err := strconv.ParseInt(d.Ts, 10, 64); err == nil && ms > 0 {
			at = time.UnixMilli(ms)
		}
		s.store(px, at)
	}
}

func (s *TickerStream) store(px float64, at time.Time) {
	s.lastBits.Store(math.Float64bits(px))
	s.lastAt.Store(at.UnixMilli())
	if s.OnTick != nil {
		s.OnTick(at)
	}
}

func (s *TickerStream) setConnected(v bool) {
	if s.connected.Swap(v) != v && s.OnConnect != nil {
		s.OnConnect(v)
	}
}
