package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v5/market/candles", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("bar") != "1H" {
			t.Errorf("bar = %q", r.URL.Query().Get("bar"))
		}
		// newest-first, первая строка ещё не закрыта
		_, _ = w.Write([]byte(`{"code":"0","msg":"","data":[
			["1709557200000","2003","2008","2001","2006","10","0","0","0"],
			["1709553600000","2000","2005","1998","2003","12","0","0","1"],
			["1709550000000","1995","2002","1990","2000","15","0","0","1"]
		]}`))
	})
	mux.HandleFunc("/api/v5/market/ticker", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"0","msg":"","data":[{"instId":"XAU-USDT-SWAP","last":"2004.5","ts":"1709557300000"}]}`))
	})
	mux.HandleFunc("/api/v5/public/instruments", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("instId") == "BAD-USDT-SWAP" {
			_, _ = w.Write([]byte(`{"code":"51001","msg":"Instrument ID does not exist","data":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":"0","msg":"","data":[{"instId":"XAU-USDT-SWAP","tickSz":"0.01","lotSz":"0.01","minSz":"0.01","ctVal":"0.001","ctMult":"1","state":"live"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testClient(srv *httptest.Server) *Client {
	return NewClient(ClientConfig{RestURL: srv.URL + "/", RateLimit: 100, Burst: 10, Timeout: 2 * time.Second})
}

func TestGetCandlesSkipsUnconfirmedAndReverses(t *testing.T) {
	c := testClient(newTestServer(t))

	candles, err := c.GetCandles(context.Background(), "XAU-USDT-SWAP", "1h", 3)
	if err != nil {
		t.Fatalf("get candles: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("candles = %d, want 2 closed", len(candles))
	}
	if !candles[0].Time.Before(candles[1].Time) {
		t.Fatalf("candles must be chronological")
	}
	if candles[1].Close != 2003 || candles[1].Timeframe != "1h" {
		t.Fatalf("unexpected last candle: %+v", candles[1])
	}
}

func TestTickerAndInstrument(t *testing.T) {
	c := testClient(newTestServer(t))

	px, err := c.Ticker(context.Background(), "XAU-USDT-SWAP")
	if err != nil || px != 2004.5 {
		t.Fatalf("ticker = %v, %v", px, err)
	}

	inst, err := c.Instrument(context.Background(), "XAU-USDT-SWAP")
	if err != nil {
		t.Fatalf("instrument: %v", err)
	}
	if inst.TickSz != 0.01 || inst.CtVal != 0.001 {
		t.Fatalf("unexpected instrument: %+v", inst)
	}

	if _, err := c.Instrument(context.Background(), "BAD-USDT-SWAP"); err == nil {
		t.Fatalf("expected okx error")
	}
}

func TestOKXSourceWindow(t *testing.T) {
	c := testClient(newTestServer(t))
	src, err := NewOKXSource(c, nil, "XAUUSD", "XAU-USDT-SWAP", "1h")
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	if _, err := src.LatestWindow(context.Background(), 1); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := src.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	w, err := src.LatestWindow(context.Background(), 1)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(w) != 1 || w[0].Symbol != "XAUUSD" || w[0].Close != 2003 {
		t.Fatalf("unexpected window: %+v", w)
	}
	if !src.IsNewCandle(w[0].Time) || src.IsNewCandle(w[0].Time) {
		t.Fatalf("candle must be new exactly once")
	}

	px, err := src.CurrentPrice(context.Background())
	if err != nil || px != 2004.5 {
		t.Fatalf("price = %v, %v", px, err)
	}
}

func TestOKXBar(t *testing.T) {
	cases := map[string]string{"5m": "5m", "1h": "1H", "4H": "4H", "1d": "1D"}
	for in, want := range cases {
		got, err := OKXBar(in)
		if err != nil || got != want {
			t.Errorf("OKXBar(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := OKXBar("7m"); err == nil {
		t.Errorf("expected error for 7m")
	}
}

func TestTickerFrame(t *testing.T) {
	s := NewTickerStream("ws://unused", "XAU-USDT-SWAP")
	var ticks int
	s.OnTick = func(time.Time) { ticks++ }

	s.handleFrame([]byte("pong"))
	s.handleFrame([]byte(`{"event":"subscribe","arg":{"channel":"tickers","instId":"XAU-USDT-SWAP"}}`))
	if _, ok := s.Last(time.Minute); ok {
		t.Fatalf("no price expected yet")
	}

	now := time.Now().UnixMilli()
	frame := `{"arg":{"channel":"tickers","instId":"XAU-USDT-SWAP"},"data":[{"instId":"XAU-USDT-SWAP","last":"2010.25","ts":"` +
		strconv.FormatInt(now, 10) + `"}]}`
	s.handleFrame([]byte(frame))

	px, ok := s.Last(time.Minute)
	if !ok || px != 2010.25 || ticks != 1 {
		t.Fatalf("last = %v ok=%v ticks=%d", px, ok, ticks)
	}
}

func TestReconnectDelay(t *testing.T) {
	steps := []struct {
		subscribed bool
		want       time.Duration
	}{
		{false, time.Second},
		{false, 2 * time.Second},
		{false, 4 * time.Second},
		{false, 8 * time.Second},
		{false, 16 * time.Second},
		{false, 30 * time.Second},
		{false, 30 * time.Second},
		// живая сессия сбрасывает паузу
		{true, time.Second},
		{false, 2 * time.Second},
	}
	var d time.Duration
	for i, st := range steps {
		d = reconnectDelay(d, st.subscribed)
		if d != st.want {
			t.Fatalf("step %d: delay = %s, want %s", i, d, st.want)
		}
	}
}

func TestSessionReportsSubscription(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		frame := `{"arg":{"channel":"tickers","instId":"XAU-USDT-SWAP"},"data":[{"instId":"XAU-USDT-SWAP","last":"2011.5","ts":"` +
			strconv.FormatInt(time.Now().UnixMilli(), 10) + `"}]}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))
	}))
	defer srv.Close()

	s := NewTickerStream("ws"+strings.TrimPrefix(srv.URL, "http"), "XAU-USDT-SWAP")
	subscribed, err := s.session(context.Background())
	if !subscribed || err == nil {
		t.Fatalf("session = %v, %v; want subscribed with a read error after close", subscribed, err)
	}
	if px, ok := s.Last(time.Minute); !ok || px != 2011.5 {
		t.Fatalf("last = %v ok=%v", px, ok)
	}

	srv.Close()
	subscribed, err = s.session(context.Background())
	if subscribed || err == nil {
		t.Fatalf("dial to a closed server must fail unsubscribed, got %v %v", subscribed, err)
	}
}
