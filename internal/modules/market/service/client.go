package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/time/rate"

	"signal_bot/internal/helper"
	"signal_bot/internal/models"
)

// OKX отдаёт не больше 300 свечей за запрос.
const maxCandlesPerRequest = 300

type ClientConfig struct {
	RestURL   string
	RateLimit float64 // запросов в секунду
	Burst     int
	Timeout   time.Duration
}

// Client: публичный REST OKX. Все запросы проходят через общий лимитер.
type Client struct {
	http    *http.Client
	restURL string
	limiter *rate.Limiter
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		restURL: strings.TrimRight(cfg.RestURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
	}
}

type envelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

func getData[T any](ctx context.Context, c *Client, path string, q url.Values) ([]T, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.restURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(b))
	}

	var r envelope[T]
	if err := sonic.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if r.Code != "0" {
		return nil, fmt.Errorf("okx error: code=%s msg=%s", r.Code, r.Msg)
	}
	return r.Data, nil
}

// GetCandles: только закрытые свечи, от старых к новым.
// Строка OKX: [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]
func (c *Client) GetCandles(ctx context.Context, instID, timeframe string, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxCandlesPerRequest {
		limit = maxCandlesPerRequest
	}
	bar, err := OKXBar(timeframe)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("instId", instID)
	q.Set("bar", bar)
	q.Set("limit", strconv.Itoa(limit))

	rows, err := getData[[]string](ctx, c, "/api/v5/market/candles", q)
	if err != nil {
		return nil, fmt.Errorf("candles %s %s: %w", instID, timeframe, err)
	}

	tf := helper.NormTF(timeframe)
	out := make([]models.Candle, 0, len(rows))
	// OKX отдаёт newest-first → разворачиваем
	for i := len(rows) - 1; i >= 0; i-- {
		candle, ok := parseCandleRow(rows[i])
		if !ok {
			continue
		}
		candle.Symbol = instID
		candle.Timeframe = tf
		out = append(out, candle)
	}
	return out, nil
}

func parseCandleRow(row []string) (models.Candle, bool) {
	if len(row) < 5 {
		return models.Candle{}, false
	}
	// незакрытая свеча
	if len(row) >= 9 && row[8] != "1" {
		return models.Candle{}, false
	}

	tsMs, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return models.Candle{}, false
	}
	open, err1 := strconv.ParseFloat(row[1], 64)
	high, err2 := strconv.ParseFloat(row[2], 64)
	low, err3 := strconv.ParseFloat(row[3], 64)
	closep, err4 := strconv.ParseFloat(row[4], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || closep <= 0 {
		return models.Candle{}, false
	}

	var vol float64
	if len(row) >= 6 {
		vol, _ = strconv.ParseFloat(row[5], 64)
	}
	return models.Candle{
		Time:   time.UnixMilli(tsMs).UTC(),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closep,
		Volume: vol,
	}, true
}

type okxTicker struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
	Ts     string `json:"ts"`
}

// Ticker: последняя цена инструмента.
func (c *Client) Ticker(ctx context.Context, instID string) (float64, error) {
	q := url.Values{}
	q.Set("instId", instID)

	data, err := getData[okxTicker](ctx, c, "/api/v5/market/ticker", q)
	if err != nil {
		return 0, fmt.Errorf("ticker %s: %w", instID, err)
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("ticker %s: empty data", instID)
	}
	px, err := strconv.ParseFloat(data[0].Last, 64)
	if err != nil || px <= 0 {
		return 0, fmt.Errorf("ticker %s: bad last %q", instID, data[0].Last)
	}
	return px, nil
}

type okxInstrument struct {
	InstID string `json:"instId"`
	TickSz string `json:"tickSz"`
	LotSz  string `json:"lotSz"`
	MinSz  string `json:"minSz"`
	CtVal  string `json:"ctVal"`
	CtMult string `json:"ctMult"`
	State  string `json:"state"`
}

// Instrument: шаги цены/объёма SWAP-инструмента.
func (c *Client) Instrument(ctx context.Context, instID string) (models.Instrument, error) {
	q := url.Values{}
	q.Set("instType", "SWAP")
	q.Set("instId", instID)

	data, err := getData[okxInstrument](ctx, c, "/api/v5/public/instruments", q)
	if err != nil {
		return models.Instrument{}, fmt.Errorf("instrument %s: %w", instID, err)
	}
	if len(data) == 0 {
		return models.Instrument{}, fmt.Errorf("instrument %s not found", instID)
	}

	inst := data[0]
	if inst.State != "" && inst.State != "live" {
		return models.Instrument{}, fmt.Errorf("instrument %s not live: state=%s", instID, inst.State)
	}

	parsePos := func(name, s string) (float64, error) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("%s parse: %q", name, s)
		}
		return v, nil
	}

	tickSz, err := parsePos("tickSz", inst.TickSz)
	if err != nil {
		return models.Instrument{}, err
	}
	lotSz, err := parsePos("lotSz", inst.LotSz)
	if err != nil {
		return models.Instrument{}, err
	}
	minSz, err := parsePos("minSz", inst.MinSz)
	if err != nil {
		return models.Instrument{}, err
	}
	ctVal, err := parsePos("ctVal", inst.CtVal)
	if err != nil {
		return models.Instrument{}, err
	}
	if m, e := strconv.ParseFloat(inst.CtMult, 64); e == nil && m > 0 {
		ctVal *= m
	}

	return models.Instrument{
		InstID: inst.InstID,
		TickSz: tickSz,
		LotSz:  lotSz,
		MinSz:  minSz,
		CtVal:  ctVal,
	}, nil
}

// OKXBar переводит таймфрейм в формат bar ("1h" -> "1H").
func OKXBar(tf string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(tf)) {
	case "1m", "3m", "5m", "15m", "30m":
		return strings.ToLower(strings.TrimSpace(tf)), nil
	case "60m", "1h":
		return "1H", nil
	case "2h":
		return "2H", nil
	case "4h":
		return "4H", nil
	case "1d":
		return "1D", nil
	}
	return "", fmt.Errorf("unsupported timeframe for OKX bar: %q", tf)
}
