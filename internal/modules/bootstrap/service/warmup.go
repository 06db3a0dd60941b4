package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"signal_bot/internal/models"
	signals "signal_bot/internal/modules/signals/service"
	"signal_bot/pkg/logger"
)

type CandleFetcher interface {
	GetCandles(ctx context.Context, instID, timeframe string, limit int) ([]models.Candle, error)
}

type Notifier interface {
	SendService(ctx context.Context, msg string)
}

type Rehydrator interface {
	Rehydrate(ctx context.Context, h signals.SignalHistory) (int, error)
}

type Options struct {
	InstID     string
	Timeframes []string
	// сколько свечей просим на таймфрейм при прогреве
	Need int
	// nil: история не настроена, регидрация пропускается
	History signals.SignalHistory
	// nil: без служебных сообщений
	Notifier Notifier
}

// Warmuper готовит процесс к старту воркеров: поднимает отпечатки из базы
// и проверяет, что биржа отдаёт свечи по каждому таймфрейму.
type Warmuper struct {
	mx    CandleFetcher
	dedup Rehydrator
	opts  Options

	// ограничитель параллелизма, чтобы не словить rate limit
	sem chan struct{}
}

func NewWarmuper(mx CandleFetcher, dedup Rehydrator, opts Options) *Warmuper {
	if opts.Need <= 0 {
		opts.Need = 200
	}
	return &Warmuper{
		mx:    mx,
		dedup: dedup,
		opts:  opts,
		sem:   make(chan struct{}, 4),
	}
}

// Rehydrate должен отработать до запуска воркеров, иначе сигнал, уже
// отправленный до рестарта, уйдёт повторно.
func (w *Warmuper) Rehydrate(ctx context.Context) (int, error) {
	if w.opts.History == nil || w.dedup == nil {
		return 0, nil
	}
	n, err := w.dedup.Rehydrate(ctx, w.opts.History)
	if err != nil {
		return 0, fmt.Errorf("rehydrate dedup: %w", err)
	}
	logger.Info("[BOOT] rehydrated %d fingerprints", n)
	return n, nil
}

// Warmup тянет окно свечей по всем таймфреймам и возвращает их количество.
func (w *Warmuper) Warmup(ctx context.Context) (int64, error) {
	if len(w.opts.Timeframes) == 0 {
		return 0, nil
	}

	w.notify(ctx, fmt.Sprintf("🔥 REST warmup start: %s tf=%s need=%d",
		w.opts.InstID, strings.Join(w.opts.Timeframes, ","), w.opts.Need,
	))

	var cnt atomic.Int64
	var wg sync.WaitGroup
	var firstErr error
	var mu sync.Mutex

	for _, tf := range w.opts.Timeframes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.sem <- struct{}{}
			defer func() { <-w.sem }()

			candles, err := w.mx.GetCandles(ctx, w.opts.InstID, tf, w.opts.Need)
			if err == nil && len(candles) == 0 {
				err = fmt.Errorf("no closed candles")
			}
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("warmup %s %s: %w", w.opts.InstID, tf, err)
				}
				mu.Unlock()
				return
			}
			cnt.Add(int64(len(candles)))
			logger.Debug("[BOOT] %s %s: %d candles, last %s", w.opts.InstID, tf, len(candles), candles[len(candles)-1].Time)
		}()
	}

	wg.Wait()

	if firstErr != nil {
		w.notify(ctx, "⚠️ REST warmup finished with error: "+firstErr.Error())
		return cnt.Load(), firstErr
	}

	w.notify(ctx, fmt.Sprintf("✅ REST warmup finished: %d candles", cnt.Load()))
	return cnt.Load(), nil
}

func (w *Warmuper) notify(ctx context.Context, msg string) {
	if w.opts.Notifier != nil {
		w.opts.Notifier.SendService(ctx, msg)
	}
}
