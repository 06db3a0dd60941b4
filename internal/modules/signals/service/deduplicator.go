package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"signal_bot/internal/models"
	"signal_bot/pkg/logger"
	"signal_bot/pkg/metrics"
	"signal_bot/pkg/tracing"
)

// Sink: получатель одобренных сигналов (лог, консоль, БД, телеграм, кафка...).
type Sink interface {
	Name() string
	Receive(ctx context.Context, sig models.ValidatedSignal) error
}

// SignalHistory отдаёт ранее сохранённые сигналы для восстановления окна.
type SignalHistory interface {
	SignalsSince(ctx context.Context, since time.Time) ([]models.ValidatedSignal, error)
}

// DefaultDedupWindow: окно подавления, если в конфиге не задано.
const DefaultDedupWindow = 4 * time.Hour

type DedupConfig struct {
	Window      time.Duration
	PricePlaces int
}

type DedupStats struct {
	Tracked    int
	Forwarded  int64
	Suppressed int64
	SinkErrors int64
}

// Deduplicator: общий для всех воркеров фильтр повторов. Под мьютексом
// только проверка+вставка, рассылка по синкам идёт уже без блокировки.
type Deduplicator struct {
	cfg   DedupConfig
	sinks []Sink
	opts  options
	log   *zap.Logger

	mu         sync.Mutex
	seen       map[string]time.Time
	forwarded  int64
	suppressed int64
	sinkErrors int64
}

func NewDeduplicator(cfg DedupConfig, sinks []Sink, opts ...Option) *Deduplicator {
	if cfg.Window <= 0 {
		cfg.Window = DefaultDedupWindow
	}
	if cfg.PricePlaces < 0 {
		cfg.PricePlaces = 2
	}
	return &Deduplicator{
		cfg:   cfg,
		sinks: sinks,
		opts:  buildOptions(opts),
		log:   logger.With(zap.String("component", "dedup")),
		seen:  make(map[string]time.Time),
	}
}

// Publish возвращает true, если сигнал впервые за окно и ушёл в синки.
func (d *Deduplicator) Publish(ctx context.Context, sig models.ValidatedSignal) bool {
	span, ctx := tracing.StartSpan(ctx, "dedup.publish",
		"symbol", sig.Symbol, "timeframe", sig.Timeframe, "strategy", sig.Strategy)
	defer span.Finish()

	fp := Fingerprint(sig.CandidateSignal, d.cfg.PricePlaces)
	if !d.accept(fp) {
		span.SetTag("suppressed", true)
		metrics.RecordSuppressed()
		d.log.Debug("duplicate suppressed",
			zap.String("fingerprint", fp),
			zap.String("timeframe", sig.Timeframe),
			zap.String("strategy", sig.Strategy))
		return false
	}

	metrics.RecordForwarded()
	for _, s := range d.sinks {
		d.deliver(ctx, s, sig, fp)
	}
	return true
}

func (d *Deduplicator) accept(fp string) bool {
	now := d.opts.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.evictLocked(now)
	if ts, ok := d.seen[fp]; ok && now.Sub(ts) < d.cfg.Window {
		d.suppressed++
		return false
	}
	d.seen[fp] = now
	d.forwarded++
	return true
}

// deliver изолирует синк: ошибка или паника одного не мешает остальным.
func (d *Deduplicator) deliver(ctx context.Context, s Sink, sig models.ValidatedSignal, fp string) {
	span, ctx := tracing.StartSpan(ctx, "sink.receive", "sink", s.Name())
	defer span.Finish()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("sink panic: %v", r)
			}
		}()
		return s.Receive(ctx, sig)
	}()
	if err == nil {
		return
	}

	tracing.Fail(span, err)
	metrics.RecordSinkError(s.Name())
	d.mu.Lock()
	d.sinkErrors++
	d.mu.Unlock()
	d.log.Error("sink delivery failed",
		zap.String("sink", s.Name()),
		zap.String("fingerprint", fp),
		zap.String("signal_id", sig.ID),
		zap.Error(err))
}

// Rehydrate заполняет окно из истории, чтобы рестарт не дублировал недавние сигналы.
func (d *Deduplicator) Rehydrate(ctx context.Context, h SignalHistory) (int, error) {
	now := d.opts.now()
	records, err := h.SignalsSince(ctx, now.Add(-d.cfg.Window))
	if err != nil {
		return 0, fmt.Errorf("load signal history: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	loaded := 0
	for _, rec := range records {
		ts := rec.ValidatedAt
		if ts.IsZero() {
			ts = rec.CandleTime
		}
		if now.Sub(ts) >= d.cfg.Window {
			continue
		}
		fp := Fingerprint(rec.CandidateSignal, d.cfg.PricePlaces)
		if prev, ok := d.seen[fp]; !ok || prev.Before(ts) {
			d.seen[fp] = ts
		}
		loaded++
	}
	return loaded, nil
}

// Sweep удаляет протухшие отпечатки, возвращает сколько удалено.
func (d *Deduplicator) Sweep() int {
	now := d.opts.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.evictLocked(now)
}

func (d *Deduplicator) evictLocked(now time.Time) int {
	n := 0
	for fp, ts := range d.seen {
		if now.Sub(ts) >= d.cfg.Window {
			delete(d.seen, fp)
			n++
		}
	}
	return n
}

func (d *Deduplicator) Stats() DedupStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DedupStats{
		Tracked:    len(d.seen),
		Forwarded:  d.forwarded,
		Suppressed: d.suppressed,
		SinkErrors: d.sinkErrors,
	}
}

func (d *Deduplicator) SinkNames() []string {
	out := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		out = append(out, s.Name())
	}
	return out
}
