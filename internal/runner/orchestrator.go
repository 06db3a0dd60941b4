package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	health "signal_bot/internal/modules/health/service"
	signals "signal_bot/internal/modules/signals/service"
	"signal_bot/pkg/logger"
)

// DedupMonitor: то, что оркестратору нужно от общего дедупликатора.
type DedupMonitor interface {
	Sweep() int
	Stats() signals.DedupStats
}

type OrchestratorConfig struct {
	// пауза между стартами воркеров, чтобы не бить биржу пачкой запросов
	Stagger        time.Duration
	StatusInterval time.Duration
}

// Orchestrator держит по воркеру на таймфрейм, запускает их со сдвигом
// и раз в StatusInterval пишет сводку.
type Orchestrator struct {
	cfg    OrchestratorConfig
	dedup  DedupMonitor
	health *health.State
	log    *zap.Logger
	after  func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	order   []string
	workers map[string]*Worker
	running map[string]bool

	stop     chan struct{}
	stopOnce sync.Once
	bg       sync.WaitGroup
}

func NewOrchestrator(cfg OrchestratorConfig, dedup DedupMonitor, state *health.State) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		dedup:   dedup,
		health:  state,
		log:     logger.With(zap.String("component", "orchestrator")),
		after:   time.After,
		workers: make(map[string]*Worker),
		running: make(map[string]bool),
		stop:    make(chan struct{}),
	}
}

// Add регистрирует воркер. Один воркер на таймфрейм.
func (o *Orchestrator) Add(w *Worker) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	tf := w.Timeframe()
	if _, ok := o.workers[tf]; ok {
		return fmt.Errorf("worker for timeframe %s already registered", tf)
	}
	o.workers[tf] = w
	o.order = append(o.order, tf)
	return nil
}

// Start возвращается сразу: воркеры поднимаются в фоне со сдвигом Stagger,
// после последнего выставляется ready.
func (o *Orchestrator) Start(ctx context.Context) {
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		o.launch(ctx)
	}()

	if o.cfg.StatusInterval > 0 {
		o.bg.Add(1)
		go func() {
			defer o.bg.Done()
			o.monitor(ctx)
		}()
	}
}

func (o *Orchestrator) launch(ctx context.Context) {
	for i, w := range o.Workers() {
		if i > 0 && o.cfg.Stagger > 0 {
			select {
			case <-ctx.Done():
				return
			case <-o.stop:
				return
			case <-o.after(o.cfg.Stagger):
			}
		}

		o.mu.Lock()
		select {
		case <-o.stop:
			o.mu.Unlock()
			return
		default:
		}
		// за время паузы воркер могли снять через StopWorker
		if o.workers[w.Timeframe()] != w {
			o.mu.Unlock()
			continue
		}
		o.running[w.Timeframe()] = true
		o.mu.Unlock()

		go w.Run(ctx)
		o.log.Info("worker launched", zap.String("timeframe", w.Timeframe()))
	}

	if o.health != nil {
		o.health.SetReady(true)
	}
}

func (o *Orchestrator) monitor(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stop:
			return
		case <-o.after(o.cfg.StatusInterval):
		}
		o.Report()
	}
}

// Report чистит протухшие отпечатки, обновляет счётчики здоровья и
// логирует таблицу воркеров.
func (o *Orchestrator) Report() {
	evicted := o.dedup.Sweep()
	st := o.dedup.Stats()
	if o.health != nil {
		o.health.SetDedupCounters(st.Forwarded, st.Suppressed)
	}

	o.log.Info("status",
		zap.Int("tracked", st.Tracked),
		zap.Int("evicted", evicted),
		zap.Int64("forwarded", st.Forwarded),
		zap.Int64("suppressed", st.Suppressed),
		zap.Int64("sink_errors", st.SinkErrors),
	)
	for _, line := range strings.Split(strings.TrimRight(o.StatusTable(), "\n"), "\n") {
		o.log.Info(line)
	}
}

// StatusTable печатает по строке на таймфрейм: состояние, последняя свеча, сигналы,
// отказы и ошибки.
func (o *Orchestrator) StatusTable() string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TF\tSTATE\tLAST CANDLE\tSIGNALS\tREJECTED\tERRORS")
	for _, w := range o.Workers() {
		s := w.Status()
		last := "-"
		if !s.LastCandle.IsZero() {
			last = s.LastCandle.UTC().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n", s.Timeframe, s.State, last, s.Signals, s.Rejections, s.Failures)
	}
	_ = tw.Flush()
	return b.String()
}

// Workers: в порядке регистрации.
func (o *Orchestrator) Workers() []*Worker {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Worker, 0, len(o.order))
	for _, tf := range o.order {
		out = append(out, o.workers[tf])
	}
	return out
}

// StopWorker гасит один таймфрейм и убирает его из набора.
func (o *Orchestrator) StopWorker(ctx context.Context, tf string) error {
	o.mu.Lock()
	w, ok := o.workers[tf]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("worker for timeframe %s is not registered", tf)
	}
	wasRunning := o.running[tf]
	delete(o.workers, tf)
	delete(o.running, tf)
	for i, name := range o.order {
		if name == tf {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	o.mu.Unlock()

	w.Stop()
	if !wasRunning {
		return nil
	}
	select {
	case <-w.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop worker %s: %w", tf, ctx.Err())
	}
}

// Stop останавливает запуск, монитор и все запущенные воркеры. Каждый
// воркер доводит текущую оценку до конца.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.stopOnce.Do(func() { close(o.stop) })
	if o.health != nil {
		o.health.SetReady(false)
	}

	bgDone := make(chan struct{})
	go func() {
		o.bg.Wait()
		close(bgDone)
	}()
	select {
	case <-bgDone:
	case <-ctx.Done():
		return fmt.Errorf("stop orchestrator: %w", ctx.Err())
	}

	o.mu.Lock()
	var started []*Worker
	for _, tf := range o.order {
		if o.running[tf] {
			started = append(started, o.workers[tf])
		}
	}
	o.mu.Unlock()

	for _, w := range started {
		w.Stop()
	}
	for _, w := range started {
		select {
		case <-w.Done():
		case <-ctx.Done():
			return fmt.Errorf("stop worker %s: %w", w.Timeframe(), ctx.Err())
		}
	}

	st := o.dedup.Stats()
	o.log.Info("all workers stopped",
		zap.Int("workers", len(started)),
		zap.Int64("forwarded", st.Forwarded),
		zap.Int64("suppressed", st.Suppressed),
	)
	return nil
}
