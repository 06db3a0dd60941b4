package runner

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"signal_bot/internal/helper"
	"signal_bot/internal/models"
	health "signal_bot/internal/modules/health/service"
	signals "signal_bot/internal/modules/signals/service"
	"signal_bot/pkg/logger"
	"signal_bot/pkg/metrics"
	"signal_bot/pkg/tracing"
)

// CandleSource: рыночные данные одного таймфрейма.
type CandleSource interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	LatestWindow(ctx context.Context, n int) ([]models.Candle, error)
	CurrentPrice(ctx context.Context) (float64, error)
	IsNewCandle(ts time.Time) bool
}

type Evaluator interface {
	Evaluate(window []models.Candle) []models.CandidateSignal
}

type Validator interface {
	Validate(c models.CandidateSignal, currentPrice float64) (models.ValidatedSignal, *signals.Rejection)
}

type Publisher interface {
	Publish(ctx context.Context, sig models.ValidatedSignal) bool
}

type State int

const (
	StateDisconnected State = iota
	StateIdle
	StateWaiting
	StateEvaluating
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateEvaluating:
		return "evaluating"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Config struct {
	Symbol            string
	WindowSize        int
	PricePollInterval time.Duration
	SettleDelay       time.Duration
	SourceTimeout     time.Duration
	BackoffBase       time.Duration
	BackoffMax        time.Duration
}

func (c Config) withDefaults() Config {
	if c.WindowSize <= 0 {
		c.WindowSize = 200
	}
	if c.PricePollInterval <= 0 {
		c.PricePollInterval = 10 * time.Second
	}
	if c.SourceTimeout <= 0 {
		c.SourceTimeout = 10 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = time.Minute
	}
	return c
}

type Option func(*Worker)

// WithClock подменяет часы и таймер ожидания.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
		if after != nil {
			w.after = after
		}
	}
}

// WithJitter задаёт источник случайности для бэкоффа, значения в [0,1).
func WithJitter(jitter func() float64) Option {
	return func(w *Worker) {
		if jitter != nil {
			w.jitter = jitter
		}
	}
}

func WithHealth(state *health.State) Option {
	return func(w *Worker) { w.health = state }
}

// Worker ведёт один таймфрейм: источник → правила → валидатор → дедупликатор.
// Остановка учитывается только между оценками.
type Worker struct {
	tf     string
	period time.Duration
	cfg    Config

	source    CandleSource
	engine    Evaluator
	validator Validator
	publisher Publisher
	health    *health.State
	log       *zap.Logger

	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
	jitter func() float64

	mu        sync.Mutex
	status    health.WorkerStatus
	state     State
	connected bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewWorker(
	timeframe string,
	cfg Config,
	source CandleSource,
	engine Evaluator,
	validator Validator,
	publisher Publisher,
	opts ...Option,
) (*Worker, error) {
	period, err := helper.TimeframeDuration(timeframe)
	if err != nil {
		return nil, errors.Wrapf(err, "worker %s", timeframe)
	}
	if source == nil || engine == nil || validator == nil || publisher == nil {
		return nil, errors.Errorf("worker %s: source, engine, validator and publisher are required", timeframe)
	}

	w := &Worker{
		tf:        timeframe,
		period:    period,
		cfg:       cfg.withDefaults(),
		source:    source,
		engine:    engine,
		validator: validator,
		publisher: publisher,
		log:       logger.With(zap.String("component", "worker"), zap.String("timeframe", timeframe)),
		now:       time.Now,
		after:     time.After,
		jitter:    rand.Float64,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.status = health.WorkerStatus{Timeframe: timeframe, State: StateDisconnected.String()}
	return w, nil
}

func (w *Worker) Timeframe() string { return w.tf }

// Stop просит воркер завершиться на ближайшей границе цикла.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Done закрывается, когда Run вернулся.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) Status() health.WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Run блокируется до Stop или отмены ctx. Первая оценка делается сразу после
// подключения, дальше по границам таймфрейма.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	defer w.setState(StateStopped)
	defer w.disconnect(ctx)

	w.log.Info("worker started", zap.Duration("period", w.period))
	if !w.connect(ctx) {
		return
	}

	wake := w.now()
	for {
		if !w.waitUntil(ctx, wake) {
			w.log.Info("worker stopped")
			return
		}

		next, err := w.evaluate(ctx)
		if err == nil {
			wake = next
			w.setState(StateIdle)
			continue
		}

		failures := w.fail("evaluate", err)
		w.disconnect(ctx)
		if !w.sleep(ctx, backoffDelay(failures, w.cfg.BackoffBase, w.cfg.BackoffMax, w.jitter)) {
			return
		}
		if !w.connect(ctx) {
			return
		}
		wake = w.now()
	}
}

func (w *Worker) connect(ctx context.Context) bool {
	for {
		if w.stopped(ctx) {
			return false
		}

		ioCtx, cancel := w.ioContext(ctx)
		err := w.source.Connect(ioCtx)
		cancel()
		if err == nil {
			w.mu.Lock()
			w.connected = true
			w.mu.Unlock()
			w.setState(StateIdle)
			w.log.Info("source connected")
			return true
		}

		failures := w.fail("connect", err)
		if !w.sleep(ctx, backoffDelay(failures, w.cfg.BackoffBase, w.cfg.BackoffMax, w.jitter)) {
			return false
		}
	}
}

func (w *Worker) disconnect(ctx context.Context) {
	w.mu.Lock()
	was := w.connected
	w.connected = false
	w.mu.Unlock()
	if !was {
		return
	}

	ioCtx, cancel := w.ioContext(ctx)
	defer cancel()
	if err := w.source.Disconnect(ioCtx); err != nil {
		w.log.Warn("disconnect failed", zap.Error(err))
	}
}

// evaluate возвращает время следующего пробуждения.
func (w *Worker) evaluate(parent context.Context) (time.Time, error) {
	ctx := context.WithoutCancel(parent)
	w.setState(StateEvaluating)

	started := time.Now()
	span, ctx := tracing.StartSpan(ctx, "worker.evaluate", "timeframe", w.tf, "symbol", w.cfg.Symbol)
	defer func() {
		span.Finish()
		metrics.RecordEvaluation(w.tf, time.Since(started).Seconds())
	}()

	ioCtx, cancel := w.ioContext(ctx)
	window, err := w.source.LatestWindow(ioCtx, w.cfg.WindowSize)
	cancel()
	if err != nil {
		tracing.Fail(span, err)
		return time.Time{}, errors.Wrap(err, "latest window")
	}

	w.update(func(s *health.WorkerStatus) {
		s.Failures = 0
		s.LastError = ""
	})

	now := w.now()
	next := helper.NextBoundary(now, w.period).Add(w.cfg.SettleDelay)
	if len(window) == 0 || !w.source.IsNewCandle(window[len(window)-1].Time) {
		// биржа ещё не отдала свежую свечу
		return w.retryAt(now, next), nil
	}

	last := window[len(window)-1]
	metrics.RecordCandle(w.tf)
	w.update(func(s *health.WorkerStatus) {
		s.LastCandle = last.Time
		s.Evaluations++
	})
	span.SetTag("candle", last.Time.Format(time.RFC3339))

	candidates := w.engine.Evaluate(window)
	if len(candidates) == 0 {
		return next, nil
	}

	price := w.price(ctx, last.Close)
	for _, c := range candidates {
		metrics.RecordCandidate(w.tf, c.Strategy)

		sig, rej := w.validator.Validate(c, price)
		if rej != nil {
			metrics.RecordRejection(w.tf, string(rej.Reason))
			w.update(func(s *health.WorkerStatus) { s.Rejections++ })
			w.log.Info("candidate rejected",
				zap.String("rule", c.Strategy),
				zap.String("direction", string(c.Direction)),
				zap.String("reason", string(rej.Reason)),
				zap.String("detail", rej.Detail),
			)
			continue
		}

		if w.publisher.Publish(ctx, sig) {
			w.update(func(s *health.WorkerStatus) { s.Signals++ })
		}
	}
	return next, nil
}

// price: текущая цена; при ошибке источника берётся close последней свечи,
// чтобы уже помеченная свеча не потерялась.
func (w *Worker) price(ctx context.Context, fallback float64) float64 {
	ioCtx, cancel := w.ioContext(ctx)
	defer cancel()
	px, err := w.source.CurrentPrice(ioCtx)
	if err != nil || px <= 0 {
		metrics.RecordSourceError(w.tf, "price")
		w.log.Warn("current price unavailable, using last close", zap.Float64("close", fallback), zap.Error(err))
		return fallback
	}
	w.recordPrice(px)
	return px
}

func (w *Worker) retryAt(now, boundary time.Time) time.Time {
	retry := now.Add(w.cfg.PricePollInterval)
	if boundary.Before(retry) {
		return boundary
	}
	return retry
}

// waitUntil ждёт wake, опрашивая цену раз в PricePollInterval. false: пора выходить.
func (w *Worker) waitUntil(ctx context.Context, wake time.Time) bool {
	w.setState(StateWaiting)
	for {
		if w.stopped(ctx) {
			return false
		}
		now := w.now()
		if !now.Before(wake) {
			return true
		}

		d := wake.Sub(now)
		if d > w.cfg.PricePollInterval {
			d = w.cfg.PricePollInterval
		}
		if !w.sleep(ctx, d) {
			return false
		}
		if w.now().Before(wake) {
			w.pollPrice(ctx)
		}
	}
}

func (w *Worker) pollPrice(ctx context.Context) {
	ioCtx, cancel := w.ioContext(ctx)
	defer cancel()
	px, err := w.source.CurrentPrice(ioCtx)
	if err != nil {
		metrics.RecordSourceError(w.tf, "price")
		w.log.Debug("price poll failed", zap.Error(err))
		return
	}
	w.recordPrice(px)
}

func (w *Worker) recordPrice(px float64) {
	metrics.RecordLastPrice(w.cfg.Symbol, px)
	w.update(func(s *health.WorkerStatus) { s.LastPrice = px })
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-w.stop:
		return false
	case <-w.after(d):
		return true
	}
}

func (w *Worker) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-w.stop:
		return true
	default:
		return false
	}
}

func (w *Worker) ioContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), w.cfg.SourceTimeout)
}

// fail фиксирует ошибку источника и возвращает номер подряд идущей неудачи.
func (w *Worker) fail(op string, err error) int {
	metrics.RecordSourceError(w.tf, op)
	var failures int
	w.mu.Lock()
	w.status.Failures++
	w.status.LastError = err.Error()
	failures = w.status.Failures
	w.mu.Unlock()
	w.setState(StateDisconnected)

	w.log.Warn("source failure, backing off",
		zap.String("op", op),
		zap.Int("failures", failures),
		zap.Error(err),
	)
	return failures
}

func (w *Worker) setState(s State) {
	metrics.RecordWorkerState(w.tf, int(s))
	// update держит w.mu
	w.update(func(st *health.WorkerStatus) {
		st.State = s.String()
		w.state = s
	})
}

func (w *Worker) update(fn func(*health.WorkerStatus)) {
	w.mu.Lock()
	fn(&w.status)
	w.status.UpdatedAt = w.now()
	snapshot := w.status
	w.mu.Unlock()

	if w.health != nil {
		w.health.SetWorker(snapshot)
	}
}
