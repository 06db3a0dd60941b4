package service

import (
	"fmt"
	"math"
	"sync"
	"time"

	"signal_bot/internal/models"
)

const rrEpsilon = 1e-9

type RejectReason string

const (
	RejectInvalidPrice      RejectReason = "invalid_price"
	RejectInvalidConfidence RejectReason = "invalid_confidence"
	RejectDirectionMismatch RejectReason = "direction_mismatch"
	RejectRiskReward        RejectReason = "risk_reward_below_min"
	RejectLowConfidence     RejectReason = "low_confidence"
	RejectEntryDeviation    RejectReason = "entry_deviation"
	RejectStale             RejectReason = "stale_candle"
	RejectDuplicate         RejectReason = "local_duplicate"
)

// Rejection: штатный исход валидации, не ошибка.
type Rejection struct {
	Reason RejectReason
	Detail string
}

func (r *Rejection) String() string {
	if r == nil {
		return ""
	}
	return string(r.Reason) + ": " + r.Detail
}

func reject(reason RejectReason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

type ValidatorConfig struct {
	MinRiskReward     float64
	MinConfidence     float64
	MaxEntryDeviation float64
	// MaxAge <= 0 отключает проверку свежести
	MaxAge time.Duration
	// DuplicateWindow <= 0 отключает локальный дедуп
	DuplicateWindow  time.Duration
	HistoryRetention time.Duration
	PipSize          float64
}

// Validator: гейты качества для одного symbol/timeframe. Держит короткую
// историю одобренных сигналов для локального дедупа.
type Validator struct {
	cfg       ValidatorConfig
	symbol    string
	timeframe string
	opts      options

	mu     sync.Mutex
	recent []models.ValidatedSignal
}

func NewValidator(cfg ValidatorConfig, symbol, timeframe string, opts ...Option) *Validator {
	if cfg.PipSize <= 0 {
		cfg.PipSize = 0.1
	}
	if cfg.HistoryRetention <= 0 {
		cfg.HistoryRetention = 24 * time.Hour
	}
	return &Validator{
		cfg:       cfg,
		symbol:    symbol,
		timeframe: timeframe,
		opts:      buildOptions(opts),
	}
}

// Validate проверяет кандидата против собственной истории и при успехе запоминает его.
func (v *Validator) Validate(c models.CandidateSignal, currentPrice float64) (models.ValidatedSignal, *Rejection) {
	now := v.opts.now()

	v.mu.Lock()
	defer v.mu.Unlock()

	v.pruneLocked(now)
	sig, rej := v.Check(c, currentPrice, v.recent, now)
	if rej != nil {
		return models.ValidatedSignal{}, rej
	}
	v.recent = append(v.recent, sig)
	return sig, nil
}

// Check: чистая проверка без записи в историю. Порядок проверок фиксирован,
// первая неудача прерывает цепочку.
func (v *Validator) Check(
	c models.CandidateSignal,
	currentPrice float64,
	recent []models.ValidatedSignal,
	now time.Time,
) (models.ValidatedSignal, *Rejection) {
	// 1. здравый смысл уровней
	if c.Entry <= 0 || c.StopLoss <= 0 || c.TakeProfit <= 0 {
		return models.ValidatedSignal{}, reject(RejectInvalidPrice,
			"entry=%.5f sl=%.5f tp=%.5f must be positive", c.Entry, c.StopLoss, c.TakeProfit)
	}
	if math.IsNaN(c.Confidence) || c.Confidence < 0 || c.Confidence > 1 {
		return models.ValidatedSignal{}, reject(RejectInvalidConfidence, "confidence %.3f outside [0,1]", c.Confidence)
	}
	if !c.Direction.Valid() {
		return models.ValidatedSignal{}, reject(RejectDirectionMismatch, "unknown direction %q", c.Direction)
	}
	risk, reward := c.RiskDistance(), c.RewardDistance()
	if risk <= 0 || reward <= 0 {
		return models.ValidatedSignal{}, reject(RejectDirectionMismatch,
			"%s with entry=%.5f sl=%.5f tp=%.5f", c.Direction, c.Entry, c.StopLoss, c.TakeProfit)
	}

	// 2. R:R
	rr := reward / risk
	if rr+rrEpsilon < v.cfg.MinRiskReward {
		return models.ValidatedSignal{}, reject(RejectRiskReward, "rr %.2f < %.2f", rr, v.cfg.MinRiskReward)
	}
	if v.cfg.MinConfidence > 0 && c.Confidence < v.cfg.MinConfidence {
		return models.ValidatedSignal{}, reject(RejectLowConfidence, "confidence %.2f < %.2f", c.Confidence, v.cfg.MinConfidence)
	}

	// 3. вход рядом с рынком
	if currentPrice <= 0 {
		return models.ValidatedSignal{}, reject(RejectEntryDeviation, "no market price")
	}
	if v.cfg.MaxEntryDeviation > 0 {
		dev := math.Abs(c.Entry-currentPrice) / currentPrice
		if dev > v.cfg.MaxEntryDeviation {
			return models.ValidatedSignal{}, reject(RejectEntryDeviation,
				"entry %.5f is %.2f%% away from market %.5f", c.Entry, dev*100, currentPrice)
		}
	}

	// 4. свежесть свечи
	if v.cfg.MaxAge > 0 {
		if age := now.Sub(c.CandleTime); age > v.cfg.MaxAge {
			return models.ValidatedSignal{}, reject(RejectStale, "candle %s is %s old (max %s)",
				c.CandleTime.UTC().Format(time.RFC3339), age.Round(time.Second), v.cfg.MaxAge)
		}
	}

	// 5. локальный дедуп по направлению
	if v.cfg.DuplicateWindow > 0 {
		for _, r := range recent {
			if r.Direction != c.Direction {
				continue
			}
			d := c.CandleTime.Sub(r.CandleTime)
			if d < 0 {
				d = -d
			}
			if d < v.cfg.DuplicateWindow {
				return models.ValidatedSignal{}, reject(RejectDuplicate,
					"%s already approved at %s by %s", c.Direction, r.CandleTime.UTC().Format(time.RFC3339), r.Strategy)
			}
		}
	}

	return models.ValidatedSignal{
		CandidateSignal: c,
		ID:              v.opts.newID(),
		Symbol:          v.symbol,
		Timeframe:       v.timeframe,
		RiskPips:        risk / v.cfg.PipSize,
		RewardPips:      reward / v.cfg.PipSize,
		RR:              rr,
		ValidatedAt:     now,
	}, nil
}

// Recent: копия истории одобренных сигналов.
func (v *Validator) Recent() []models.ValidatedSignal {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.ValidatedSignal, len(v.recent))
	copy(out, v.recent)
	return out
}

func (v *Validator) pruneLocked(now time.Time) {
	cutoff := now.Add(-v.cfg.HistoryRetention)
	kept := v.recent[:0]
	for _, s := range v.recent {
		if s.CandleTime.After(cutoff) {
			kept = append(kept, s)
		}
	}
	v.recent = kept
}
