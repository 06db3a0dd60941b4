package service

import (
	"fmt"

	"go.uber.org/zap"

	"signal_bot/internal/models"
	"signal_bot/pkg/logger"
	"signal_bot/pkg/metrics"
)

// Rule это независимый детектор паттерна, чистая функция окна: никакого состояния
// между вызовами. Окно упорядочено по времени, последняя свеча: только что закрытая.
type Rule interface {
	Name() string
	MinCandles() int
	Evaluate(window []models.Candle) (*models.CandidateSignal, error)
}

// Engine гоняет включённые правила по окну. Падение одного правила
// не мешает остальным.
type Engine struct {
	rules []Rule
	log   *zap.Logger
}

func NewEngine(rules []Rule) *Engine {
	return &Engine{
		rules: rules,
		log:   logger.With(zap.String("component", "rule_engine")),
	}
}

func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate: максимум один кандидат на правило.
func (e *Engine) Evaluate(window []models.Candle) []models.CandidateSignal {
	return e.EvaluateWhere(window, nil)
}

// EvaluateWhere пропускает правила, для которых skip вернул true.
func (e *Engine) EvaluateWhere(window []models.Candle, skip func(rule string) bool) []models.CandidateSignal {
	if len(window) == 0 {
		return nil
	}
	last := window[len(window)-1]

	var out []models.CandidateSignal
	for _, r := range e.rules {
		name := r.Name()
		if skip != nil && skip(name) {
			continue
		}
		if len(window) < r.MinCandles() {
			continue
		}

		sig, err := safeEvaluate(r, window)
		if err != nil {
			metrics.RecordRuleFailure(name)
			e.log.Error("rule evaluation failed",
				zap.String("rule", name),
				zap.String("timeframe", last.Timeframe),
				zap.Time("candle", last.Time),
				zap.Float64("close", last.Close),
				zap.Error(err),
			)
			continue
		}
		if sig == nil {
			continue
		}

		if sig.Strategy == "" {
			sig.Strategy = name
		}
		if sig.CandleTime.IsZero() {
			sig.CandleTime = last.Time
		}
		out = append(out, *sig)
	}
	return out
}

func safeEvaluate(r Rule, window []models.Candle) (sig *models.CandidateSignal, err error) {
	defer func() {
		if p := recover(); p != nil {
			sig = nil
			err = fmt.Errorf("rule %s panicked: %v", r.Name(), p)
		}
	}()
	return r.Evaluate(window)
}
