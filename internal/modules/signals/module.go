package signals

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	"signal_bot/internal/helper"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/modules/signals/service"
	"signal_bot/pkg/logger"
)

// Module собирает единственный на процесс Deduplicator поверх упорядоченного
// списка синков ([]service.Sink приходит из модуля sinks).
func Module() fx.Option {
	return fx.Module("signals",
		fx.Provide(
			NewDeduplicator,
			NewValidatorFactory,
		),
		fx.Invoke(func(lc fx.Lifecycle, d *service.Deduplicator) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					logger.Info("[DEDUP] sinks: %v", d.SinkNames())
					return nil
				},
				OnStop: func(ctx context.Context) error {
					st := d.Stats()
					logger.Info("[DEDUP] forwarded=%d suppressed=%d sink_errors=%d", st.Forwarded, st.Suppressed, st.SinkErrors)
					return nil
				},
			})
		}),
	)
}

func NewDeduplicator(cfg *config.Config, sinks []service.Sink) *service.Deduplicator {
	return service.NewDeduplicator(service.DedupConfig{
		Window:      cfg.Dedup.Window,
		PricePlaces: cfg.Dedup.PricePlaces,
	}, sinks)
}

// ValidatorFactory создаёт валидатор со своей историей для каждого таймфрейма.
type ValidatorFactory func(timeframe string) (*service.Validator, error)

func NewValidatorFactory(cfg *config.Config) ValidatorFactory {
	return func(timeframe string) (*service.Validator, error) {
		vc, err := ValidatorConfigFor(cfg, timeframe)
		if err != nil {
			return nil, err
		}
		return service.NewValidator(vc, cfg.Symbol, timeframe), nil
	}
}

// ValidatorConfigFor переводит возраст свечи из баров во время.
func ValidatorConfigFor(cfg *config.Config, timeframe string) (service.ValidatorConfig, error) {
	d, err := helper.TimeframeDuration(timeframe)
	if err != nil {
		return service.ValidatorConfig{}, fmt.Errorf("validator for %s: %w", timeframe, err)
	}
	v := cfg.Validator
	return service.ValidatorConfig{
		MinRiskReward:     v.MinRiskReward,
		MinConfidence:     v.MinConfidence,
		MaxEntryDeviation: v.MaxEntryDeviation,
		MaxAge:            time.Duration(v.MaxCandleAgeBars) * d,
		DuplicateWindow:   v.DuplicateWindow,
		HistoryRetention:  v.HistoryRetention,
		PipSize:           v.PipSize,
	}, nil
}
