package runner

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"signal_bot/internal/modules/config"
	health "signal_bot/internal/modules/health/service"
	market "signal_bot/internal/modules/market/service"
	signalsmod "signal_bot/internal/modules/signals"
	signals "signal_bot/internal/modules/signals/service"
	strategy "signal_bot/internal/modules/strategy/service"
)

type Params struct {
	fx.In

	Config     *config.Config
	Dedup      *signals.Deduplicator
	Engine     *strategy.Engine
	Validators signalsmod.ValidatorFactory
	Client     *market.Client
	Ticker     *market.TickerStream
	State      *health.State
}

// NewOrchestratorFromConfig создаёт по воркеру на таймфрейм. Каждый воркер
// получает свой источник и валидатор, дедупликатор общий.
func NewOrchestratorFromConfig(p Params) (*Orchestrator, error) {
	cfg := p.Config
	o := NewOrchestrator(OrchestratorConfig{
		Stagger:        cfg.Worker.Stagger,
		StatusInterval: cfg.Worker.StatusInterval,
	}, p.Dedup, p.State)

	wc := Config{
		Symbol:            cfg.Symbol,
		WindowSize:        cfg.Worker.WindowSize,
		PricePollInterval: cfg.Worker.PricePollInterval,
		SettleDelay:       cfg.Worker.SettleDelay,
		SourceTimeout:     cfg.Worker.SourceTimeout,
		BackoffBase:       cfg.Worker.BackoffBase,
		BackoffMax:        cfg.Worker.BackoffMax,
	}

	for _, tf := range cfg.Timeframes {
		src, err := market.NewOKXSource(p.Client, p.Ticker, cfg.Symbol, cfg.InstID, tf)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", tf, err)
		}
		v, err := p.Validators(tf)
		if err != nil {
			return nil, err
		}
		w, err := NewWorker(tf, wc, src, p.Engine, v, p.Dedup, WithHealth(p.State))
		if err != nil {
			return nil, err
		}
		if err := o.Add(w); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			NewOrchestratorFromConfig, // *Orchestrator
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			o *Orchestrator,
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					o.Start(ctx)
					return nil
				},
				OnStop: func(stopCtx context.Context) error {
					return o.Stop(stopCtx)
				},
			})
		}),
	)
}
