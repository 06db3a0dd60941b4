package main

import (
	"context"

	"go.uber.org/fx"

	"signal_bot/internal/modules/bootstrap"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/modules/health"
	"signal_bot/internal/modules/market"
	"signal_bot/internal/modules/postgres"
	"signal_bot/internal/modules/signals"
	"signal_bot/internal/modules/sinks"
	"signal_bot/internal/modules/strategy"
	telegram "signal_bot/internal/modules/telegram_bot"
	"signal_bot/internal/runner"
	"signal_bot/pkg/logger"
	"signal_bot/pkg/tracing"
)

// observability идёт первым модулем: invoke-и модулей выполняются в порядке
// объявления, и остальные конструкторы уже пишут в настроенный логгер.
func observability() fx.Option {
	return fx.Module("observability",
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			logger.SetServiceName(cfg.Service.Name)
			tracing.SetServiceName(cfg.Service.Name)
			if err := logger.Init(cfg.Service.LogLevel); err != nil {
				return err
			}

			_, closeTracer, err := tracing.InitTracer(tracing.Config{
				Enabled:    cfg.Tracing.Enabled,
				Host:       cfg.Tracing.Host,
				Port:       cfg.Tracing.Port,
				SampleRate: cfg.Tracing.SampleRate,
			})
			if err != nil {
				return err
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					closeTracer()
					logger.Sync()
					return nil
				},
			})
			return nil
		}),
	)
}

func main() {
	app := fx.New(
		fx.Provide(
			// общий контекст процесса, гасится на остановке приложения
			func(lc fx.Lifecycle) context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						cancel()
						return nil
					},
				})
				return ctx
			},
		),
		config.Module(),
		observability(),
		health.Module(),
		postgres.Module(),
		telegram.Module(),
		market.Module(),
		strategy.Module(),
		sinks.Module(),
		signals.Module(),
		bootstrap.Module(),
		runner.Module(),
	)
	app.Run()
}
