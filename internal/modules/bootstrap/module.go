package bootstrap

import (
	"context"

	"go.uber.org/fx"

	bootstrap "signal_bot/internal/modules/bootstrap/service"
	"signal_bot/internal/modules/config"
	market "signal_bot/internal/modules/market/service"
	pg "signal_bot/internal/modules/postgres/service"
	signals "signal_bot/internal/modules/signals/service"
	tg "signal_bot/internal/modules/telegram_bot/service"
	"signal_bot/pkg/logger"
)

func NewWarmuper(
	cfg *config.Config,
	mx *market.Client,
	dedup *signals.Deduplicator,
	repo *pg.SignalRepository,
	t *tg.Telegram,
) *bootstrap.Warmuper {
	opts := bootstrap.Options{
		InstID:     cfg.InstID,
		Timeframes: cfg.Timeframes,
		Need:       cfg.Worker.WindowSize,
	}
	// nil-указатели не должны превратиться в непустые интерфейсы
	if repo != nil && cfg.Dedup.Rehydrate {
		opts.History = repo
	}
	if t != nil {
		opts.Notifier = t
	}
	return bootstrap.NewWarmuper(mx, dedup, opts)
}

// Module должен стоять перед runner: OnStart-хуки идут в порядке регистрации,
// и регидрация обязана закончиться до старта воркеров.
func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			NewWarmuper, // -> *bootstrap.Warmuper
		),
		fx.Invoke(func(lc fx.Lifecycle, appCtx context.Context, wu *bootstrap.Warmuper) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if _, err := wu.Rehydrate(ctx); err != nil {
						// без истории работаем дальше, дубли после рестарта возможны
						logger.Error("[BOOT] %v", err)
					}

					go func() {
						n, err := wu.Warmup(appCtx)
						if err != nil {
							logger.Warn("[BOOT] warmup error: %v", err)
							return
						}
						logger.Info("[BOOT] warmup done: %d candles", n)
					}()
					return nil
				},
			})
		}),
	)
}
