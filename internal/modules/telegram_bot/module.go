package telegram

import (
	"context"

	"go.uber.org/fx"

	"signal_bot/internal/modules/config"
	health "signal_bot/internal/modules/health/service"
	pg "signal_bot/internal/modules/postgres/service"
	"signal_bot/internal/modules/telegram_bot/service"
	"signal_bot/pkg/logger"
)

// Module даёт *service.Telegram или nil, если токен/чат не заданы.
func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			func(cfg *config.Config, state *health.State, repo *pg.SignalRepository) (*service.Telegram, error) {
				if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
					logger.Warn("[TG] token or chat_id not set, telegram sink disabled")
					return nil, nil
				}
				var history service.History
				if repo != nil {
					history = repo
				}
				return service.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, state, history)
			},
		),
		// Запуск основного цикла через Lifecycle
		fx.Invoke(
			func(lc fx.Lifecycle, t *service.Telegram) {
				if t == nil {
					return
				}
				ctx, cancel := context.WithCancel(context.Background())
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						t.Start(ctx)
						return nil
					},
					OnStop: func(context.Context) error {
						cancel()
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}
