package market

import (
	"context"

	"go.uber.org/fx"

	"signal_bot/internal/modules/config"
	health "signal_bot/internal/modules/health/service"
	"signal_bot/internal/modules/market/service"
)

// Module поднимает REST-клиент OKX и WS-стрим тикеров инструмента.
func Module() fx.Option {
	return fx.Module("market",
		fx.Provide(
			func(cfg *config.Config) *service.Client {
				return service.NewClient(service.ClientConfig{
					RestURL:   cfg.OKX.RestURL,
					RateLimit: cfg.OKX.RateLimit,
					Burst:     cfg.OKX.Burst,
					Timeout:   cfg.Worker.SourceTimeout,
				})
			},
			func(cfg *config.Config, state *health.State) *service.TickerStream {
				s := service.NewTickerStream(cfg.OKX.WSURL, cfg.InstID)
				s.OnConnect = state.SetWSConnected
				s.OnTick = state.TouchTick
				return s
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, s *service.TickerStream) {
			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go s.Run(ctx)
					return nil
				},
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
		}),
	)
}
