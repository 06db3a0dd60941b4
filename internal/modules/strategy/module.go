package strategy

import (
	"context"
	"strings"

	"go.uber.org/fx"

	"signal_bot/internal/modules/config"
	"signal_bot/internal/modules/strategy/service"
	"signal_bot/pkg/logger"
)

func newParams(cfg *config.Config) service.Params {
	return cfg.Strategy
}

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			newParams,
			service.BuildRules, // []service.Rule
			service.NewEngine,  // *service.Engine
		),
		fx.Invoke(func(lc fx.Lifecycle, e *service.Engine) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					names := make([]string, 0, len(e.Rules()))
					for _, r := range e.Rules() {
						names = append(names, r.Name())
					}
					logger.Info("[STRAT] enabled rules: %s", strings.Join(names, ", "))
					return nil
				},
			})
		}),
	)
}
