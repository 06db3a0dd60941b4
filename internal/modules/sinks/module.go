package sinks

import (
	"context"
	"os"

	"go.uber.org/fx"

	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
	market "signal_bot/internal/modules/market/service"
	pg "signal_bot/internal/modules/postgres/service"
	signals "signal_bot/internal/modules/signals/service"
	"signal_bot/internal/modules/sinks/service"
	tg "signal_bot/internal/modules/telegram_bot/service"
	"signal_bot/pkg/logger"
)

type Params struct {
	fx.In

	Cfg      *config.Config
	Repo     *pg.SignalRepository `optional:"true"`
	Telegram *tg.Telegram         `optional:"true"`
	Market   *market.Client       `optional:"true"`
}

// NewSinks собирает синки из конфига в порядке sinks.order.
func NewSinks(p Params) ([]signals.Sink, *service.KafkaSink, error) {
	cfg := p.Cfg
	available := map[string]signals.Sink{
		"log":     service.NewLogSink(nil),
		"console": service.NewConsoleSink(os.Stdout),
	}
	if p.Repo != nil {
		available["postgres"] = p.Repo
	}
	if p.Telegram != nil {
		available["telegram"] = p.Telegram
	}

	var kafkaSink *service.KafkaSink
	if len(cfg.Kafka.Brokers) > 0 {
		k, err := service.NewKafkaSink(service.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
			PricePlaces:  cfg.Dedup.PricePlaces,
		})
		if err != nil {
			return nil, nil, err
		}
		kafkaSink = k
		available["kafka"] = k
	}

	available["execution"] = newExecution(cfg, p.Market, p.Repo)

	ordered, err := service.Ordered(cfg.Sinks.Order, available)
	if err != nil {
		return nil, nil, err
	}
	return ordered, kafkaSink, nil
}

func newExecution(cfg *config.Config, client *market.Client, repo *pg.SignalRepository) *service.ExecutionSink {
	ec := cfg.Execution
	if !ec.DryRun {
		logger.Warn("[SINKS] live order placement is not supported, execution stays in dry-run")
	}

	var (
		meta     service.InstrumentSource
		prices   service.PriceSource
		recorder service.ExecutionRecorder
	)
	if client != nil {
		prices = client
		if ec.FetchInstrument {
			meta = client
		}
	}
	if repo != nil {
		recorder = repo
	}

	return service.NewExecutionSink(service.ExecutionConfig{
		InstID:           cfg.InstID,
		RiskPct:          ec.RiskPct,
		Equity:           ec.Equity,
		MaxOpenPositions: ec.MaxOpenPositions,
		MaxDailyLossPct:  ec.MaxDailyLossPct,
		Instrument: models.Instrument{
			InstID: cfg.InstID,
			TickSz: ec.TickSize,
			LotSz:  ec.LotSize,
			MinSz:  ec.MinSize,
			CtVal:  1,
		},
	}, meta, prices, recorder)
}

func Module() fx.Option {
	return fx.Module("sinks",
		fx.Provide(NewSinks),
		fx.Invoke(func(lc fx.Lifecycle, k *service.KafkaSink) {
			if k == nil {
				return
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					return k.Close()
				},
			})
		}),
	)
}
