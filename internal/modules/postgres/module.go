package postgres

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"signal_bot/internal/modules/config"
	"signal_bot/internal/modules/postgres/service"
	"signal_bot/pkg/db"
	"signal_bot/pkg/logger"
)

// Module поднимает пул, накатывает миграции и отдаёт репозиторий сигналов.
// Без db_dsn оба провайдера возвращают nil: хранилище просто выключено.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			NewTxManager,
			NewSignalRepository,
		),
		fx.Invoke(func(lc fx.Lifecycle, tx *db.PgTxManager) {
			if tx == nil {
				return
			}
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := db.Migrate(ctx, tx.Pool()); err != nil {
						return fmt.Errorf("migrate: %w", err)
					}
					logger.Info("[PG] migrations applied")
					return nil
				},
				OnStop: func(ctx context.Context) error {
					tx.Close()
					return nil
				},
			})
		}),
	)
}

func NewTxManager(ctx context.Context, cfg *config.Config) (*db.PgTxManager, error) {
	if cfg.DB == "" {
		logger.Warn("[PG] db_dsn is empty, signal history disabled")
		return nil, nil
	}

	poolMaster, err := db.NewPool(ctx, db.PoolConfig{
		DSN:      cfg.DB,
		MaxConns: cfg.DBMaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create poolMaster: %w", err)
	}

	if err = poolMaster.Ping(ctx); err != nil {
		poolMaster.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db.NewPgTxManager(poolMaster), nil
}

func NewSignalRepository(tx *db.PgTxManager, cfg *config.Config) *service.SignalRepository {
	if tx == nil {
		return nil
	}
	return service.NewSignalRepository(tx, cfg.Dedup.PricePlaces)
}
