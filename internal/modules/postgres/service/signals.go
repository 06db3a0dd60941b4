package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"signal_bot/internal/models"
	signals "signal_bot/internal/modules/signals/service"
	"signal_bot/pkg/db"
)

const signalColumns = `id, symbol, timeframe, strategy_name, direction, entry_price, stop_loss, take_profit,
	confidence, risk_pips, reward_pips, risk_reward_ratio, notes, candle_time, timestamp`

// SignalRepository хранит историю сигналов. Это одновременно синк и источник
// для восстановления окна дедупликации.
type SignalRepository struct {
	db     db.TxManager
	places int
}

func NewSignalRepository(tx db.TxManager, places int) *SignalRepository {
	return &SignalRepository{db: tx, places: places}
}

func (r *SignalRepository) Name() string { return "postgres" }

// Receive сохраняет сигнал в статусе pending.
func (r *SignalRepository) Receive(ctx context.Context, sig models.ValidatedSignal) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.InsertSignal: %w", err)
		}
	}()

	return r.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx, `
			INSERT INTO signals (`+signalColumns+`, fingerprint, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
			ON CONFLICT (id) DO NOTHING`,
			sig.ID, sig.Symbol, sig.Timeframe, sig.Strategy, string(sig.Direction),
			sig.Entry, sig.StopLoss, sig.TakeProfit,
			sig.Confidence, sig.RiskPips, sig.RewardPips, sig.RR,
			sig.Rationale, sig.CandleTime, sig.ValidatedAt,
			signals.Fingerprint(sig.CandidateSignal, r.places), string(models.SignalPending),
		)
		return err
	})
}

// SignalsSince: сигналы с timestamp не раньше since, новые первыми.
func (r *SignalRepository) SignalsSince(ctx context.Context, since time.Time) (out []models.ValidatedSignal, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.SignalsSince: %w", err)
		}
	}()

	err = r.db.RunRepeatableRead(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		rows, err := tx.Query(ctxTx,
			`SELECT `+signalColumns+` FROM signals WHERE timestamp >= $1 ORDER BY timestamp DESC`, since)
		if err != nil {
			return err
		}
		out, err = collectSignals(rows)
		return err
	})
	return out, err
}

// Latest: последние limit сигналов, новые первыми.
func (r *SignalRepository) Latest(ctx context.Context, limit int) (out []models.ValidatedSignal, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.LatestSignals: %w", err)
		}
	}()
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Conn().Query(ctx,
		`SELECT `+signalColumns+` FROM signals ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectSignals(rows)
}

// MarkExecuted переводит pending → active. Повторный вызов ничего не меняет.
func (r *SignalRepository) MarkExecuted(ctx context.Context, id string, price float64, at time.Time) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.MarkExecuted: %w", err)
		}
	}()

	return r.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		tag, err := tx.Exec(ctxTx, `
			UPDATE signals SET status = $2, executed_price = $3, executed_at = $4
			WHERE id = $1 AND status = $5`,
			id, string(models.SignalActive), price, at, string(models.SignalPending))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("signal %s is not pending", id)
		}
		return nil
	})
}

func collectSignals(rows pgx.Rows) ([]models.ValidatedSignal, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ValidatedSignal, error) {
		var (
			s   models.ValidatedSignal
			dir string
		)
		err := row.Scan(
			&s.ID, &s.Symbol, &s.Timeframe, &s.Strategy, &dir,
			&s.Entry, &s.StopLoss, &s.TakeProfit,
			&s.Confidence, &s.RiskPips, &s.RewardPips, &s.RR,
			&s.Rationale, &s.CandleTime, &s.ValidatedAt,
		)
		s.Direction = models.Direction(dir)
		return s, err
	})
}
