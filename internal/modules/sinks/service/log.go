package service

import (
	"context"

	"go.uber.org/zap"

	"signal_bot/internal/models"
	"signal_bot/pkg/logger"
)

// LogSink пишет по структурной строке на сигнал.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(l *zap.Logger) *LogSink {
	if l == nil {
		l = logger.With(zap.String("sink", "log"))
	}
	return &LogSink{log: l}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Receive(_ context.Context, sig models.ValidatedSignal) error {
	s.log.Info("signal",
		zap.String("id", sig.ID),
		zap.String("symbol", sig.Symbol),
		zap.String("timeframe", sig.Timeframe),
		zap.String("strategy", sig.Strategy),
		zap.String("direction", string(sig.Direction)),
		zap.Float64("entry", sig.Entry),
		zap.Float64("stop_loss", sig.StopLoss),
		zap.Float64("take_profit", sig.TakeProfit),
		zap.Float64("rr", sig.RR),
		zap.Float64("confidence", sig.Confidence),
		zap.Time("candle_time", sig.CandleTime),
	)
	return nil
}
