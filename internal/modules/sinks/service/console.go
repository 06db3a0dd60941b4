package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"signal_bot/internal/models"
)

// ConsoleSink печатает человекочитаемый блок.
type ConsoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsoleSink(out io.Writer) *ConsoleSink {
	return &ConsoleSink{out: out}
}

func (s *ConsoleSink) Name() string { return "console" }

func (s *ConsoleSink) Receive(_ context.Context, sig models.ValidatedSignal) error {
	var b strings.Builder
	line := strings.Repeat("=", 60)
	fmt.Fprintf(&b, "%s\n", line)
	fmt.Fprintf(&b, "%s %s  [%s]  %s\n", sig.Direction, sig.Symbol, sig.Timeframe, sig.Strategy)
	fmt.Fprintf(&b, "candle:  %s\n", sig.CandleTime.UTC().Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "entry:   %.2f\n", sig.Entry)
	fmt.Fprintf(&b, "sl:      %.2f (%.1f pips)\n", sig.StopLoss, sig.RiskPips)
	fmt.Fprintf(&b, "tp:      %.2f (%.1f pips)\n", sig.TakeProfit, sig.RewardPips)
	fmt.Fprintf(&b, "rr:      1:%.2f  confidence %.0f%%\n", sig.RR, sig.Confidence*100)
	if sig.Rationale != "" {
		fmt.Fprintf(&b, "why:     %s\n", sig.Rationale)
	}
	fmt.Fprintf(&b, "%s\n", line)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.out, b.String())
	return err
}
