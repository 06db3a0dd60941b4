package backtest

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

func (r *Result) JSON() ([]byte, error) {
	b, err := sonic.ConfigStd.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal backtest result")
	}
	return b, nil
}

// WriteJSON сохраняет полный отчёт: статистика, сделки, кривая equity.
func (r *Result) WriteJSON(path string) error {
	b, err := r.JSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrap(err, "write backtest report")
	}
	return nil
}

func (r *Result) Summary() string {
	st := r.Stats
	var b strings.Builder

	line := strings.Repeat("─", 60)
	fmt.Fprintf(&b, "BACKTEST RESULTS\n%s\n", line)
	fmt.Fprintf(&b, "Period:            %s → %s (%d candles)\n",
		r.Start.Format("2006-01-02 15:04"), r.End.Format("2006-01-02 15:04"), r.Candles)
	fmt.Fprintf(&b, "Initial balance:   %.2f\n", r.InitialBalance)
	fmt.Fprintf(&b, "Final balance:     %.2f\n", r.FinalBalance)
	fmt.Fprintf(&b, "Net profit:        %.2f (%.2f%%)\n", st.NetProfit, st.TotalReturn*100)

	fmt.Fprintf(&b, "\nTRADES\n%s\n", line)
	fmt.Fprintf(&b, "Total:             %d\n", st.TotalTrades)
	fmt.Fprintf(&b, "Winning / losing:  %d / %d\n", st.WinningTrades, st.LosingTrades)
	fmt.Fprintf(&b, "Win rate:          %.2f%%\n", st.WinRate)
	fmt.Fprintf(&b, "Profit factor:     %.2f\n", st.ProfitFactor)
	fmt.Fprintf(&b, "Avg win / loss:    %.2f / %.2f\n", st.AvgWin, st.AvgLoss)
	fmt.Fprintf(&b, "Largest win/loss:  %.2f / %.2f\n", st.LargestWin, st.LargestLoss)
	fmt.Fprintf(&b, "Avg R:R:           %.2f\n", st.AvgRR)

	fmt.Fprintf(&b, "\nRISK\n%s\n", line)
	fmt.Fprintf(&b, "Max drawdown:      %.2f (%.2f%%)\n", st.MaxDrawdown, st.MaxDrawdownPct)
	fmt.Fprintf(&b, "Sharpe ratio:      %.2f\n", st.SharpeRatio)

	if len(r.PerRule) > 0 {
		fmt.Fprintf(&b, "\nPER RULE\n%s\n", line)
		tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "RULE\tTRADES\tWIN%\tPF\tNET\tMAX DD")
		for _, rs := range r.PerRule {
			fmt.Fprintf(tw, "%s\t%d\t%.1f\t%.2f\t%.2f\t%.2f\n",
				rs.Rule, rs.TotalTrades, rs.WinRate, rs.ProfitFactor, rs.NetProfit, rs.MaxDrawdown)
		}
		_ = tw.Flush()
	}
	return b.String()
}
