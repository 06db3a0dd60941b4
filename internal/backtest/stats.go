package backtest

import (
	"math"
	"sort"

	"signal_bot/internal/models"
)

// Stats: свёртка по закрытым сделкам. Убыточной считается сделка с pnl <= 0.
type Stats struct {
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	WinRate        float64 `json:"win_rate"`
	GrossProfit    float64 `json:"gross_profit"`
	GrossLoss      float64 `json:"gross_loss"`
	NetProfit      float64 `json:"net_profit"`
	ProfitFactor   float64 `json:"profit_factor"`
	AvgWin         float64 `json:"avg_win"`
	AvgLoss        float64 `json:"avg_loss"`
	LargestWin     float64 `json:"largest_win"`
	LargestLoss    float64 `json:"largest_loss"`
	AvgRR          float64 `json:"avg_rr"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	TotalReturn    float64 `json:"total_return"`
}

type RuleStats struct {
	Rule string `json:"rule"`
	Stats
}

const tradingDays = 252

func computeStats(trades []models.TradeRecord, initial float64, curve []float64) Stats {
	var st Stats
	st.TotalTrades = len(trades)
	st.MaxDrawdown, st.MaxDrawdownPct = drawdown(curve)
	if st.TotalTrades == 0 {
		return st
	}

	var rrSum float64
	returns := make([]float64, 0, len(trades))
	for _, t := range trades {
		st.NetProfit += t.PnL
		rrSum += t.PlannedRR
		returns = append(returns, t.PnL/initial)

		if t.Win() {
			st.WinningTrades++
			st.GrossProfit += t.PnL
			if t.PnL > st.LargestWin {
				st.LargestWin = t.PnL
			}
			continue
		}
		st.LosingTrades++
		st.GrossLoss += -t.PnL
		if t.PnL < st.LargestLoss {
			st.LargestLoss = t.PnL
		}
	}

	st.WinRate = float64(st.WinningTrades) / float64(st.TotalTrades) * 100
	if st.GrossLoss > 0 {
		st.ProfitFactor = st.GrossProfit / st.GrossLoss
	}
	if st.WinningTrades > 0 {
		st.AvgWin = st.GrossProfit / float64(st.WinningTrades)
	}
	if st.LosingTrades > 0 {
		st.AvgLoss = st.GrossLoss / float64(st.LosingTrades)
	}
	st.AvgRR = rrSum / float64(st.TotalTrades)
	st.SharpeRatio = sharpe(returns)
	st.TotalReturn = st.NetProfit / initial
	return st
}

// drawdown: максимальная просадка от пика, в деньгах и в % от наибольшего пика.
func drawdown(curve []float64) (abs, pct float64) {
	if len(curve) == 0 {
		return 0, 0
	}
	peak := curve[0]
	maxPeak := peak
	for _, eq := range curve {
		if eq > peak {
			peak = eq
		}
		if peak > maxPeak {
			maxPeak = peak
		}
		if dd := peak - eq; dd > abs {
			abs = dd
		}
	}
	if maxPeak > 0 {
		pct = abs / maxPeak * 100
	}
	return abs, pct
}

// sharpe: среднее/σ (по генеральной совокупности) · √252; 0, если считать не из чего.
func sharpe(returns []float64) float64 {
	n := float64(len(returns))
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= n

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / n)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDays)
}

// perRuleStats: та же свёртка по сделкам каждого правила; просадка считается
// по кривой реализованного P&L правила.
func perRuleStats(trades []models.TradeRecord, initial float64) []RuleStats {
	byRule := make(map[string][]models.TradeRecord)
	for _, t := range trades {
		byRule[t.Strategy] = append(byRule[t.Strategy], t)
	}

	names := make([]string, 0, len(byRule))
	for name := range byRule {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]RuleStats, 0, len(names))
	for _, name := range names {
		rt := byRule[name]
		curve := make([]float64, 0, len(rt)+1)
		eq := initial
		curve = append(curve, eq)
		for _, t := range rt {
			eq += t.PnL
			curve = append(curve, eq)
		}
		out = append(out, RuleStats{Rule: name, Stats: computeStats(rt, initial, curve)})
	}
	return out
}
