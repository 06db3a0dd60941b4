package service

import (
	"fmt"
	"strings"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"signal_bot/internal/models"
	health "signal_bot/internal/modules/health/service"
)

const helpText = "*Сигнальный бот*\n\n" +
	"/status: состояние воркеров\n" +
	"/last: последние сигналы"

func formatSignal(s models.ValidatedSignal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s %s* `%s`\n\n", dirEmoji(s.Direction), s.Symbol, s.Direction, s.Timeframe)
	fmt.Fprintf(&b, "Стратегия: `%s`\n", s.Strategy)
	fmt.Fprintf(&b, "Вход: `%s`\n", f2(s.Entry))
	fmt.Fprintf(&b, "SL: `%s` (%s пп)\n", f2(s.StopLoss), f2(s.RiskPips))
	fmt.Fprintf(&b, "TP: `%s` (%s пп)\n", f2(s.TakeProfit), f2(s.RewardPips))
	fmt.Fprintf(&b, "R:R: `1:%s`\n", f2(s.RR))
	fmt.Fprintf(&b, "Уверенность: %s `%.0f%%`\n", stars(s.Confidence), s.Confidence*100)
	if s.Rationale != "" {
		fmt.Fprintf(&b, "\n%s\n", tgbot.EscapeText(tgbot.ModeMarkdown, s.Rationale))
	}
	fmt.Fprintf(&b, "\nСвеча: %s", s.CandleTime.UTC().Format("2006-01-02 15:04 UTC"))
	return b.String()
}

func formatStatus(state *health.State, now time.Time) string {
	if state == nil {
		return "Статус недоступен"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*📊 Статус*\n\nГотов: *%s*\nUptime: `%s`\n", onOff(state.Ready()), state.Uptime().Round(time.Second))
	forwarded, suppressed := state.DedupCounters()
	fmt.Fprintf(&b, "Сигналов: `%d`, дублей: `%d`\n\n", forwarded, suppressed)

	workers := state.Workers()
	if len(workers) == 0 {
		b.WriteString("Воркеры ещё не стартовали")
		return b.String()
	}
	for _, w := range workers {
		fmt.Fprintf(&b, "`%-4s` %s", w.Timeframe, w.State)
		if !w.LastCandle.IsZero() {
			fmt.Fprintf(&b, ", свеча %s назад", now.Sub(w.LastCandle).Round(time.Minute))
		}
		if w.LastPrice > 0 {
			fmt.Fprintf(&b, ", цена %s", f2(w.LastPrice))
		}
		if w.Failures > 0 {
			fmt.Fprintf(&b, ", ошибок подряд: %d", w.Failures)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatLatest(sigs []models.ValidatedSignal) string {
	if len(sigs) == 0 {
		return "📭 Сигналов пока нет"
	}
	var b strings.Builder
	b.WriteString("*Последние сигналы*\n\n")
	for _, s := range sigs {
		fmt.Fprintf(&b, "%s `%s` %s `%s` @ %s (SL %s / TP %s), %s\n",
			dirEmoji(s.Direction), s.Timeframe, s.Direction, s.Strategy,
			f2(s.Entry), f2(s.StopLoss), f2(s.TakeProfit),
			s.ValidatedAt.UTC().Format("01-02 15:04"))
	}
	return b.String()
}
