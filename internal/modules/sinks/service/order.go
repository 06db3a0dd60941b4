package service

import (
	"fmt"
	"strings"

	signals "signal_bot/internal/modules/signals/service"
	"signal_bot/pkg/logger"
)

var knownSinks = map[string]struct{}{
	"postgres":  {},
	"log":       {},
	"console":   {},
	"telegram":  {},
	"kafka":     {},
	"execution": {},
}

// Ordered раскладывает доступные синки в заданном порядке. Имя без
// настроенного синка пропускается, неизвестное имя: ошибка.
func Ordered(order []string, available map[string]signals.Sink) ([]signals.Sink, error) {
	seen := make(map[string]struct{}, len(order))
	out := make([]signals.Sink, 0, len(order))
	for _, raw := range order {
		name := strings.ToLower(strings.TrimSpace(raw))
		if _, ok := knownSinks[name]; !ok {
			return nil, fmt.Errorf("unknown sink %q", raw)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("sink %q listed twice", name)
		}
		seen[name] = struct{}{}

		s, ok := available[name]
		if !ok || s == nil {
			logger.Warn("[SINKS] %s is not configured, skipped", name)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
