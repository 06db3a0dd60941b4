package service

import (
	"fmt"
	"strings"
)

const (
	RuleFibRetest           = "fib_retest"
	RuleMomentumEquilibrium = "momentum_equilibrium"
	RuleLondonBreakout      = "london_session_breakout"
	RuleGoldenFibonacci     = "golden_fibonacci"
	RuleATHRetest           = "ath_retest"
	RuleOrderBlockRetest    = "order_block_retest"
)

// KnownRules: закрытый набор реализаций.
func KnownRules() []string {
	return []string{
		RuleFibRetest,
		RuleMomentumEquilibrium,
		RuleLondonBreakout,
		RuleGoldenFibonacci,
		RuleATHRetest,
		RuleOrderBlockRetest,
	}
}

func newRule(name string, p Params) (Rule, error) {
	switch name {
	case RuleFibRetest:
		return NewFibRetest(p), nil
	case RuleMomentumEquilibrium:
		return NewMomentumEquilibrium(p), nil
	case RuleLondonBreakout:
		return NewLondonBreakout(p), nil
	case RuleGoldenFibonacci:
		return NewGoldenFibonacci(p), nil
	case RuleATHRetest:
		return NewATHRetest(p), nil
	case RuleOrderBlockRetest:
		return NewOrderBlockRetest(p), nil
	}
	return nil, fmt.Errorf("unknown rule %q (known: %s)", name, strings.Join(KnownRules(), ", "))
}

// BuildRules собирает явный список включённых правил. Неизвестное имя
// или повтор: ошибка конфигурации.
func BuildRules(p Params) ([]Rule, error) {
	if len(p.Enabled) == 0 {
		return nil, fmt.Errorf("no rules enabled")
	}
	seen := make(map[string]bool, len(p.Enabled))
	out := make([]Rule, 0, len(p.Enabled))
	for _, raw := range p.Enabled {
		name := strings.TrimSpace(strings.ToLower(raw))
		if seen[name] {
			return nil, fmt.Errorf("rule %q enabled twice", name)
		}
		seen[name] = true

		r, err := newRule(name, p)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
