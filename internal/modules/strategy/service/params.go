package service

// Params содержит тюнинги всех правил, значения по умолчанию в DefaultParams.
type Params struct {
	// Enabled: явный список включённых правил, порядок = порядок оценки.
	Enabled []string `yaml:"enabled"`

	SwingLookback    int     `yaml:"swing_lookback" validate:"gte=1"`
	SwingMinStrength int     `yaml:"swing_min_strength" validate:"gte=1"`
	TrendLookback    int     `yaml:"trend_lookback" validate:"gte=10"`
	ATRPeriod        int     `yaml:"atr_period" validate:"gte=2"`
	RSIPeriod        int     `yaml:"rsi_period" validate:"gte=2"`
	EMAPeriod        int     `yaml:"ema_period" validate:"gte=2"`
	TakeProfitRR     float64 `yaml:"take_profit_rr" validate:"gt=0"`

	FibRetest  FibRetestParams  `yaml:"fib_retest"`
	Momentum   MomentumParams   `yaml:"momentum_equilibrium"`
	Golden     GoldenParams     `yaml:"golden_fibonacci"`
	London     LondonParams     `yaml:"london_session_breakout"`
	ATH        ATHParams        `yaml:"ath_retest"`
	OrderBlock OrderBlockParams `yaml:"order_block_retest"`
}

type FibRetestParams struct {
	Level              float64 `yaml:"level"`
	Tolerance          float64 `yaml:"tolerance"`
	BreakoutLookback   int     `yaml:"breakout_lookback"`
	RetestLookback     int     `yaml:"retest_lookback"`
	RetestTolerancePct float64 `yaml:"retest_tolerance_pct"`
	// SL = swing low - ATRBuffer*ATR
	ATRBuffer float64 `yaml:"atr_buffer"`
}

type MomentumParams struct {
	Level      float64 `yaml:"level"`
	Tolerance  float64 `yaml:"tolerance"`
	StopLevel  float64 `yaml:"stop_level"`
	ImpulseATR float64 `yaml:"impulse_atr"`
	ATRBuffer  float64 `yaml:"atr_buffer"`
}

type GoldenParams struct {
	Level     float64 `yaml:"level"`
	Tolerance float64 `yaml:"tolerance"`
	StopLevel float64 `yaml:"stop_level"`
	ATRBuffer float64 `yaml:"atr_buffer"`
}

type LondonParams struct {
	AsiaStartHour   int     `yaml:"asia_start_hour"`
	AsiaEndHour     int     `yaml:"asia_end_hour"`
	LondonStartHour int     `yaml:"london_start_hour"`
	LondonEndHour   int     `yaml:"london_end_hour"`
	MinRangeATR     float64 `yaml:"min_range_atr"`
	MaxStopATR      float64 `yaml:"max_stop_atr"`
	// пробой подтверждается закрытием дальше границы на ThresholdPct % ширины диапазона
	ThresholdPct float64 `yaml:"threshold_pct"`
}

type ATHParams struct {
	Lookback           int     `yaml:"lookback"`
	BreakoutWithin     int     `yaml:"breakout_within"`
	RetestTolerancePct float64 `yaml:"retest_tolerance_pct"`
	ATRBuffer          float64 `yaml:"atr_buffer"`
}

type OrderBlockParams struct {
	Lookback     int     `yaml:"lookback"`
	ImpulseATR   float64 `yaml:"impulse_atr"`
	TolerancePct float64 `yaml:"tolerance_pct"`
	ATRBuffer    float64 `yaml:"atr_buffer"`
}

func DefaultParams() Params {
	return Params{
		Enabled: []string{
			RuleFibRetest,
			RuleMomentumEquilibrium,
			RuleLondonBreakout,
			RuleGoldenFibonacci,
			RuleATHRetest,
			RuleOrderBlockRetest,
		},
		SwingLookback:    5,
		SwingMinStrength: 2,
		TrendLookback:    50,
		ATRPeriod:        14,
		RSIPeriod:        14,
		EMAPeriod:        50,
		TakeProfitRR:     2.0,
		FibRetest: FibRetestParams{
			Level:              0.786,
			Tolerance:          0.02,
			BreakoutLookback:   20,
			RetestLookback:     10,
			RetestTolerancePct: 0.3,
			ATRBuffer:          0.5,
		},
		Momentum: MomentumParams{
			Level:      0.5,
			Tolerance:  0.03,
			StopLevel:  0.786,
			ImpulseATR: 1.5,
			ATRBuffer:  0.25,
		},
		Golden: GoldenParams{
			Level:     0.618,
			Tolerance: 0.02,
			StopLevel: 0.886,
			ATRBuffer: 0.25,
		},
		London: LondonParams{
			AsiaStartHour:   0,
			AsiaEndHour:     7,
			LondonStartHour: 7,
			LondonEndHour:   10,
			MinRangeATR:     0.5,
			MaxStopATR:      2.0,
			ThresholdPct:    5,
		},
		ATH: ATHParams{
			Lookback:           150,
			BreakoutWithin:     20,
			RetestTolerancePct: 0.3,
			ATRBuffer:          0.5,
		},
		OrderBlock: OrderBlockParams{
			Lookback:     30,
			ImpulseATR:   1.5,
			TolerancePct: 0.1,
			ATRBuffer:    0.3,
		},
	}
}

// minWindow: общий минимум истории для правил, опирающихся на тренд по свингам.
func (p Params) minWindow() int {
	n := p.TrendLookback
	if n < 50 {
		n = 50
	}
	return n + 1
}
