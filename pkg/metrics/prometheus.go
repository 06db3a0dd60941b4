package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики регистрируются один раз на процесс в default registry.
var (
	candlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_bot_candles_total",
			Help: "Closed candles evaluated by timeframe workers",
		},
		[]string{"timeframe"},
	)
	candidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_bot_candidates_total",
			Help: "Candidate signals produced by rules",
		},
		[]string{"timeframe", "rule"},
	)
	ruleFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_bot_rule_failures_total",
			Help: "Rule evaluations that returned an error or panicked",
		},
		[]string{"rule"},
	)
	rejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_bot_rejections_total",
			Help: "Candidates rejected by the validator",
		},
		[]string{"timeframe", "reason"},
	)
	dedupTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_bot_dedup_total",
			Help: "Deduplicator outcomes",
		},
		[]string{"outcome"},
	)
	sinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_bot_sink_errors_total",
			Help: "Sink deliveries that failed",
		},
		[]string{"sink"},
	)
	sourceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_bot_source_errors_total",
			Help: "Candle source failures",
		},
		[]string{"timeframe", "op"},
	)
	lastPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "signal_bot_last_price",
			Help: "Last polled price",
		},
		[]string{"symbol"},
	)
	workerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "signal_bot_worker_state",
			Help: "Worker state code (0 disconnected, 1 idle, 2 waiting, 3 evaluating, 4 stopped)",
		},
		[]string{"timeframe"},
	)
	evalLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signal_bot_evaluation_duration_seconds",
			Help:    "Duration of one candle evaluation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"timeframe"},
	)
)

func RecordCandle(timeframe string) {
	candlesTotal.WithLabelValues(timeframe).Inc()
}

func RecordCandidate(timeframe, rule string) {
	candidatesTotal.WithLabelValues(timeframe, rule).Inc()
}

func RecordRuleFailure(rule string) {
	ruleFailures.WithLabelValues(rule).Inc()
}

func RecordRejection(timeframe, reason string) {
	rejectionsTotal.WithLabelValues(timeframe, reason).Inc()
}

func RecordForwarded() {
	dedupTotal.WithLabelValues("forwarded").Inc()
}

func RecordSuppressed() {
	dedupTotal.WithLabelValues("suppressed").Inc()
}

func RecordSinkError(sink string) {
	sinkErrors.WithLabelValues(sink).Inc()
}

func RecordSourceError(timeframe, op string) {
	sourceErrors.WithLabelValues(timeframe, op).Inc()
}

func RecordLastPrice(symbol string, price float64) {
	lastPrice.WithLabelValues(symbol).Set(price)
}

func RecordWorkerState(timeframe string, code int) {
	workerState.WithLabelValues(timeframe).Set(float64(code))
}

// RecordEvaluation records one evaluation latency in seconds.
func RecordEvaluation(timeframe string, seconds float64) {
	evalLatency.WithLabelValues(timeframe).Observe(seconds)
}
