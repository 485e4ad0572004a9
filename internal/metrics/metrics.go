package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for investigation metrics.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

var (
	investigationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultlens",
			Name:      "investigations_total",
			Help:      "Total number of investigations handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	investigationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "faultlens",
			Name:      "investigation_seconds",
			Help:      "Investigation latency in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
	)

	analyzerFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultlens",
			Name:      "analyzer_failures_total",
			Help:      "Analyzer branch failures, partitioned by analyzer identity.",
		},
		[]string{"analyzer"},
	)

	reasonerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultlens",
			Name:      "reasoner_calls_total",
			Help:      "Reasoning service calls, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	governorWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "faultlens",
			Name:      "governor_wait_seconds",
			Help:      "Time callers spent waiting on the rate governor.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	remediationDispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultlens",
			Name:      "remediation_dispatches_total",
			Help:      "Remediation dispatch attempts, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches faultlens collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		investigationsTotal,
		investigationDurationSeconds,
		analyzerFailuresTotal,
		reasonerCallsTotal,
		governorWaitSeconds,
		remediationDispatchesTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveInvestigation records an investigation duration and outcome label.
func ObserveInvestigation(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeError, OutcomeCancelled:
	default:
		outcome = OutcomeSuccess
	}
	investigationsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	investigationDurationSeconds.Observe(duration.Seconds())
}

// ObserveAnalyzerFailure counts a failed analyzer branch.
func ObserveAnalyzerFailure(analyzer string) {
	analyzerFailuresTotal.WithLabelValues(analyzer).Inc()
}

// ObserveReasonerCall counts a reasoning service call by outcome.
func ObserveReasonerCall(outcome string) {
	if outcome != OutcomeError {
		outcome = OutcomeSuccess
	}
	reasonerCallsTotal.WithLabelValues(outcome).Inc()
}

// ObserveGovernorWait records how long a caller waited for a permit.
func ObserveGovernorWait(d time.Duration) {
	if d < 0 {
		d = 0
	}
	governorWaitSeconds.Observe(d.Seconds())
}

// ObserveRemediationDispatch counts a remediation attempt by outcome.
func ObserveRemediationDispatch(outcome string) {
	if outcome != OutcomeError {
		outcome = OutcomeSuccess
	}
	remediationDispatchesTotal.WithLabelValues(outcome).Inc()
}
