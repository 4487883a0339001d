package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Outcome is the label used to partition counters by result.
	Outcome = "outcome"

	// Succeeded is the Outcome value for successful operations.
	Succeeded = "succeeded"

	// Failed is the Outcome value for failed operations.
	Failed = "failed"
)

var (
	healthPollCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_health_poll_count",
			Help: "Number of subscription health poll iterations performed.",
		},
	)

	catalogRemediationCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_remediation_count",
			Help: "Number of unhealthy catalog source deletions attempted, by outcome.",
		},
		[]string{Outcome},
	)

	subscriptionResolutionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_resolution_count",
			Help: "Number of completed subscription monitoring sessions, by outcome.",
		},
		[]string{Outcome},
	)

	csvWaitCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csv_wait_count",
			Help: "Number of completed CSV terminal-phase waits, by outcome.",
		},
		[]string{Outcome},
	)
)

// RegisterDeploy registers the deploy pipeline's metrics with the default registry.
func RegisterDeploy() {
	prometheus.MustRegister(healthPollCount)
	prometheus.MustRegister(catalogRemediationCount)
	prometheus.MustRegister(subscriptionResolutionCount)
	prometheus.MustRegister(csvWaitCount)
}

// EmitHealthPoll counts one subscription health poll iteration.
func EmitHealthPoll() {
	healthPollCount.Inc()
}

// EmitCatalogRemediation counts one catalog source deletion attempt.
func EmitCatalogRemediation(outcome string) {
	catalogRemediationCount.WithLabelValues(outcome).Inc()
}

// EmitResolutionOutcome counts one finished monitoring session.
func EmitResolutionOutcome(outcome string) {
	subscriptionResolutionCount.WithLabelValues(outcome).Inc()
}

// EmitCSVWaitOutcome counts one finished CSV terminal-phase wait.
func EmitCSVWaitOutcome(outcome string) {
	csvWaitCount.WithLabelValues(outcome).Inc()
}
