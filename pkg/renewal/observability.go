package renewal

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	renewalAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketwarden_renewal_attempts_total",
			Help: "Total number of credential renewal attempts",
		},
		[]string{"task", "outcome"},
	)

	renewalPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketwarden_renewal_panics_total",
			Help: "Total number of panics recovered in the renewal loop",
		},
		[]string{"task"},
	)

	renewalRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ticketwarden_renewal_running",
			Help: "Whether the renewal task is running",
		},
		[]string{"task"},
	)

	renewalLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ticketwarden_renewal_last_success_timestamp_seconds",
			Help: "Unix time of the last successful renewal attempt",
		},
		[]string{"task"},
	)
)

func recordRenewalAttempt(task, outcome string) {
	renewalAttemptsTotal.WithLabelValues(normalizeRenewalLabel(task), normalizeRenewalLabel(outcome)).Inc()
	if outcome == "success" {
		renewalLastSuccess.WithLabelValues(normalizeRenewalLabel(task)).SetToCurrentTime()
	}
}

func recordRenewalPanic(task string) {
	renewalPanicsTotal.WithLabelValues(normalizeRenewalLabel(task)).Inc()
}

func setRenewalRunning(task string, running bool) {
	value := 0.0
	if running {
		value = 1
	}
	renewalRunning.WithLabelValues(normalizeRenewalLabel(task)).Set(value)
}

func normalizeRenewalLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
