package workload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workloadRowsLoadedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketwarden_workload_rows_loaded_total",
			Help: "Total number of rows written by the bulk load",
		},
	)

	workloadCommitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketwarden_workload_commits_total",
			Help: "Total number of bulk load commits",
		},
	)

	workloadPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketwarden_workload_polls_total",
			Help: "Total number of poll queries by outcome",
		},
		[]string{"outcome"},
	)

	workloadWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketwarden_workload_warnings_total",
			Help: "Total number of data validation warnings by kind",
		},
		[]string{"kind"},
	)
)

func recordPoll(outcome string) {
	workloadPollsTotal.WithLabelValues(outcome).Inc()
}

func recordWarning(kind WarningKind) {
	workloadWarningsTotal.WithLabelValues(string(kind)).Inc()
}
