package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AppliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idxsync_applies_total",
			Help: "Apply calls by result",
		},
		[]string{"result"}, // synced|deferred|deduped|superseded|rejected
	)

	ReconcilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idxsync_reconciles_total",
			Help: "Reconcile attempts by outcome",
		},
		[]string{"outcome"}, // synced|retried|dead
	)

	BacklogGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "idxsync_backlog",
			Help: "Sync status rows by non-terminal state",
		},
		[]string{"state"}, // pending|failed|dead
	)

	OldestUnsyncedAge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "idxsync_oldest_unsynced_seconds",
			Help: "Age of the oldest row not yet synced",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		AppliesTotal,
		ReconcilesTotal,
		BacklogGauge,
		OldestUnsyncedAge,
	)
}
