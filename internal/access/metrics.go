package access

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	conflictRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_conflict_retries_total",
			Help: "Total number of cart mutations retried after a concurrent modification",
		},
		[]string{"operation"},
	)

	conflictsExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_conflicts_exhausted_total",
			Help: "Total number of cart mutations that failed after exhausting conflict retries",
		},
		[]string{"operation"},
	)
)
