package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reconciliationWarningsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cart_reconciliation_warnings_total",
		Help: "Total number of cart mutations adjusted to fit catalog constraints",
	},
	[]string{"code"},
)
