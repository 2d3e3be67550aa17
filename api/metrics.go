// metrics.go - Prometheus counters for the hour-tracking operations.
package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hours_reservations_total",
		Help: "Ledger reservations by outcome (created, skipped, rejected, over_budget).",
	}, []string{"outcome"})

	completionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hours_completions_total",
		Help: "Reservation completions by outcome (consumed, skipped, error).",
	}, []string{"outcome"})

	cancellationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hours_cancellations_total",
		Help: "Session cancellations by applied clause.",
	}, []string{"clause", "ledger_status"})

	fxRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hours_fx_refreshes_total",
		Help: "Manual FX refreshes by result (ok, error).",
	}, []string{"result"})
)
