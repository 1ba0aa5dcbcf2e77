// Package metrics exposes prometheus counters for the reconciliation
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	TransactionsImported *prometheus.CounterVec
	DuplicatesSkipped    *prometheus.CounterVec
	ImportErrors         prometheus.Counter

	AssignmentsCreated  *prometheus.CounterVec
	AssignmentsReversed prometheus.Counter
	TransactionsIgnored prometheus.Counter

	RecomputeFailures prometheus.Counter
	RecomputeRetries  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TransactionsImported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zahlungsabgleich_transactions_imported_total",
			Help: "Transactions imported, by source module.",
		}, []string{"source"}),
		DuplicatesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zahlungsabgleich_duplicates_skipped_total",
			Help: "Import records skipped as duplicates, by source module.",
		}, []string{"source"}),
		ImportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zahlungsabgleich_import_errors_total",
			Help: "Malformed import records.",
		}),
		AssignmentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zahlungsabgleich_assignments_created_total",
			Help: "Assignments created, by method.",
		}, []string{"method"}),
		AssignmentsReversed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zahlungsabgleich_assignments_reversed_total",
			Help: "Assignments reversed.",
		}),
		TransactionsIgnored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zahlungsabgleich_transactions_ignored_total",
			Help: "Transactions marked as ignored.",
		}),
		RecomputeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zahlungsabgleich_recompute_failures_total",
			Help: "Failed ERP balance recompute calls.",
		}),
		RecomputeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zahlungsabgleich_recompute_retries_total",
			Help: "Manual recompute retries.",
		}),
	}

	m.registry.MustRegister(
		m.TransactionsImported,
		m.DuplicatesSkipped,
		m.ImportErrors,
		m.AssignmentsCreated,
		m.AssignmentsReversed,
		m.TransactionsIgnored,
		m.RecomputeFailures,
		m.RecomputeRetries,
	)
	return m
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
