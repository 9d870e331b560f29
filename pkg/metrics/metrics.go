// Package metrics registers the prometheus instruments shared across the
// services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsStored counts events handed to the store, per relay outcome not
	// deduplicated, so it tracks crawl throughput rather than table growth.
	EventsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bigbrotr_events_stored_total",
		Help: "Events persisted by crawls, before dedup.",
	})

	// CrawlsTotal counts finished relay crawls by outcome.
	CrawlsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bigbrotr_crawls_total",
		Help: "Relay crawls finished, labeled by outcome.",
	}, []string{"outcome"})

	// ProbesTotal counts finished relay probes by outcome.
	ProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bigbrotr_probes_total",
		Help: "Relay probes finished, labeled by outcome.",
	}, []string{"outcome"})

	// Bisections counts window splits across all crawls.
	Bisections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bigbrotr_bisections_total",
		Help: "Crawl windows split because the response cap was hit.",
	})

	// OrphansDeleted counts events removed by the orphan sweep.
	OrphansDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bigbrotr_orphan_events_deleted_total",
		Help: "Events deleted for having no relay association.",
	})

	// FailureRate is the rolling relay failure rate the tracker reports.
	FailureRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bigbrotr_relay_failure_rate",
		Help: "Failure rate over the most recent relay outcomes.",
	})
)
