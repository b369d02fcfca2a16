/*
Package metrics exports page state events as Prometheus metrics.

# Overview

Collector implements types.MetricsRecorder, so page stores, the session
registry, the version manager and the render engine report into it without
importing Prometheus themselves.

	┌───────────┐ ┌──────────┐ ┌─────────┐ ┌────────┐
	│ PageStore │ │ Registry │ │ Manager │ │ Engine │
	└─────┬─────┘ └────┬─────┘ └────┬────┘ └───┬────┘
	      └────────────┴─────┬──────┴──────────┘
	                  ┌──────▼──────┐
	                  │  Collector  │
	                  └──────┬──────┘
	                  ┌──────▼──────┐
	                  │  Registry   │ ── GET /metrics
	                  └─────────────┘

# Metrics

Counters:

	page_store_operations_total{operation,result}
	page_store_operation_duration_seconds{operation}   (histogram)
	page_evictions_total{policy}
	versions_expired_total
	render_decisions_total{action}

Gauges, summed over all sessions:

	page_table_pages
	page_table_bytes
	sessions_active

Table gauges move by deltas reported from each page table, so they stay
correct without walking every session.

# Usage

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Namespace: "pagestate",
	})
	if err != nil {
		return err
	}
	router.Handle("/metrics", collector.Handler())

Each collector owns its own prometheus.Registry. A disabled collector drops
every event and its Handler answers 404.
*/
package metrics
