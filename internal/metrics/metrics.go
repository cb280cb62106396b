// Package metrics exposes the monitor's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle results.
const (
	ResultOK      = "ok"
	ResultPaused  = "paused"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gets_monitor_cycles_total",
		Help: "Scrape cycles by result",
	}, []string{"result"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gets_monitor_cycle_duration_seconds",
		Help:    "Duration of a scrape cycle from reload to cache maintenance",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
	})

	RowsScraped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gets_monitor_rows_scraped_total",
		Help: "Rows parsed from the portal",
	})

	WritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gets_monitor_writes_total",
		Help: "Durable upserts by trigger",
	}, []string{"trigger"})

	StoreErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gets_monitor_store_errors_total",
		Help: "Failed durable store operations",
	})

	HistoryEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gets_monitor_history_entries_total",
		Help: "History entries appended by field",
	}, []string{"field"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gets_monitor_cache_lookups_total",
		Help: "Change detection outcomes",
	}, []string{"outcome"})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gets_monitor_cache_evictions_total",
		Help: "Entries evicted for exceeding the TTL",
	})

	CacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gets_monitor_cache_size",
		Help: "Orders currently held in the record cache",
	})

	SessionRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gets_monitor_session_recoveries_total",
		Help: "Session recovery attempts by status",
	}, []string{"status"})

	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gets_monitor_alerts_total",
		Help: "Chat alerts by delivery status",
	}, []string{"status"})

	Running = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gets_monitor_running",
		Help: "1 while the scrape loop is running",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gets_monitor_http_requests_total",
		Help: "Admin API requests by method, route and status",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gets_monitor_http_request_duration_seconds",
		Help:    "Admin API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// BoolGauge converts a flag to a gauge value.
func BoolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
