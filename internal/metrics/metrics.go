// Package metrics registers the explorer's Prometheus series:
//
//	swapscope_cache_lookups_total{cache,result}
//	swapscope_source_requests_total{source,outcome}
//	swapscope_refreshes_total{trigger}
//	swapscope_catalog_pages_total
//	swapscope_active_sessions
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "swapscope"

var (
	once sync.Once

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result (hit, miss, shared).",
		},
		[]string{"cache", "result"},
	)

	sourceRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Upstream requests by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	refreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Price pair refreshes by trigger (auto, manual).",
		},
		[]string{"trigger"},
	)

	catalogPages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_pages_total",
			Help:      "Catalog pages fetched.",
		},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Open explorer sessions.",
		},
	)
)

// Register adds the explorer collectors to reg once. A nil reg uses the default registerer.
func Register(reg prometheus.Registerer) {
	once.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		_ = reg.Register(cacheLookups)
		_ = reg.Register(sourceRequests)
		_ = reg.Register(refreshes)
		_ = reg.Register(catalogPages)
		_ = reg.Register(activeSessions)
	})
}

// CacheLookup counts a cache lookup result.
func CacheLookup(cache, result string) {
	cacheLookups.WithLabelValues(cache, result).Inc()
}

// SourceRequest counts an upstream request outcome.
func SourceRequest(source, outcome string) {
	sourceRequests.WithLabelValues(source, outcome).Inc()
}

// Refresh counts a pair refresh.
func Refresh(trigger string) {
	refreshes.WithLabelValues(trigger).Inc()
}

// CatalogPage counts a fetched catalog page.
func CatalogPage() {
	catalogPages.Inc()
}

// SessionOpened increments the active session gauge.
func SessionOpened() {
	activeSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func SessionClosed() {
	activeSessions.Dec()
}
