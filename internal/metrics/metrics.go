// Package metrics registers the Prometheus collectors exported by the
// movie ratings service. Collectors are registered on the default registry
// at init through promauto and served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "movieratings"

// HTTPRequestDuration measures handler latency.
// Labels:
//   - method: HTTP verb
//   - route: chi route pattern (e.g. "/movies/{id}/ratings")
//   - status: response status code
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests by route and status.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// RatingsSubmittedTotal counts rating submissions.
// Label:
//   - result: "created", "updated", "invalid" or "error"
var RatingsSubmittedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ratings_submitted_total",
		Help:      "Total number of rating submissions, by result.",
	},
	[]string{"result"},
)

// RatingsRemovedTotal counts ratings actually deleted.
var RatingsRemovedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ratings_removed_total",
		Help:      "Total number of ratings removed.",
	},
)

// StatsRecomputeDuration measures the aggregate recompute statement.
var StatsRecomputeDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stats_recompute_duration_seconds",
		Help:      "Duration of movie rating stats recomputation.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	},
)

// TokenOperationsTotal counts token service calls.
// Labels:
//   - op: "issue", "rotate", "revoke" or "verify"
//   - result: "ok", "invalid", "expired", "revoked" or "error"
var TokenOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_operations_total",
		Help:      "Total number of token operations, by operation and result.",
	},
	[]string{"op", "result"},
)

// LoginsTotal counts credential checks.
// Label:
//   - result: "ok", "invalid" or "inactive"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// BlacklistPurgedTotal counts expired blacklist rows removed by the purge loop.
var BlacklistPurgedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blacklist_purged_total",
		Help:      "Total number of expired blacklist entries purged.",
	},
)
