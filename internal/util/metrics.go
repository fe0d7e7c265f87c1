package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersReplayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_replayed_total",
		Help: "Total number of checkouts answered from an earlier idempotency key",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of rejected checkouts",
	}, []string{"reason"})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Total number of applied order status transitions",
	}, []string{"from", "to"})

	CheckoutValidationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_validation_latency_seconds",
		Help:    "Latency of checkout validation and pricing",
		Buckets: prometheus.DefBuckets,
	})

	CatalogCounterInconsistencies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_counter_inconsistencies_total",
		Help: "Counter updates that failed after the owning write succeeded",
	}, []string{"counter"})

	ReconcileCorrectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_reconcile_corrections_total",
		Help: "Counters rewritten by reconciliation",
	}, []string{"counter"})

	ReconcileRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_reconcile_runs_total",
		Help: "Reconciliation runs by result",
	}, []string{"result"})

	ReviewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviews_total",
		Help: "Review mutations by action",
	}, []string{"action"})

	ReviewLockContentionTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_lock_contention_total",
		Help: "Review writes rejected because another write held the item lock",
	})

	StatsCacheRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "item_stats_cache_refreshes_total",
		Help: "Item stats cache refreshes by trigger",
	}, []string{"trigger"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
