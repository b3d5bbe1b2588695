package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// pool discovery
	PoolProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lpgateway_pool_probes_total",
			Help: "Pool state probes by fee tier and outcome (found, missing, error)",
		},
		[]string{"fee", "outcome"},
	)

	TokenCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lpgateway_token_cache_lookups_total",
			Help: "Token metadata cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)

	// pipelines
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lpgateway_operations_total",
			Help: "Pipeline outcomes by operation and error kind (ok on success)",
		},
		[]string{"operation", "kind"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lpgateway_operation_duration_seconds",
			Help:    "Pipeline duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// custody boundary
	CustodyRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lpgateway_custody_requests_total",
			Help: "Custody API requests by endpoint and status class",
		},
		[]string{"endpoint", "status"},
	)

	// policy
	PolicyState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lpgateway_policy_state",
		Help: "Policy engine state (0=uninitialized, 1=verifying, 2=creating, 3=active, 4=failed)",
	})

	// http
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lpgateway_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "status"},
	)
)
