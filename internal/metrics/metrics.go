// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProvisionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_requests_total",
			Help: "Provisioning attempts by deliverable, path and outcome",
		},
		[]string{"deliv", "path", "outcome"},
	)

	ProvisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provision_duration_seconds",
			Help:    "End-to-end provisioning duration, dominated by the GitHub gateway",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"deliv"},
	)

	StatusComputeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_computations_total",
			Help: "Status engine runs by resulting stage",
		},
		[]string{"status"},
	)

	AutoTestGradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotest_grades_total",
			Help: "AutoTest grade ingestions by outcome",
		},
		[]string{"deliv", "outcome"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)
