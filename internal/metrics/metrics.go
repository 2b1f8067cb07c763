// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exercise_submissions_total",
			Help: "Total number of exercise submissions",
		},
		[]string{"status"},
	)

	ReviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exercise_reviews_total",
			Help: "Total number of teacher reviews",
		},
		[]string{"status"},
	)

	EvaluationFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evaluation_fallbacks_total",
			Help: "Submissions scored by the local evaluator after a vendor failure",
		},
	)

	ScoreHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "exercise_score",
			Help:    "Distribution of submission scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
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
