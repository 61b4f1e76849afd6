package bills

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// submissionsTotal counts upload attempts by outcome.
	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bill_submissions_total",
			Help: "Bill uploads by outcome",
		},
		[]string{"result"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bill_pipeline_stage_duration_seconds",
			Help:    "Duration of each bill pipeline stage in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	fallbackAnalysesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bill_fallback_analyses_total",
		Help: "Model responses stored as fallback because they were not valid JSON",
	})

	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bill_sweep_runs_total",
		Help: "Retention sweep runs",
	})

	sweepDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bill_sweep_deleted_total",
		Help: "Bill records deleted by the retention sweep",
	})

	sweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bill_sweep_errors_total",
		Help: "Retention sweep runs that failed",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bill_sweep_duration_seconds",
		Help:    "Duration of a retention sweep in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

const (
	resultCompleted        = "completed"
	resultQuotaExceeded    = "quota_exceeded"
	resultExtractionFailed = "extraction_failed"
	resultModelFailed      = "model_failed"
	resultStoreFailed      = "store_failed"
)
