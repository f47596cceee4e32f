package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "automl"

var (
	TrainingStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "training",
		Name:      "sessions_started_total",
		Help:      "Counter of the number of training sessions started.",
	}, []string{"problem_type"})

	TrainingFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "training",
		Name:      "sessions_finished_total",
		Help:      "Counter of the number of training sessions finished, by outcome status.",
	}, []string{"problem_type", "status"})

	ModelsTrained = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "training",
		Name:      "models_trained_total",
		Help:      "Counter of the number of models fitted successfully.",
	}, []string{"algorithm"})

	ModelsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "training",
		Name:      "models_failed_total",
		Help:      "Counter of the number of models whose training failed.",
	}, []string{"algorithm"})

	FitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "training",
		Name:      "fit_duration_seconds",
		Help:      "Histogram of per-model training time including cross-validation.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"algorithm"})

	Predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "serving",
		Name:      "predictions_total",
		Help:      "Counter of the number of predictions served.",
	}, []string{"model"})

	PredictionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "serving",
		Name:      "prediction_failures_total",
		Help:      "Counter of the number of failed prediction requests.",
	})

	Exports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "export",
		Name:      "artifacts_total",
		Help:      "Counter of the number of exported artifacts, by requested and delivered format.",
	}, []string{"requested", "delivered"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
