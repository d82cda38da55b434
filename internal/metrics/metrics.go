// Package metrics provides Prometheus metrics collection for the admission
// prediction service. It covers prediction serving, model training, cache
// behavior, and retraining cycles, exposed via the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the prediction service.
type Metrics struct {
	// Prediction metrics
	PredictionsTotal  prometheus.Counter   // Total predictions served (ML + rule-based)
	FallbackUsed      prometheus.Counter   // Predictions served by the rule-based fallback
	InferenceFailures prometheus.Counter   // ML-path failures that degraded to the fallback
	PredictLatency    prometheus.Histogram // End-to-end prediction latency in seconds
	PredictionScores  prometheus.Histogram // Distribution of predicted admission probabilities

	// Model cache metrics
	ModelCacheHits   prometheus.Counter // Model cache hits
	ModelCacheMisses prometheus.Counter // Model cache misses (disk load or absent)

	// Training metrics
	TrainingRuns     prometheus.Counter   // Training attempts
	TrainingFailures prometheus.Counter   // Training attempts that did not produce an artifact
	TrainingDuration prometheus.Histogram // Duration of a single training run in seconds
	ModelAccuracy    prometheus.Histogram // Validation accuracy of persisted models
	ModelAge         prometheus.Gauge     // Age in days of the oldest deployed model

	// Scheduler metrics
	RetrainCycles     prometheus.Counter // Retraining cycles executed
	CollegesRetrained prometheus.Counter // Colleges successfully retrained across cycles
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of admission predictions served",
		}),
		FallbackUsed: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_fallback_total",
			Help: "Total number of predictions served by the rule-based fallback",
		}),
		InferenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "inference_failures_total",
			Help: "Total number of ML inference failures that degraded to the fallback",
		}),
		PredictLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "predict_latency_seconds",
			Help:    "End-to-end prediction latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_scores",
			Help:    "Distribution of predicted admission probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ModelCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_cache_hits_total",
			Help: "Total number of model cache hits",
		}),
		ModelCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_cache_misses_total",
			Help: "Total number of model cache misses",
		}),
		TrainingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_runs_total",
			Help: "Total number of model training attempts",
		}),
		TrainingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_failures_total",
			Help: "Total number of training attempts that did not persist a model",
		}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "training_duration_seconds",
			Help:    "Duration of a single model training run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		ModelAccuracy: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "model_accuracy",
			Help:    "Validation accuracy of persisted models",
			Buckets: []float64{0.5, 0.55, 0.6, 0.65, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1.0},
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_days",
			Help: "Age in days of the oldest deployed model",
		}),
		RetrainCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "retrain_cycles_total",
			Help: "Total number of retraining cycles executed",
		}),
		CollegesRetrained: factory.NewCounter(prometheus.CounterOpts{
			Name: "colleges_retrained_total",
			Help: "Total number of colleges successfully retrained",
		}),
	}
}
