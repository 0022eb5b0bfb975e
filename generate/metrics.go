package generate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	layerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "casegen_layer_duration_seconds",
		Help:    "Duration of one coverage layer run (extract, dedupe, expand).",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"layer"})

	layerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casegen_layer_failures_total",
		Help: "Coverage layer runs that ended in error.",
	}, []string{"layer"})

	scenariosExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "casegen_scenarios_extracted_total",
		Help: "Scenario titles extracted across all layers, before dedup.",
	})

	casesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "casegen_cases_generated_total",
		Help: "Test cases produced by completed feature runs, after dedup.",
	})

	casesDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "casegen_cases_deduped_total",
		Help: "Test cases removed by cross-layer deduplication.",
	})

	featureDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "casegen_feature_duration_seconds",
		Help:    "End-to-end duration of one feature generation.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	featureFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "casegen_feature_failures_total",
		Help: "Feature generations that ended in error.",
	})
)

func observeLayer(layer string, elapsed time.Duration, err error) {
	layerDuration.WithLabelValues(layer).Observe(elapsed.Seconds())
	if err != nil {
		layerFailures.WithLabelValues(layer).Inc()
	}
}

func observeFeature(elapsed time.Duration, err error) {
	featureDuration.Observe(elapsed.Seconds())
	if err != nil {
		featureFailures.Inc()
	}
}
