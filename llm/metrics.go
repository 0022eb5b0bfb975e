package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "casegen",
		Subsystem: "llm",
		Name:      "request_duration_seconds",
		Help:      "Duration of LLM provider requests.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
	}, []string{"provider"})

	requestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "casegen",
		Subsystem: "llm",
		Name:      "request_errors_total",
		Help:      "LLM provider request failures by error class.",
	}, []string{"provider", "class"})
)

func observeRequest(provider string, elapsed time.Duration, err error) {
	requestDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	if err == nil {
		return
	}
	requestErrors.WithLabelValues(provider, errorClass(err)).Inc()
}

func errorClass(err error) string {
	switch {
	case IsAuth(err):
		return "auth"
	case IsUnsupportedProvider(err):
		return "unsupported"
	case IsTransient(err):
		return "transient"
	default:
		return "fatal"
	}
}
