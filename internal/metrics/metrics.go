// Package metrics holds the process-wide Prometheus collectors, exposed at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "enoki"

var (
	// situations counts risk decisions. Labels: category, layer
	situations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "situations_total",
		Help:      "Situation classifications by category and deciding layer",
	}, []string{"category", "layer"})

	// sarcasmLabels counts sarcasm verdicts. Labels: label
	sarcasmLabels = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sarcasm",
		Name:      "verdicts_total",
		Help:      "Sarcasm verdicts by label",
	}, []string{"label"})

	// generationFallbacks counts deterministic fallbacks. Labels: stage (risk, reply, summary, extract)
	generationFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "generation",
		Name:      "fallbacks_total",
		Help:      "Text generation calls replaced by a deterministic fallback",
	}, []string{"stage"})

	// emotionFallbacks counts remote scorer failures. Labels: signal (emotions, irony)
	emotionFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "emotion",
		Name:      "fallbacks_total",
		Help:      "Remote emotion/irony scoring failures",
	}, []string{"signal"})

	migrations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consent",
		Name:      "migrations_total",
		Help:      "Ephemeral buffers migrated into durable sessions",
	})

	// messages counts processed messages. Labels: mode (ephemeral, durable)
	messages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "messages_total",
		Help:      "Messages processed by storage mode",
	}, []string{"mode"})

	pipelineLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "latency_seconds",
		Help:      "End-to-end message pipeline latency",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 30},
	})
)

// RecordSituation records one risk decision.
func RecordSituation(category, layer string) {
	situations.WithLabelValues(category, layer).Inc()
}

// RecordSarcasm records one sarcasm verdict.
func RecordSarcasm(label string) {
	sarcasmLabels.WithLabelValues(label).Inc()
}

// RecordGenerationFallback records a fallback at stage.
func RecordGenerationFallback(stage string) {
	generationFallbacks.WithLabelValues(stage).Inc()
}

// RecordEmotionFallback records a remote scoring failure for signal ("emotions" or "irony").
func RecordEmotionFallback(signal string) {
	emotionFallbacks.WithLabelValues(signal).Inc()
}

// RecordMigration records a consent-triggered migration.
func RecordMigration() {
	migrations.Inc()
}

// RecordMessage records a processed message and its latency.
func RecordMessage(ephemeral bool, elapsed time.Duration) {
	mode := "durable"
	if ephemeral {
		mode = "ephemeral"
	}
	messages.WithLabelValues(mode).Inc()
	pipelineLatency.Observe(elapsed.Seconds())
}
