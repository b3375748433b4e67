package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConsumerMetrics records outcomes for domain event consumers.
type ConsumerMetrics struct {
	duration  *prometheus.HistogramVec
	processed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	skipped   *prometheus.CounterVec
}

// NewConsumerMetrics registers the consumer metrics on the provided registerer.
func NewConsumerMetrics(reg prometheus.Registerer) *ConsumerMetrics {
	if reg == nil {
		return &ConsumerMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "consumer_handle_duration_seconds",
		Help:    "Duration of event handling in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"consumer", "event_type"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_events_processed",
		Help: "Events handled successfully.",
	}, []string{"consumer", "event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_events_failed",
		Help: "Events that failed handling and were nacked.",
	}, []string{"consumer", "event_type"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_events_skipped",
		Help: "Events acked without handling (duplicates, unknown types).",
	}, []string{"consumer", "event_type"})
	reg.MustRegister(duration, processed, failed, skipped)
	return &ConsumerMetrics{
		duration:  duration,
		processed: processed,
		failed:    failed,
		skipped:   skipped,
	}
}

// ObserveDuration records how long handling took.
func (c *ConsumerMetrics) ObserveDuration(consumer, eventType string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(consumer), normalizeLabel(eventType)).Observe(duration.Seconds())
}

// IncProcessed increments the processed counter.
func (c *ConsumerMetrics) IncProcessed(consumer, eventType string) {
	if c == nil || c.processed == nil {
		return
	}
	c.processed.WithLabelValues(normalizeLabel(consumer), normalizeLabel(eventType)).Inc()
}

// IncFailed increments the failure counter.
func (c *ConsumerMetrics) IncFailed(consumer, eventType string) {
	if c == nil || c.failed == nil {
		return
	}
	c.failed.WithLabelValues(normalizeLabel(consumer), normalizeLabel(eventType)).Inc()
}

// IncSkipped increments the skipped counter.
func (c *ConsumerMetrics) IncSkipped(consumer, eventType string) {
	if c == nil || c.skipped == nil {
		return
	}
	c.skipped.WithLabelValues(normalizeLabel(consumer), normalizeLabel(eventType)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
