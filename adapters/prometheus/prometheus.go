// Package prometheus provides a Prometheus implementation of
// metrics.HandlerMetrics for the event bus.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/terraskye/eventcore/metrics"
)

// Default histogram buckets for handler latency (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30,
}

// handlerMetrics implements metrics.HandlerMetrics using Prometheus.
type handlerMetrics struct {
	duration *prometheus.HistogramVec
	handled  *prometheus.CounterVec
	timeouts *prometheus.CounterVec
	retries  *prometheus.CounterVec
}

// NewHandlerMetrics creates the collectors under namespace and registers them
// with reg. An empty namespace defaults to "eventcore".
func NewHandlerMetrics(reg prometheus.Registerer, namespace string) metrics.HandlerMetrics {
	if namespace == "" {
		namespace = "eventcore"
	}

	m := &handlerMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Event handler execution time in seconds",
			Buckets:   defaultBuckets,
		}, []string{"handler", "success"}),

		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_executions_total",
			Help:      "Total number of event handler executions",
		}, []string{"handler", "success"}),

		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_timeouts_total",
			Help:      "Total number of event handler timeouts",
		}, []string{"handler"}),

		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_retries_total",
			Help:      "Total number of dead letter retries",
		}, []string{"handler", "success"}),
	}

	reg.MustRegister(
		m.duration,
		m.handled,
		m.timeouts,
		m.retries,
	)

	return m
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (m *handlerMetrics) RecordSuccess(handler string, d time.Duration) {
	m.duration.WithLabelValues(handler, "true").Observe(d.Seconds())
	m.handled.WithLabelValues(handler, "true").Inc()
}

func (m *handlerMetrics) RecordFailure(handler string, d time.Duration) {
	m.duration.WithLabelValues(handler, "false").Observe(d.Seconds())
	m.handled.WithLabelValues(handler, "false").Inc()
}

func (m *handlerMetrics) RecordTimeout(handler string) {
	m.timeouts.WithLabelValues(handler).Inc()
}

func (m *handlerMetrics) RecordRetry(handler string, succeeded bool) {
	m.retries.WithLabelValues(handler, boolToStr(succeeded)).Inc()
}

var _ metrics.HandlerMetrics = (*handlerMetrics)(nil)
