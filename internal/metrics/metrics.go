// Package metrics exposes Prometheus collectors for the completion relay.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for completion requests.
const (
	OutcomeSuccess       = "success"
	OutcomeRejected      = "rejected"
	OutcomeTerminated    = "terminated"
	OutcomeProviderError = "provider_error"
	OutcomeStorageError  = "storage_error"
)

// Collector records relay activity. A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	completions     *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	terminations    *prometheus.CounterVec
	archived        prometheus.Counter
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "worldlog"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.completions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "completions_total",
			Help:      "Completion requests by outcome",
		},
		[]string{"outcome"},
	)

	c.providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Time spent waiting for the completion provider",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~32s
		},
		[]string{"result"},
	)

	c.terminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "terminations_total",
			Help:      "Session terminations by whether a history log existed",
		},
		[]string{"existed"},
	)

	c.archived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "archive",
		Name:      "sessions_total",
		Help:      "Sessions written to the archive",
	})

	c.registry.MustRegister(
		c.completions,
		c.providerLatency,
		c.terminations,
		c.archived,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// RecordCompletion counts one completion request.
func (c *Collector) RecordCompletion(outcome string) {
	if c == nil {
		return
	}
	c.completions.WithLabelValues(outcome).Inc()
}

// RecordProviderCall observes one provider round trip.
func (c *Collector) RecordProviderCall(d time.Duration, err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	c.providerLatency.WithLabelValues(result).Observe(d.Seconds())
}

// RecordTermination counts one session termination.
func (c *Collector) RecordTermination(existed bool) {
	if c == nil {
		return
	}
	label := "false"
	if existed {
		label = "true"
	}
	c.terminations.WithLabelValues(label).Inc()
}

// RecordArchived counts one archived session.
func (c *Collector) RecordArchived() {
	if c == nil {
		return
	}
	c.archived.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
