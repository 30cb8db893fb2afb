package dispatch

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records operation outcomes. A nil *Metrics records nothing.
type Metrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	sideEffects *prometheus.CounterVec
	cache       *prometheus.CounterVec
}

// NewMetrics creates and registers the operation metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opmeta",
			Name:      "requests_total",
			Help:      "Operation requests by op and response status.",
		}, []string{"op", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "opmeta",
			Name:      "request_duration_seconds",
			Help:      "Operation handling latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		sideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opmeta",
			Name:      "side_effect_failures_total",
			Help:      "Failed invalidation and audit side effects by op and kind.",
		}, []string{"op", "kind"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opmeta",
			Name:      "cache_lookups_total",
			Help:      "Read-through cache lookups by op and result.",
		}, []string{"op", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.sideEffects, m.cache)
	}
	return m
}

func (m *Metrics) observe(op string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) sideEffectFailed(op, kind string) {
	if m == nil {
		return
	}
	m.sideEffects.WithLabelValues(op, kind).Inc()
}

func (m *Metrics) cacheLookup(op string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(op, result).Inc()
}
