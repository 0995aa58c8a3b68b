package engine

import (
	"net/http"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for refresh cycles.
type Metrics struct {
	registry      *prometheus.Registry
	handler       http.Handler
	cycles        *prometheus.CounterVec
	effects       *prometheus.CounterVec
	failures      *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	activeAlarms  prometheus.Gauge
}

// NewMetrics registers the refresh collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ring_refresh_cycles_total",
		Help: "Total refresh cycles by trigger",
	}, []string{"trigger"})

	effects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ring_alarm_effects_total",
		Help: "Alarm effects applied by refresh cycles",
	}, []string{"action"})

	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ring_refresh_failures_total",
		Help: "Per-item refresh failures by kind",
	}, []string{"kind"})

	cycleDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ring_refresh_duration_seconds",
		Help:    "Duration of refresh cycles in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"trigger"})

	activeAlarms := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ring_active_alarms",
		Help: "Alarms desired after the most recent refresh",
	})

	registry.MustRegister(cycles, effects, failures, cycleDuration, activeAlarms)

	return &Metrics{
		registry:      registry,
		handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		cycles:        cycles,
		effects:       effects,
		failures:      failures,
		cycleDuration: cycleDuration,
		activeAlarms:  activeAlarms,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveCycle records one refresh result.
func (m *Metrics) ObserveCycle(result model.RefreshResult, active int, duration time.Duration) {
	if m == nil {
		return
	}
	trigger := string(result.Trigger)
	m.cycles.WithLabelValues(trigger).Inc()
	m.cycleDuration.WithLabelValues(trigger).Observe(duration.Seconds())

	m.effects.WithLabelValues("schedule").Add(float64(result.ScheduledCount))
	m.effects.WithLabelValues("update").Add(float64(result.UpdatedCount))
	m.effects.WithLabelValues("cancel").Add(float64(result.CanceledCount))
	m.effects.WithLabelValues("refresh").Add(float64(result.RefreshedCount))
	m.effects.WithLabelValues("rearm").Add(float64(result.RearmedCount))
	m.effects.WithLabelValues("expire").Add(float64(result.ExpiredCount))

	for _, failure := range result.Failures {
		m.failures.WithLabelValues(string(failure.Kind)).Inc()
	}
	m.activeAlarms.Set(float64(active))
}
