package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meiriv/kids-sports-safety-app/internal/emergency"
	"github.com/meiriv/kids-sports-safety-app/internal/gamification"
)

const namespace = "kids_safety"

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// emergency
	triggersTotal    *prometheus.CounterVec
	activationsTotal *prometheus.CounterVec
	outcomesTotal    *prometheus.CounterVec
	countdownSeconds prometheus.Gauge

	// gamification
	sessionsTotal     *prometheus.CounterVec
	pointsTotal       prometheus.Counter
	achievementsTotal *prometheus.CounterVec

	// http
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers all collectors plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		triggersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "emergency_triggers_total",
				Help:      "Emergency countdowns started, by alert type",
			},
			[]string{"type"},
		),
		activationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "emergency_activations_total",
				Help:      "Countdowns that completed and raised an alert, by alert type",
			},
			[]string{"type"},
		),
		outcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "emergency_outcomes_total",
				Help:      "Emergency flows that returned to idle, by outcome",
			},
			[]string{"outcome"},
		),
		countdownSeconds: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "emergency_countdown_seconds",
				Help:      "Seconds remaining on the running countdown, 0 when none",
			},
		),

		sessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_completed_total",
				Help:      "Activity sessions ended, by activity type",
			},
			[]string{"activity"},
		),
		pointsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "points_awarded_total",
				Help:      "Points credited through AddPoints",
			},
		),
		achievementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "achievements_awarded_total",
				Help:      "Achievements granted, by achievement id",
			},
			[]string{"achievement"},
		),

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// ObserveEmergency is an emergency.Listener.
func (m *Metrics) ObserveEmergency(e emergency.Event) {
	switch e.Kind {
	case emergency.EventCountdownStarted:
		m.triggersTotal.WithLabelValues(string(e.Type)).Inc()
		m.countdownSeconds.Set(float64(e.SecondsRemaining))
	case emergency.EventCountdownTick:
		m.countdownSeconds.Set(float64(e.SecondsRemaining))
	case emergency.EventCountdownCancelled:
		m.countdownSeconds.Set(0)
		m.outcomesTotal.WithLabelValues("cancelled").Inc()
	case emergency.EventAlertActivated:
		m.countdownSeconds.Set(0)
		m.activationsTotal.WithLabelValues(string(e.Type)).Inc()
	case emergency.EventAlertFalseAlarm:
		m.outcomesTotal.WithLabelValues("falseAlarm").Inc()
	case emergency.EventAlertResolved:
		m.outcomesTotal.WithLabelValues("resolved").Inc()
	case emergency.EventAlertAbandoned:
		m.outcomesTotal.WithLabelValues("abandoned").Inc()
	}
}

// ObserveLedger is a gamification.Listener.
func (m *Metrics) ObserveLedger(e gamification.Event) {
	switch e.Kind {
	case gamification.EventSessionEnded:
		if e.Session != nil {
			m.sessionsTotal.WithLabelValues(e.Session.ActivityType).Inc()
		}
	case gamification.EventPointsAdded:
		if e.Points > 0 {
			m.pointsTotal.Add(float64(e.Points))
		}
	case gamification.EventAchievementAwarded:
		if e.Achievement != nil {
			m.achievementsTotal.WithLabelValues(e.Achievement.ID).Inc()
		}
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
