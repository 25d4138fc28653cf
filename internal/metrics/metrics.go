// Package metrics exposes progression and HTTP metrics in Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/felixgeelhaar/ndole/internal/domain"
	"github.com/felixgeelhaar/ndole/internal/progression"
)

const namespace = "ndole"

// Metrics owns a private registry so tests and multiple daemons never collide
type Metrics struct {
	registry *prometheus.Registry

	completions        *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec
	xpGranted          prometheus.Counter
	levelUps           prometheus.Counter
	achievements       *prometheus.CounterVec
	notifications      *prometheus.CounterVec

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		completions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "completions_total",
				Help:      "Completion events handled, by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		completionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "completion_duration_seconds",
				Help:      "Time spent applying a completion event",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"stage"},
		),
		xpGranted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xp_granted_total",
			Help:      "Experience points granted across all users",
		}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_ups_total",
			Help:      "Level-up notifications emitted",
		}),
		achievements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "achievements_unlocked_total",
				Help:      "Achievements unlocked, by achievement id",
			},
			[]string{"achievement"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notifications emitted, by type",
			},
			[]string{"type"},
		),

		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		m.completions,
		m.completionDuration,
		m.xpGranted,
		m.levelUps,
		m.achievements,
		m.notifications,
		m.requests,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCompletion implements progression.Recorder
func (m *Metrics) ObserveCompletion(stage domain.StageType, outcome string, xpGained int, d time.Duration) {
	m.completions.WithLabelValues(string(stage), outcome).Inc()
	m.completionDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
	if xpGained > 0 {
		m.xpGranted.Add(float64(xpGained))
	}
}

// Notify implements progression.Notifier by counting what the coordinator emits
func (m *Metrics) Notify(ctx context.Context, n domain.Notification) error {
	m.notifications.WithLabelValues(string(n.Type)).Inc()
	switch n.Type {
	case domain.NotificationLevelUp:
		m.levelUps.Inc()
	case domain.NotificationAchievementUnlocked:
		m.achievements.WithLabelValues(string(n.AchievementID)).Inc()
	}
	return nil
}

// WatchStore exports a gauge that is 1 while the named store's circuit
// breaker reports closed
func (m *Metrics) WatchStore(name string, state func() string) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "store_available",
			Help:        "1 while the store circuit breaker is closed",
			ConstLabels: prometheus.Labels{"store": name},
		},
		func() float64 {
			if state() == "closed" {
				return 1
			}
			return 0
		},
	))
}

// statusRecorder captures the response status for the request counter
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency labelled by the matched
// ServeMux pattern, so path parameters do not explode cardinality
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

var (
	_ progression.Recorder = (*Metrics)(nil)
	_ progression.Notifier = (*Metrics)(nil)
)
