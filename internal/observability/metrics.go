// Package observability collects Prometheus metrics for the application.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the Prometheus registry and base HTTP metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smartinv_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "smartinv_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	registry.MustRegister(requests, duration)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Domain tracks inventory domain counters.
type Domain struct {
	transactionsPosted *prometheus.CounterVec
	reservationEvents  *prometheus.CounterVec
	alertsRaised       *prometheus.CounterVec
}

// NewDomain registers domain counters on the given registerer.
func NewDomain(reg prometheus.Registerer) *Domain {
	d := &Domain{
		transactionsPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartinv_stock_transactions_total",
			Help: "Posted stock transactions by type.",
		}, []string{"type"}),
		reservationEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartinv_stock_reservation_events_total",
			Help: "Reservation lifecycle events by operation.",
		}, []string{"op"}),
		alertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartinv_stock_alerts_total",
			Help: "Stock alerts raised by type.",
		}, []string{"type"}),
	}
	reg.MustRegister(d.transactionsPosted, d.reservationEvents, d.alertsRaised)
	return d
}

// TransactionPosted increments the posted-transaction counter.
func (d *Domain) TransactionPosted(txType string) {
	if d == nil {
		return
	}
	d.transactionsPosted.WithLabelValues(txType).Inc()
}

// ReservationEvent increments the reservation counter for op
// (reserve, release, consume).
func (d *Domain) ReservationEvent(op string) {
	if d == nil {
		return
	}
	d.reservationEvents.WithLabelValues(op).Inc()
}

// AlertRaised increments the alert counter.
func (d *Domain) AlertRaised(alertType string) {
	if d == nil {
		return
	}
	d.alertsRaised.WithLabelValues(alertType).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
