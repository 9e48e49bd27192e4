package httpapi

import (
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/gophblog/internal/server/services"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's prometheus collectors on a private registry.
type Metrics struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	signIns      *prometheus.CounterVec
	sweepDeleted prometheus.Counter
	sweepFailed  prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gophblog",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route template, method and status code.",
		}, []string{"route", "method", "code"}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gophblog",
			Name:      "signin_attempts_total",
			Help:      "Sign-in attempts by outcome.",
		}, []string{"outcome"}),
		sweepDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gophblog",
			Name:      "media_swept_total",
			Help:      "Media items purged by cleanup sweeps.",
		}),
		sweepFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gophblog",
			Name:      "media_sweep_failures_total",
			Help:      "Media items a cleanup sweep failed to purge.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.signIns,
		m.sweepDeleted,
		m.sweepFailed,
	)
	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) signIn(outcome string) {
	m.signIns.WithLabelValues(outcome).Inc()
}

// ObserveSweep records the outcome of one cleanup sweep.
func (m *Metrics) ObserveSweep(res *services.SweepResult) {
	m.sweepDeleted.Add(float64(res.Deleted))
	m.sweepFailed.Add(float64(res.Failed))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (m *Metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
	})
}
