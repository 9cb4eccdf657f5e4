// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nikhilbhutani/speechstudio/internal/draft"
	"github.com/nikhilbhutani/speechstudio/internal/form"
	"github.com/nikhilbhutani/speechstudio/internal/synthesis"
)

const namespace = "speechstudio"

type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	synthesis     *prometheus.CounterVec
	synthDuration *prometheus.HistogramVec
	catalogFetch  *prometheus.CounterVec
	draftTokens   *prometheus.CounterVec
	draftCost     *prometheus.CounterVec
	formOutcomes  *prometheus.CounterVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		synthesis: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_total",
			Help:      "Text-to-speech conversions by format, result and cache use.",
		}, []string{"format", "result", "cached"}),
		synthDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Time to produce and write one audio file.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"format"}),
		catalogFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_catalog_fetches_total",
			Help:      "Voice list fetches from the provider by result.",
		}, []string{"result"}),
		draftTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draft_tokens_total",
			Help:      "Tokens used by speech drafts.",
		}, []string{"provider", "model", "type"}),
		draftCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draft_cost_usd_total",
			Help:      "Estimated USD cost of speech drafts.",
		}, []string{"provider", "model"}),
		formOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "form_outcomes_total",
			Help:      "Form actions by outcome.",
		}, []string{"action", "status"}),
	}

	m.registry.MustRegister(
		m.httpRequests, m.httpDuration,
		m.synthesis, m.synthDuration,
		m.catalogFetch,
		m.draftTokens, m.draftCost,
		m.formOutcomes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveSynthesis matches synthesis.WithObserver.
func (m *Metrics) ObserveSynthesis(format synthesis.Format, ok, cached bool, elapsed time.Duration) {
	result := "success"
	if !ok {
		result = "error"
	}
	m.synthesis.WithLabelValues(string(format), result, strconv.FormatBool(cached)).Inc()
	m.synthDuration.WithLabelValues(string(format)).Observe(elapsed.Seconds())
}

// ObserveCatalogFetch matches voice.WithFetchHook.
func (m *Metrics) ObserveCatalogFetch(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.catalogFetch.WithLabelValues(result).Inc()
}

// ObserveDraft matches draft.WithUsageHook.
func (m *Metrics) ObserveDraft(u draft.Usage) {
	m.draftTokens.WithLabelValues(u.Provider, u.Model, "input").Add(float64(u.InputTokens))
	m.draftTokens.WithLabelValues(u.Provider, u.Model, "output").Add(float64(u.OutputTokens))
	m.draftCost.WithLabelValues(u.Provider, u.Model).Add(u.Cost)
}

// ObserveOutcome matches form.WithOutcomeHook.
func (m *Metrics) ObserveOutcome(action string, s form.Status) {
	m.formOutcomes.WithLabelValues(action, s.String()).Inc()
}

// Middleware records every request under its chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
