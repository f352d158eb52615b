package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Utterance outcomes recorded on mindmesh_utterances_total.
const (
	ResultAccepted     = "accepted"
	ResultIgnored      = "ignored"
	ResultBadFrame     = "bad_frame"
	ResultEmbedError   = "embed_error"
	ResultPersistError = "persist_error"
	ResultFatal        = "fatal"
)

// Metrics owns a private registry so several instances can coexist in tests.
// All methods are no-ops on a nil receiver.
type Metrics struct {
	reg *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	utterances    *prometheus.CounterVec
	linksCreated  prometheus.Counter
	embedDuration *prometheus.HistogramVec
	subscribers   prometheus.Gauge
	deliveries    *prometheus.CounterVec
	sessions      prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mindmesh_http_requests_total",
			Help: "Total HTTP requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mindmesh_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds by method/route.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		apiInflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "mindmesh_http_inflight_requests",
			Help: "In-flight HTTP requests.",
		}),
		utterances: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mindmesh_utterances_total",
			Help: "Inbound frames by pipeline outcome.",
		}, []string{"result"}),
		linksCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "mindmesh_links_created_total",
			Help: "Links committed across all sessions.",
		}),
		embedDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mindmesh_embed_duration_seconds",
			Help:    "Latency of one batched embed call.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider", "status"}),
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "mindmesh_subscribers",
			Help: "Live subscriber channels across all sessions.",
		}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mindmesh_broadcast_deliveries_total",
			Help: "Per-subscriber broadcast deliveries by result.",
		}, []string{"result"}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "mindmesh_sessions_cached",
			Help: "Sessions with an in-memory cache.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) IncUtterance(result string) {
	if m == nil {
		return
	}
	m.utterances.WithLabelValues(result).Inc()
}

func (m *Metrics) AddLinks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.linksCreated.Add(float64(n))
}

func (m *Metrics) ObserveEmbed(provider string, err error, dur time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.embedDuration.WithLabelValues(provider, status).Observe(dur.Seconds())
}

func (m *Metrics) AddSubscribers(delta int) {
	if m == nil {
		return
	}
	m.subscribers.Add(float64(delta))
}

func (m *Metrics) IncDelivery(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.deliveries.WithLabelValues("ok").Inc()
		return
	}
	m.deliveries.WithLabelValues("failed").Inc()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}
