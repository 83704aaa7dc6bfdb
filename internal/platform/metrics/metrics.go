package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the viewer and the provenance
// service. All increment methods are nil-safe so tests can pass a nil
// *Metrics without registering collectors.
type Metrics struct {
	LoadsStarted    prometheus.Counter
	LoadsSucceeded  prometheus.Counter
	LoadsFailed     prometheus.Counter
	LoadsSuperseded prometheus.Counter
	PanesCreated    prometheus.Counter
	PanesReused     prometheus.Counter

	AnnotationFetches   prometheus.Counter
	AnnotationSaves     prometheus.Counter
	AnnotationConflicts prometheus.Counter

	LoginSucceeded prometheus.Counter
	LoginFailed    prometheus.Counter

	FetchDuration   prometheus.Histogram
	RequestDuration *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		LoadsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flatmaps_loads_started_total",
			Help: "Total number of map load requests issued",
		}),
		LoadsSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flatmaps_loads_succeeded_total",
			Help: "Total number of map loads that reached Ready",
		}),
		LoadsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flatmaps_loads_failed_total",
			Help: "Total number of map loads that ended in Failed",
		}),
		LoadsSuperseded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flatmaps_loads_superseded_total",
			Help: "Total number of in-flight loads cancelled by a newer load on the same pane",
		}),
		PanesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flatmaps_panes_created_total",
			Help: "Total number of pane slots created",
		}),
		PanesReused: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flatmaps_panes_reused_total",
			Help: "Total number of acquisitions served by reusing an existing pane",
		}),
		AnnotationFetches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flatmaps_annotation_fetches_total",
			Help: "Total number of feature annotation fetches",
		}),
		AnnotationSaves: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flatmaps_annotation_saves_total",
			Help: "Total number of successful annotation saves",
		}),
		AnnotationConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flatmaps_annotation_conflicts_total",
			Help: "Total number of annotation saves rejected on version mismatch",
		}),
		LoginSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flatmaps_login_succeeded_total",
			Help: "Total number of completed identity handshakes",
		}),
		LoginFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flatmaps_login_failed_total",
			Help: "Total number of abandoned or denied identity handshakes",
		}),
		FetchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "flatmaps_descriptor_fetch_duration_seconds",
			Help:    "Latency of map descriptor fetches",
			Buckets: prometheus.DefBuckets,
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flatmaps_http_request_duration_seconds",
			Help:    "Latency of provenance service HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

func (m *Metrics) IncLoadsStarted() {
	if m != nil {
		m.LoadsStarted.Inc()
	}
}

func (m *Metrics) IncLoadsSucceeded() {
	if m != nil {
		m.LoadsSucceeded.Inc()
	}
}

func (m *Metrics) IncLoadsFailed() {
	if m != nil {
		m.LoadsFailed.Inc()
	}
}

func (m *Metrics) IncLoadsSuperseded() {
	if m != nil {
		m.LoadsSuperseded.Inc()
	}
}

func (m *Metrics) IncPanesCreated() {
	if m != nil {
		m.PanesCreated.Inc()
	}
}

func (m *Metrics) IncPanesReused() {
	if m != nil {
		m.PanesReused.Inc()
	}
}

func (m *Metrics) IncAnnotationFetches() {
	if m != nil {
		m.AnnotationFetches.Inc()
	}
}

func (m *Metrics) IncAnnotationSaves() {
	if m != nil {
		m.AnnotationSaves.Inc()
	}
}

func (m *Metrics) IncAnnotationConflicts() {
	if m != nil {
		m.AnnotationConflicts.Inc()
	}
}

func (m *Metrics) IncLoginSucceeded() {
	if m != nil {
		m.LoginSucceeded.Inc()
	}
}

func (m *Metrics) IncLoginFailed() {
	if m != nil {
		m.LoginFailed.Inc()
	}
}

func (m *Metrics) ObserveFetchDuration(d time.Duration) {
	if m != nil {
		m.FetchDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveRequestDuration(route, method string, d time.Duration) {
	if m != nil {
		m.RequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
	}
}
