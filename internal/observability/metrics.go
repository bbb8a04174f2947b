package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the atlas service.
type Metrics struct {
	RegionLoads        *prometheus.CounterVec   // labels: region, outcome={ready,failed}
	RegionLoadDuration *prometheus.HistogramVec // labels: region
	RowsDropped        *prometheus.CounterVec   // labels: region, reason={bad_date,year_out_of_range}

	// Join reconciliation metrics. The "set" label distinguishes the geometry
	// key set, the case-table key set, and their intersection so that a silent
	// join miscoverage (shared == 0) is visible on a dashboard.
	JoinCoverage *prometheus.GaugeVec // labels: region, set={geometry,cases,shared}

	SliceCache      *prometheus.CounterVec // labels: result={hit,miss}
	RequestDuration *prometheus.HistogramVec

	ModelTrainDuration prometheus.Histogram
	ModelReady         prometheus.Gauge

	RecordsExported prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RegionLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dengue_atlas",
			Name:      "region_loads_total",
			Help:      "Region dataset builds by outcome.",
		}, []string{"region", "outcome"}),
		RegionLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dengue_atlas",
			Name:      "region_load_duration_seconds",
			Help:      "Duration of a full region build (geometry + cases + reconciliation).",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"region"}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dengue_atlas",
			Name:      "case_rows_dropped_total",
			Help:      "Case-table rows discarded during load by reason.",
		}, []string{"region", "reason"}),
		JoinCoverage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dengue_atlas",
			Name:      "join_key_coverage",
			Help:      "Sizes of the geometry key set, the case key set, and their intersection.",
		}, []string{"region", "set"}),
		SliceCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dengue_atlas",
			Name:      "slice_cache_total",
			Help:      "Time-slice cache lookups by result.",
		}, []string{"result"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dengue_atlas",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"route"}),
		ModelTrainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dengue_atlas",
			Name:      "model_train_duration_seconds",
			Help:      "Duration of the forecast model training run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		ModelReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dengue_atlas",
			Name:      "model_ready",
			Help:      "1 when the forecast model has been trained, 0 otherwise.",
		}),
		RecordsExported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dengue_atlas",
			Name:      "records_exported_total",
			Help:      "Reconciled case records published to the export sink.",
		}),
	}

	prometheus.MustRegister(
		m.RegionLoads,
		m.RegionLoadDuration,
		m.RowsDropped,
		m.JoinCoverage,
		m.SliceCache,
		m.RequestDuration,
		m.ModelTrainDuration,
		m.ModelReady,
		m.RecordsExported,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RegionLoads:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "dengue_atlas", Name: "region_loads_total"}, []string{"region", "outcome"}),
		RegionLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "dengue_atlas", Name: "region_load_duration_seconds"}, []string{"region"}),
		RowsDropped:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "dengue_atlas", Name: "case_rows_dropped_total"}, []string{"region", "reason"}),
		JoinCoverage:       prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: "dengue_atlas", Name: "join_key_coverage"}, []string{"region", "set"}),
		SliceCache:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "dengue_atlas", Name: "slice_cache_total"}, []string{"result"}),
		RequestDuration:    prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "dengue_atlas", Name: "http_request_duration_seconds"}, []string{"route"}),
		ModelTrainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "dengue_atlas", Name: "model_train_duration_seconds"}),
		ModelReady:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "dengue_atlas", Name: "model_ready"}),
		RecordsExported:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "dengue_atlas", Name: "records_exported_total"}),
	}
}
