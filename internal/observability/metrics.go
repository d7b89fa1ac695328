package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "grid_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ingest pipeline.
type Metrics struct {
	RowsProcessed    prometheus.Counter
	LocationsEmitted prometheus.Counter
	LocationsDropped *prometheus.CounterVec // labels: reason={empty,partial_coverage,out_of_bounds}
	RecordsWritten   prometheus.Counter
	StoreErrors      prometheus.Counter
	PipelineRunning  prometheus.Gauge

	BandDuration       prometheus.Histogram
	StoreWriteDuration prometheus.Histogram
	BatchSize          prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RowsProcessed,
		m.LocationsEmitted,
		m.LocationsDropped,
		m.RecordsWritten,
		m.StoreErrors,
		m.PipelineRunning,
		m.BandDuration,
		m.StoreWriteDuration,
		m.BatchSize,
	)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RowsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_processed_total",
			Help:      "Total latitude rows assembled.",
		}),
		LocationsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locations_emitted_total",
			Help:      "Total location records produced.",
		}),
		LocationsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locations_dropped_total",
			Help:      "Grid points that produced no record, by reason.",
		}, []string{"reason"}),
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Total location records accepted by the store.",
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Total failed store writes.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while an ingest is in progress, 0 otherwise.",
		}),
		BandDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "band_duration_seconds",
			Help:      "Duration of reading and assembling one latitude band.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		StoreWriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_write_duration_seconds",
			Help:      "Duration of one batch write to the store.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of records per store write.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100, 250, 500},
		}),
	}
}
