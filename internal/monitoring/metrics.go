// Package monitoring exposes batch-run metrics on a private Prometheus
// registry and writes them in the node_exporter textfile format.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

const namespace = "wildfire_exposure"

// Metrics holds the gauges, counters and histograms for one run.
type Metrics struct {
	registry *prometheus.Registry

	SegmentsLoaded   prometheus.Gauge
	SegmentsClipped  prometheus.Gauge
	SegmentsBuffered prometheus.Gauge
	BufferFailures   prometheus.Gauge
	ExposedSegments  prometheus.Gauge

	// Zonal statistics chunks.
	ChunksProcessed prometheus.Counter
	ChunkDuration   prometheus.Histogram

	PhaseDuration *prometheus.GaugeVec // labels: phase
	PhaseFailed   *prometheus.GaugeVec // labels: phase
	LastRunTime   prometheus.Gauge
	LastRunOK     prometheus.Gauge
}

// NewMetrics creates the run metrics and registers them with a fresh
// registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SegmentsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "segments_loaded",
			Help:      "Pipeline segments read from the input shapefile.",
		}),
		SegmentsClipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "segments_clipped",
			Help:      "Segments whose envelope intersects the raster extent.",
		}),
		SegmentsBuffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "segments_buffered",
			Help:      "Segments with a non-empty buffer polygon.",
		}),
		BufferFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_failures",
			Help:      "Segments whose buffer was empty or failed.",
		}),
		ExposedSegments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exposed_segments",
			Help:      "Segments with burn_exposed = 1.",
		}),
		ChunksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zonal_chunks_total",
			Help:      "Zonal statistics chunks completed.",
		}),
		ChunkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "zonal_chunk_duration_seconds",
			Help:      "Wall time per zonal statistics chunk.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		PhaseDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of each pipeline phase in the last run.",
		}, []string{"phase"}),
		PhaseFailed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase_failed",
			Help:      "1 when the phase failed in the last run, 0 otherwise.",
		}, []string{"phase"}),
		LastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		LastRunOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 when the last run completed without a failed phase.",
		}),
	}

	m.registry.MustRegister(
		m.SegmentsLoaded,
		m.SegmentsClipped,
		m.SegmentsBuffered,
		m.BufferFailures,
		m.ExposedSegments,
		m.ChunksProcessed,
		m.ChunkDuration,
		m.PhaseDuration,
		m.PhaseFailed,
		m.LastRunTime,
		m.LastRunOK,
	)
	return m
}

// Registry returns the private registry holding the run metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveChunk records one completed zonal chunk.
func (m *Metrics) ObserveChunk(d time.Duration) {
	m.ChunksProcessed.Inc()
	m.ChunkDuration.Observe(d.Seconds())
}

// ObservePhase records a phase duration and outcome.
func (m *Metrics) ObservePhase(name string, d time.Duration, failed bool) {
	m.PhaseDuration.WithLabelValues(name).Set(d.Seconds())
	v := 0.0
	if failed {
		v = 1
	}
	m.PhaseFailed.WithLabelValues(name).Set(v)
}

// Finish stamps the end of the run.
func (m *Metrics) Finish(at time.Time, ok bool) {
	m.LastRunTime.Set(float64(at.Unix()))
	if ok {
		m.LastRunOK.Set(1)
	} else {
		m.LastRunOK.Set(0)
	}
}

// WriteTextfile writes the registry to path for the node_exporter textfile
// collector. The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return eris.Wrapf(err, "monitoring: write textfile %s", path)
	}
	return nil
}
