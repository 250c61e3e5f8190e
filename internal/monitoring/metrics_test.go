package monitoring

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, m.Write(&pb))
	switch {
	case pb.Gauge != nil:
		return pb.GetGauge().GetValue()
	case pb.Counter != nil:
		return pb.GetCounter().GetValue()
	case pb.Histogram != nil:
		return float64(pb.GetHistogram().GetSampleCount())
	}
	t.Fatalf("unsupported metric %v", m.Desc())
	return 0
}

func TestNewMetrics_Registers(t *testing.T) {
	m := NewMetrics()
	m.SegmentsLoaded.Set(120)
	m.ObservePhase("load", 0, false)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "wildfire_exposure_segments_loaded")
	assert.Contains(t, names, "wildfire_exposure_phase_duration_seconds")
	assert.InDelta(t, 120.0, value(t, m.SegmentsLoaded), 0)
}

func TestObserveChunk(t *testing.T) {
	m := NewMetrics()
	m.ObserveChunk(2 * time.Second)
	m.ObserveChunk(500 * time.Millisecond)

	assert.InDelta(t, 2.0, value(t, m.ChunksProcessed), 0)
	assert.InDelta(t, 2.0, value(t, m.ChunkDuration), 0)
}

func TestObservePhase(t *testing.T) {
	m := NewMetrics()
	m.ObservePhase("zonal", 90*time.Second, false)
	m.ObservePhase("render", time.Second, true)

	assert.InDelta(t, 90.0, value(t, m.PhaseDuration.WithLabelValues("zonal")), 1e-9)
	assert.InDelta(t, 0.0, value(t, m.PhaseFailed.WithLabelValues("zonal")), 0)
	assert.InDelta(t, 1.0, value(t, m.PhaseFailed.WithLabelValues("render")), 0)
}

func TestFinish(t *testing.T) {
	m := NewMetrics()
	at := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	m.Finish(at, true)
	assert.InDelta(t, float64(at.Unix()), value(t, m.LastRunTime), 0)
	assert.InDelta(t, 1.0, value(t, m.LastRunOK), 0)

	m.Finish(at, false)
	assert.InDelta(t, 0.0, value(t, m.LastRunOK), 0)
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.ExposedSegments.Set(42)

	path := filepath.Join(t.TempDir(), "wildfire_exposure.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "wildfire_exposure_exposed_segments 42"))
}

func TestWriteTextfile_BadDir(t *testing.T) {
	m := NewMetrics()
	err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: write textfile")
}
