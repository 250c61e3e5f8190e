package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wildfire-exposure/internal/exposure"
	"github.com/sells-group/wildfire-exposure/internal/model"
	"github.com/sells-group/wildfire-exposure/internal/raster"
)

func TestManifestRoundTrip(t *testing.T) {
	started := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	summary := exposure.Summarize(testDataset(t).Records)
	m := &Manifest{
		RunID:      "3f1c2a4e-1111-4a4a-9a9a-000000000001",
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Status:     model.RunStatusPartial,
		Inputs: ManifestInputs{
			Pipelines:   "data/Pipelines_SHP/Pipelines_GCS_NAD83.shp",
			PipelineCRS: "EPSG:3400",
			Raster:      &raster.Info{Width: 100, Height: 50, CRS: "EPSG:3978", DataType: "UInt16"},
		},
		Parameters: map[string]any{"buffer_meters": 500.0, "chunk_size": 10000},
		Phases: []model.PhaseResult{
			{Name: "load", Status: model.PhaseStatusComplete, Duration: 1200 * time.Millisecond, Metadata: map[string]any{"features": 3}},
			{Name: "render", Status: model.PhaseStatusFailed, Duration: 10 * time.Millisecond, Error: "no province"},
		},
		Summary: &summary,
		Outputs: map[string]string{"geojson": "out/pipeline_wildfire_exposure_v02.geojson"},
	}

	path := filepath.Join(t.TempDir(), "run_manifest.yaml")
	require.NoError(t, WriteManifest(path, m))

	back, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, m.RunID, back.RunID)
	assert.True(t, started.Equal(back.StartedAt))
	assert.Equal(t, "EPSG:3978", back.Inputs.Raster.CRS)
	assert.Equal(t, model.RunStatusPartial, back.Status)
	require.Len(t, back.Phases, 2)
	assert.Equal(t, 1200*time.Millisecond, back.Phases[0].Duration)
	assert.Equal(t, "no province", back.Phases[1].Error)
	require.NotNil(t, back.Summary)
	assert.Equal(t, 3, back.Summary.Total)
	assert.Equal(t, summary.Histogram, back.Summary.Histogram)
	assert.Equal(t, m.Outputs, back.Outputs)
}

func TestReadManifest_Missing(t *testing.T) {
	_, err := ReadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
