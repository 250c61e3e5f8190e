package export

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/wildfire-exposure/internal/exposure"
	"github.com/sells-group/wildfire-exposure/internal/model"
	"github.com/sells-group/wildfire-exposure/internal/raster"
)

// Manifest records what a run read, how it was configured, and what it
// produced.
type Manifest struct {
	RunID      string              `yaml:"run_id"`
	StartedAt  time.Time           `yaml:"started_at"`
	FinishedAt time.Time           `yaml:"finished_at"`
	Status     model.RunStatus     `yaml:"status"`
	Inputs     ManifestInputs      `yaml:"inputs"`
	Parameters map[string]any      `yaml:"parameters"`
	Phases     []model.PhaseResult `yaml:"phases"`
	Summary    *exposure.Summary   `yaml:"summary,omitempty"`
	Outputs    map[string]string   `yaml:"outputs"`
}

// ManifestInputs names the input datasets.
type ManifestInputs struct {
	Pipelines   string       `yaml:"pipelines"`
	PipelineCRS string       `yaml:"pipeline_crs"`
	Provinces   string       `yaml:"provinces,omitempty"`
	Raster      *raster.Info `yaml:"raster,omitempty"`
}

// WriteManifest writes m as YAML.
func WriteManifest(path string, m *Manifest) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "export: encode manifest %s", path)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "export: encode manifest %s", path)
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: read %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "export: parse manifest %s", path)
	}
	return &m, nil
}
