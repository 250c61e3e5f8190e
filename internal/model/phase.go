// Package model holds the run bookkeeping types shared by the pipeline,
// the manifest writer and the CLI.
package model

import "time"

// PhaseStatus represents the outcome of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of a pipeline phase.
type PhaseResult struct {
	Name     string         `json:"name" yaml:"name"`
	Status   PhaseStatus    `json:"status" yaml:"status"`
	Duration time.Duration  `json:"duration" yaml:"duration"`
	Error    string         `json:"error,omitempty" yaml:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Failed reports whether the phase ended in error.
func (p PhaseResult) Failed() bool { return p.Status == PhaseStatusFailed }

// RunStatus is the overall state of a run.
type RunStatus string

const (
	RunStatusComplete RunStatus = "complete"
	// RunStatusPartial means outputs were written but a later phase
	// (rendering) failed.
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// StatusOf derives the run status from its phases. A failure after the
// export phase completed leaves the run partial.
func StatusOf(phases []PhaseResult) RunStatus {
	exported := false
	for _, p := range phases {
		if p.Name == "export" && p.Status == PhaseStatusComplete {
			exported = true
		}
		if p.Failed() {
			if exported {
				return RunStatusPartial
			}
			return RunStatusFailed
		}
	}
	return RunStatusComplete
}
