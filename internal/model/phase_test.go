package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusOf(t *testing.T) {
	ok := func(name string) PhaseResult { return PhaseResult{Name: name, Status: PhaseStatusComplete} }
	bad := func(name string) PhaseResult { return PhaseResult{Name: name, Status: PhaseStatusFailed} }

	tests := []struct {
		name   string
		phases []PhaseResult
		want   RunStatus
	}{
		{"empty", nil, RunStatusComplete},
		{"all complete", []PhaseResult{ok("load"), ok("export"), ok("render")}, RunStatusComplete},
		{"skipped render", []PhaseResult{ok("export"), {Name: "render", Status: PhaseStatusSkipped}}, RunStatusComplete},
		{"early failure", []PhaseResult{ok("load"), bad("buffer")}, RunStatusFailed},
		{"export failure", []PhaseResult{ok("load"), bad("export")}, RunStatusFailed},
		{"render failure", []PhaseResult{ok("load"), ok("export"), bad("render")}, RunStatusPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.phases))
		})
	}
}

func TestPhaseResultFailed(t *testing.T) {
	assert.True(t, PhaseResult{Status: PhaseStatusFailed}.Failed())
	assert.False(t, PhaseResult{Status: PhaseStatusSkipped}.Failed())
}
