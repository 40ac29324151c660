package orchestrator

import (
	"time"

	"github.com/ShayCichocki/buildcheck/internal/dockerdiag"
	"github.com/ShayCichocki/buildcheck/internal/envcheck"
	"github.com/ShayCichocki/buildcheck/internal/phase"
	"github.com/ShayCichocki/buildcheck/internal/resolve"
	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
	"github.com/ShayCichocki/buildcheck/internal/testexec"
)

// BuildValidationResult is the outcome of one orchestration run.
type BuildValidationResult struct {
	RunID     string        `json:"runId"`
	Workspace string        `json:"workspace"`
	Targets   []Target      `json:"targets"`
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`
	// Phases holds one result per phase in execution order.
	Phases []phase.Result `json:"phases"`
	// Resolutions holds the registry outcome per phase that failed.
	Resolutions map[string]*resolve.Result `json:"resolutions,omitempty"`

	Docker         *dockerdiag.ValidationResult `json:"docker,omitempty"`
	Environment    *envcheck.ValidationResult   `json:"environment,omitempty"`
	Tests          *testexec.SuiteResult        `json:"tests,omitempty"`
	MonitoringFile string                       `json:"monitoringFile,omitempty"`
}

// OverallStatus escalates every phase status.
func (r *BuildValidationResult) OverallStatus() phase.Status {
	return phase.Aggregate(phase.Statuses(r.Phases)...)
}

// Phase returns the result of the named phase.
func (r *BuildValidationResult) Phase(name string) (phase.Result, bool) {
	for _, p := range r.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return phase.Result{}, false
}

// Errors returns every error of every phase in phase order.
func (r *BuildValidationResult) Errors() []taxonomy.BuildError {
	var out []taxonomy.BuildError
	for _, p := range r.Phases {
		out = append(out, p.Errors...)
	}
	return out
}

// ResolvedIDs returns the IDs of errors the registry resolved.
func (r *BuildValidationResult) ResolvedIDs() map[string]bool {
	ids := make(map[string]bool)
	for _, res := range r.Resolutions {
		for _, c := range res.Categories {
			for _, e := range c.Resolved {
				ids[e.ID] = true
			}
		}
	}
	return ids
}

// ResolvedCount returns the number of errors the registry resolved.
func (r *BuildValidationResult) ResolvedCount() int {
	n := 0
	for _, res := range r.Resolutions {
		n += res.Resolved()
	}
	return n
}
