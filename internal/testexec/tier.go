// Package testexec runs the gated multi-tier test suite: Unit, then
// Integration, then Component, each only if the previous tier passed, plus
// an independent error-simulation tier.
package testexec

import (
	"slices"
	"time"

	"github.com/ShayCichocki/buildcheck/internal/phase"
	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

// Tier is one level of the test suite.
type Tier int

const (
	Unit Tier = iota
	Integration
	Component
	ErrorSimulation
)

// GatedTiers run in order, each gated on the previous one passing.
var GatedTiers = []Tier{Unit, Integration, Component}

func (t Tier) String() string {
	switch t {
	case Unit:
		return "Unit"
	case Integration:
		return "Integration"
	case Component:
		return "Component"
	case ErrorSimulation:
		return "ErrorSimulation"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// DefaultConventions are the directory naming conventions per tier.
var DefaultConventions = map[Tier][]string{
	Unit:        {"UnitTests", "unit_tests", "unittest"},
	Integration: {"IntegrationTests", "integration_tests", "integrationtest"},
	Component:   {"ComponentTests", "component_tests", "componenttest"},
}

// ProjectRun is the outcome of running the test command in one project.
type ProjectRun struct {
	Project  string        `json:"project"`
	Dir      string        `json:"dir"`
	ExitCode int           `json:"exitCode"`
	Passed   bool          `json:"passed"`
	Duration time.Duration `json:"duration"`
	// FailedTests lists the failing test names reported by the runner.
	FailedTests []string `json:"failedTests,omitempty"`
}

// TierResult is the outcome of one tier.
type TierResult struct {
	Tier      Tier                  `json:"tier"`
	Status    phase.Status          `json:"status"`
	Reason    string                `json:"reason,omitempty"`
	Projects  []ProjectRun          `json:"projects,omitempty"`
	Scenarios []ScenarioResult      `json:"scenarios,omitempty"`
	Errors    []taxonomy.BuildError `json:"errors,omitempty"`
	Duration  time.Duration         `json:"duration"`
}

// FailedProjects returns the names of projects whose tests failed.
func (r *TierResult) FailedProjects() []string {
	var out []string
	for _, p := range r.Projects {
		if !p.Passed {
			out = append(out, p.Project)
		}
	}
	slices.Sort(out)
	return out
}

// SuiteResult holds every tier result in execution order.
type SuiteResult struct {
	Tiers []TierResult `json:"tiers"`
	// Stopped is set when a gated tier did not pass and later gated tiers
	// were not run.
	Stopped string `json:"stopped,omitempty"`
}

// Tier returns the result for t, if that tier is present.
func (s *SuiteResult) Tier(t Tier) (TierResult, bool) {
	i := slices.IndexFunc(s.Tiers, func(r TierResult) bool { return r.Tier == t })
	if i < 0 {
		return TierResult{}, false
	}
	return s.Tiers[i], true
}

// OverallStatus folds the present tiers; absent tiers are neutral.
func (s *SuiteResult) OverallStatus() phase.Status {
	statuses := make([]phase.Status, len(s.Tiers))
	for i, t := range s.Tiers {
		statuses[i] = t.Status
	}
	return phase.Aggregate(statuses...)
}

// Errors returns every error across tiers.
func (s *SuiteResult) Errors() []taxonomy.BuildError {
	var out []taxonomy.BuildError
	for _, t := range s.Tiers {
		out = append(out, t.Errors...)
	}
	return out
}
