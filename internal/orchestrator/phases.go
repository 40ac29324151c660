package orchestrator

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Phase names, in execution order.
const (
	PhaseDependencies      = "Dependencies"
	PhaseProjectReferences = "ProjectReferences"
	PhaseCompilation       = "Compilation"
	PhaseDocker            = "Docker"
	PhaseEnvironment       = "Environment"
	PhaseTesting           = "Testing"
	PhaseMonitoring        = "Monitoring"
)

// Phases lists every phase in execution order.
var Phases = []string{
	PhaseDependencies,
	PhaseProjectReferences,
	PhaseCompilation,
	PhaseDocker,
	PhaseEnvironment,
	PhaseTesting,
	PhaseMonitoring,
}

// ErrUnknownPhase is returned for a phase name outside Phases.
var ErrUnknownPhase = errors.New("unknown phase")

// ErrUnknownTarget is returned for a target name outside Targets.
var ErrUnknownTarget = errors.New("unknown target")

// Target selects a group of phases, one per CLI command.
type Target string

const (
	TargetAll         Target = "all"
	TargetBuild       Target = "build"
	TargetDocker      Target = "docker"
	TargetEnvironment Target = "environment"
	TargetTest        Target = "test"
	TargetMonitoring  Target = "monitoring"
)

// Targets lists every target.
var Targets = []Target{TargetAll, TargetBuild, TargetDocker, TargetEnvironment, TargetTest, TargetMonitoring}

var targetPhases = map[Target][]string{
	TargetAll:         Phases,
	TargetBuild:       {PhaseDependencies, PhaseProjectReferences, PhaseCompilation},
	TargetDocker:      {PhaseDocker},
	TargetEnvironment: {PhaseEnvironment},
	TargetTest:        {PhaseTesting},
	TargetMonitoring:  {PhaseMonitoring},
}

// Phases returns the phases the target selects, in execution order.
func (t Target) Phases() []string {
	return slices.Clone(targetPhases[t])
}

// ParseTarget converts a name such as "build" or "validate" to a Target.
func ParseTarget(s string) (Target, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "validate" {
		return TargetAll, nil
	}
	t := Target(s)
	if _, ok := targetPhases[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTarget, s)
	}
	return t, nil
}

// selected returns the set of phases covered by targets.
func selected(targets []Target) map[string]bool {
	out := make(map[string]bool)
	for _, t := range targets {
		for _, p := range targetPhases[t] {
			out[p] = true
		}
	}
	return out
}

// resolvable reports whether failures of name are handed to the registry.
// Testing errors are reported, never auto-fixed.
func resolvable(name string) bool {
	switch name {
	case PhaseTesting, PhaseMonitoring:
		return false
	default:
		return true
	}
}
