// Package dockerdiag analyses Dockerfiles and container build output, and
// localises a failure to a stage of the build lifecycle.
package dockerdiag

import (
	"strings"

	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

// Stage is a point in the container build lifecycle.
type Stage int

const (
	StageUnknown Stage = iota
	StageDockerfile
	StageCompose
	StageBuildContext
	StageBaseImage
	StageRestore
	StageBuild
	StagePublish
	StageRuntime
	StageTesting
	StageValidation
	StageMultiStage
)

var stageNames = [...]string{
	StageUnknown:      "Unknown",
	StageDockerfile:   "Dockerfile",
	StageCompose:      "Compose",
	StageBuildContext: "BuildContext",
	StageBaseImage:    "BaseImage",
	StageRestore:      "Restore",
	StageBuild:        "Build",
	StagePublish:      "Publish",
	StageRuntime:      "Runtime",
	StageTesting:      "Testing",
	StageValidation:   "Validation",
	StageMultiStage:   "MultiStage",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "Unknown"
	}
	return stageNames[s]
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var recommendations = map[Stage]string{
	StageUnknown:      "Inspect the full build output; the failing step could not be identified.",
	StageDockerfile:   "Fix the Dockerfile syntax and instruction order.",
	StageCompose:      "Validate the compose file and check every service's build context.",
	StageBuildContext: "Check that COPY sources exist inside the build context and are not excluded by .dockerignore.",
	StageBaseImage:    "Verify the base image name and tag exist and that the registry is reachable.",
	StageRestore:      "Check module download: go.sum entries, GOPROXY reachability and private module credentials.",
	StageBuild:        "Reproduce the compile error locally with go build ./... and fix it before rebuilding the image.",
	StagePublish:      "Check the output path and binary name used by the final COPY/publish step.",
	StageRuntime:      "Verify ENTRYPOINT/CMD point at an existing executable with the right permissions.",
	StageTesting:      "Run the tests outside the container to isolate the failure.",
	StageValidation:   "Review the validation step's requirements and inputs.",
	StageMultiStage:   "Check that COPY --from references an existing stage name and artifact path.",
}

// Recommendation returns the fixed remediation text for a stage.
func Recommendation(s Stage) string {
	if r, ok := recommendations[s]; ok {
		return r
	}
	return recommendations[StageUnknown]
}

// stageKeywords are checked in priority order. Instructions match in upper
// case only; lifecycle words match case-insensitively.
var stageKeywords = []struct {
	keyword     string
	instruction bool
	stage       Stage
}{
	{"FROM", true, StageBaseImage},
	{"restore", false, StageRestore},
	{"build", false, StageBuild},
	{"publish", false, StagePublish},
	{"ENTRYPOINT", true, StageRuntime},
}

// DetermineFailureStage returns the stage of the first keyword, in priority
// order, found in the build output.
func DetermineFailureStage(output string) Stage {
	lower := strings.ToLower(output)
	for _, k := range stageKeywords {
		if k.instruction && strings.Contains(output, k.keyword) {
			return k.stage
		}
		if !k.instruction && strings.Contains(lower, k.keyword) {
			return k.stage
		}
	}
	return StageUnknown
}

// BuildError is a taxonomy error tagged with the build stage it came from.
type BuildError struct {
	taxonomy.BuildError
	Stage Stage `json:"stage"`
}
