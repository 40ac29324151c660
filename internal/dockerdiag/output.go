package dockerdiag

import (
	"strings"

	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

// dockerPatterns extend the classifier for container build output.
var dockerPatterns = []taxonomy.Pattern{
	{Match: "copy failed", Category: taxonomy.DockerBuild},
	{Match: "no such file", Category: taxonomy.DockerBuild},
	{Match: "permission denied", Category: taxonomy.EnvironmentConfiguration},
	{Match: "network timeout", Category: taxonomy.NetworkConnectivity},
}

// NewClassifier returns a classifier with the Docker-specific patterns
// layered on top of extra and the defaults.
func NewClassifier(extra ...taxonomy.Pattern) *taxonomy.Classifier {
	return taxonomy.NewClassifier(
		taxonomy.WithPatterns(extra...),
		taxonomy.WithPatterns(dockerPatterns...),
	)
}

// AnalyzeOutput classifies every error line of a build and tags it with the
// failure stage of the whole output.
func AnalyzeOutput(c *taxonomy.Classifier, source, output string) []BuildError {
	stage := DetermineFailureStage(output)
	lines := taxonomy.ExtractErrorLines(output)
	if len(lines) == 0 {
		return nil
	}

	out := make([]BuildError, 0, len(lines))
	for _, line := range lines {
		be := c.Classify(source, line)
		// Output from the container build is a container problem unless a
		// pattern said otherwise.
		if _, matched := c.MatchCategory(strings.ToLower(line)); !matched {
			be.Category = taxonomy.DockerBuild
		}
		be.ResolutionHint = Recommendation(stage)
		be = be.WithData(taxonomy.DataStage, stage.String())
		out = append(out, BuildError{BuildError: be, Stage: stage})
	}
	return out
}
