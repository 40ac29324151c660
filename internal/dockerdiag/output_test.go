package dockerdiag

import (
	"testing"

	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

func TestDetermineFailureStage(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   Stage
	}{
		{"entrypoint only", "exec: ENTRYPOINT not found", StageRuntime},
		{"restore beats build", "build step: restore failed", StageRestore},
		{"FROM beats everything", "FROM golang:1.22\nrestore\nbuild\npublish", StageBaseImage},
		{"lowercase from is not an instruction", "copied from cache", StageUnknown},
		{"case-insensitive lifecycle word", "BUILD FAILED", StageBuild},
		{"publish", "publish step failed", StagePublish},
		{"lowercase entrypoint ignored", "entrypoint", StageUnknown},
		{"empty", "", StageUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineFailureStage(tt.output); got != tt.want {
				t.Errorf("DetermineFailureStage() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAnalyzeOutput(t *testing.T) {
	output := `#5 [2/4] COPY app.bin /app
#5 ERROR: failed to compute cache key: "/app.bin": not found
COPY failed: no such file or directory
error: permission denied while writing /out
error: network timeout pulling layer
`
	errs := AnalyzeOutput(NewClassifier(), "Dockerfile", output)
	if len(errs) != 4 {
		t.Fatalf("got %d errors, want 4", len(errs))
	}

	wantCategories := []taxonomy.Category{
		taxonomy.DockerBuild,
		taxonomy.DockerBuild,
		taxonomy.EnvironmentConfiguration,
		taxonomy.NetworkConnectivity,
	}
	for i, e := range errs {
		if e.Category != wantCategories[i] {
			t.Errorf("errs[%d].Category = %s, want %s", i, e.Category, wantCategories[i])
		}
		if e.Stage != StageUnknown {
			t.Errorf("errs[%d].Stage = %s, want Unknown", i, e.Stage)
		}
	}
}

func TestRecommendation_EveryStage(t *testing.T) {
	for s := StageUnknown; s <= StageMultiStage; s++ {
		if Recommendation(s) == "" {
			t.Errorf("Recommendation(%s) is empty", s)
		}
	}
	if Recommendation(Stage(99)) != Recommendation(StageUnknown) {
		t.Error("out of range stage should fall back to Unknown")
	}
}
