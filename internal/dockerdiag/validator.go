package dockerdiag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ShayCichocki/buildcheck/internal/phase"
	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

// FileResult is the outcome for one Dockerfile or compose file.
type FileResult struct {
	Path   string       `json:"path"`
	Status phase.Status `json:"status"`
	Issues []Issue      `json:"issues,omitempty"`
	Errors []BuildError `json:"errors,omitempty"`
	// Stage is set when a build test failed.
	Stage Stage `json:"stage,omitempty"`
}

// ValidationResult aggregates the Docker checks for a workspace.
type ValidationResult struct {
	Files []FileResult `json:"files"`
	// Engine holds the single availability error, if the engine was probed
	// and unreachable.
	Engine *BuildError `json:"engine,omitempty"`
}

// OverallStatus folds every file result and the engine probe.
func (r *ValidationResult) OverallStatus() phase.Status {
	statuses := make([]phase.Status, 0, len(r.Files)+1)
	for _, f := range r.Files {
		statuses = append(statuses, f.Status)
	}
	if r.Engine != nil {
		statuses = append(statuses, phase.Failed)
	}
	return phase.Aggregate(statuses...)
}

// Errors returns every error across files plus the engine error.
func (r *ValidationResult) Errors() []taxonomy.BuildError {
	var out []taxonomy.BuildError
	if r.Engine != nil {
		out = append(out, r.Engine.BuildError)
	}
	for _, f := range r.Files {
		for _, e := range f.Errors {
			out = append(out, e.BuildError)
		}
	}
	return out
}

// Validator runs static analysis and, optionally, build tests.
type Validator struct {
	Engine     *Engine
	Classifier *taxonomy.Classifier
	// BuildTest enables a real docker build per Dockerfile.
	BuildTest bool
	// MaxConsecutiveRun overrides the RUN layering threshold.
	MaxConsecutiveRun int
}

// Validate finds every Dockerfile and compose file under root and checks it.
func (v *Validator) Validate(ctx context.Context, root string) (*ValidationResult, error) {
	dockerfiles, composeFiles, err := FindFiles(root)
	if err != nil {
		return nil, err
	}
	result := &ValidationResult{}
	if len(dockerfiles) == 0 && len(composeFiles) == 0 {
		slog.Debug("no Dockerfiles found", "root", root)
		return result, nil
	}

	buildTest := v.BuildTest && v.Engine != nil
	if buildTest {
		if err := v.Engine.Available(ctx); err != nil {
			slog.Warn("container engine unavailable, skipping build tests", "err", err)
			be := taxonomy.New(taxonomy.DockerBuild, taxonomy.High, "docker", err.Error()).WithCause(err)
			result.Engine = &BuildError{BuildError: be, Stage: StageValidation}
			buildTest = false
		}
	}

	for _, path := range dockerfiles {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Files = append(result.Files, v.checkDockerfile(ctx, path, buildTest))
	}
	for _, path := range composeFiles {
		fr := FileResult{Path: path}
		issues, err := AnalyzeCompose(path)
		if err != nil {
			return result, err
		}
		fr.Issues = issues
		settle(&fr, path)
		result.Files = append(result.Files, fr)
	}
	return result, nil
}

func (v *Validator) checkDockerfile(ctx context.Context, path string, buildTest bool) FileResult {
	fr := FileResult{Path: path}
	issues, err := AnalyzeDockerfileWithContext(path, filepath.Dir(path), v.MaxConsecutiveRun)
	if err != nil {
		fr.Status = phase.Error
		fr.Errors = []BuildError{{BuildError: taxonomy.SystemFault(path, err), Stage: StageDockerfile}}
		return fr
	}
	fr.Issues = issues
	settle(&fr, path)

	if !buildTest {
		return fr
	}

	res, err := v.Engine.Build(ctx, path, filepath.Dir(path))
	switch {
	case err != nil:
		be := taxonomy.New(taxonomy.DockerBuild, taxonomy.High, path, fmt.Sprintf("docker build could not run: %v", err)).WithCause(err)
		fr.Errors = append(fr.Errors, BuildError{BuildError: be, Stage: StageValidation})
		fr.Status = phase.Failed
	case !res.Success():
		fr.Stage = DetermineFailureStage(res.Output)
		classifier := v.Classifier
		if classifier == nil {
			classifier = NewClassifier()
		}
		errs := AnalyzeOutput(classifier, path, res.Output)
		if len(errs) == 0 {
			be := taxonomy.New(taxonomy.DockerBuild, taxonomy.High, path, fmt.Sprintf("docker build exited %d", res.ExitCode))
			be.ResolutionHint = Recommendation(fr.Stage)
			errs = []BuildError{{BuildError: be, Stage: fr.Stage}}
		}
		fr.Errors = append(fr.Errors, errs...)
		fr.Status = phase.Failed
		slog.Info("docker build failed", "file", path, "stage", fr.Stage, "errors", len(errs))
	}
	return fr
}

// settle converts issues into errors and sets the file status: Failed when
// any issue is an error, Passed otherwise.
func settle(fr *FileResult, path string) {
	fr.Status = phase.Passed
	for _, issue := range fr.Issues {
		fr.Errors = append(fr.Errors, issue.BuildError(path))
		if issue.Kind == KindError {
			fr.Status = phase.Failed
		}
	}
}

// IsDockerfile reports whether name is a Dockerfile by naming convention.
func IsDockerfile(name string) bool {
	lower := strings.ToLower(name)
	return lower == "dockerfile" || strings.HasPrefix(lower, "dockerfile.") || strings.HasSuffix(lower, ".dockerfile")
}

// FindFiles returns the Dockerfiles and compose files under root in
// lexical order, skipping vendored and hidden directories.
func FindFiles(root string) (dockerfiles, composeFiles []string, err error) {
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (name == "vendor" || name == "node_modules" || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		switch {
		case IsDockerfile(d.Name()):
			dockerfiles = append(dockerfiles, path)
		case slices.Contains(ComposeFileNames, d.Name()):
			composeFiles = append(composeFiles, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("find docker files: %w", err)
	}
	return dockerfiles, composeFiles, nil
}
