package testexec

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/buildcheck/internal/exec"
	"github.com/ShayCichocki/buildcheck/internal/phase"
	"github.com/ShayCichocki/buildcheck/internal/runtimeerr"
	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
	"github.com/ShayCichocki/buildcheck/internal/workspace"
)

// DefaultCommand runs a project's tests.
var DefaultCommand = []string{"go", "test", "./..."}

var failLineRe = regexp.MustCompile(`(?m)^\s*--- FAIL: (\S+)`)

// Executor runs the test suite against a workspace.
type Executor struct {
	Runner    exec.CommandRunner
	Workspace *workspace.Workspace
	// Conventions override DefaultConventions per tier.
	Conventions map[Tier][]string
	// Command overrides DefaultCommand.
	Command []string
	// Concurrency bounds parallel project runs within a tier.
	Concurrency int
	// Timeout bounds each project run.
	Timeout    time.Duration
	Classifier *taxonomy.Classifier
	// Handler receives the simulated runtime errors.
	Handler   *runtimeerr.Handler
	Scenarios []Scenario
}

// classifier returns the configured classifier or a fresh default one. It
// never writes to e, so it is safe to call from concurrent project runs.
func (e *Executor) classifier() *taxonomy.Classifier {
	if e.Classifier != nil {
		return e.Classifier
	}
	return taxonomy.NewClassifier()
}

func (e *Executor) conventions(t Tier) []string {
	if c, ok := e.Conventions[t]; ok && len(c) > 0 {
		return c
	}
	return DefaultConventions[t]
}

// Run executes the gated tiers in order and the error-simulation tier.
// A gated tier runs only if the tier before it Passed; tiers after a closed
// gate are absent from the suite and Stopped names the tier that closed it.
func (e *Executor) Run(ctx context.Context) *SuiteResult {
	suite := &SuiteResult{}

	for i, tier := range GatedTiers {
		res := e.RunTier(ctx, tier)
		suite.Tiers = append(suite.Tiers, res)
		if i < len(GatedTiers)-1 && res.Status != phase.Passed {
			suite.Stopped = fmt.Sprintf("%s tier did not pass", tier)
			slog.Info("test tier gate closed", "tier", tier, "status", res.Status)
			break
		}
	}

	suite.Tiers = append(suite.Tiers, e.RunSimulation(ctx))
	return suite
}

// RunTier runs the test command in every project of tier concurrently. The
// tier fails if any project fails; a tier with no projects is Skipped.
func (e *Executor) RunTier(ctx context.Context, tier Tier) (result TierResult) {
	result = TierResult{Tier: tier, Status: phase.Running}
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result.Status = phase.Error
			result.Errors = append(result.Errors, taxonomy.SystemFault(tier.String()+" tests", fmt.Errorf("panic: %v", rec)))
		}
		result.Duration = time.Since(start)
	}()

	if e.Workspace == nil {
		result.Status = phase.Skipped
		result.Reason = "no workspace"
		return result
	}
	projects := e.Workspace.TestProjects(e.conventions(tier))
	if len(projects) == 0 {
		result.Status = phase.Skipped
		result.Reason = "no test projects found"
		return result
	}

	c := e.classifier()
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	limit := e.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	for _, p := range projects {
		g.Go(func() error {
			run, errs := e.runProject(gctx, c, p)
			mu.Lock()
			defer mu.Unlock()
			result.Projects = append(result.Projects, run)
			result.Errors = append(result.Errors, errs...)
			return nil
		})
	}
	_ = g.Wait()

	result.Status = phase.Passed
	if len(result.FailedProjects()) > 0 {
		result.Status = phase.Failed
	}
	slog.Info("test tier finished", "tier", tier, "status", result.Status,
		"projects", len(projects), "failed", len(result.FailedProjects()))
	return result
}

func (e *Executor) runProject(ctx context.Context, c *taxonomy.Classifier, p *workspace.Project) (ProjectRun, []taxonomy.BuildError) {
	command := e.Command
	if len(command) == 0 {
		command = DefaultCommand
	}
	run := ProjectRun{Project: p.Name, Dir: p.Dir}

	res, err := e.Runner.Run(ctx, exec.Command{
		Dir:     p.Dir,
		Name:    command[0],
		Args:    command[1:],
		Timeout: e.Timeout,
	})
	if err != nil {
		run.ExitCode = -1
		return run, []taxonomy.BuildError{c.ClassifyError(p.Name, err).WithData(taxonomy.DataDir, p.Dir)}
	}

	run.ExitCode = res.ExitCode
	run.Duration = res.Duration
	run.Passed = res.Success()
	if run.Passed {
		return run, nil
	}

	for _, m := range failLineRe.FindAllStringSubmatch(res.Output, -1) {
		run.FailedTests = append(run.FailedTests, m[1])
	}

	var errs []taxonomy.BuildError
	for _, line := range taxonomy.ExtractErrorLines(res.Output) {
		errs = append(errs, c.Classify(p.Name, line).WithData(taxonomy.DataDir, p.Dir))
	}
	if len(errs) == 0 {
		msg := fmt.Sprintf("tests failed in %s (exit %d)", p.Name, res.ExitCode)
		if len(run.FailedTests) > 0 {
			msg = fmt.Sprintf("tests failed in %s: %v", p.Name, run.FailedTests)
		}
		errs = append(errs, c.Classify(p.Name, msg).WithData(taxonomy.DataDir, p.Dir))
	}
	return run, errs
}
