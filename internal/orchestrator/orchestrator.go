package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/buildcheck/internal/config"
	"github.com/ShayCichocki/buildcheck/internal/dockerdiag"
	"github.com/ShayCichocki/buildcheck/internal/envcheck"
	"github.com/ShayCichocki/buildcheck/internal/exec"
	"github.com/ShayCichocki/buildcheck/internal/health"
	"github.com/ShayCichocki/buildcheck/internal/phase"
	"github.com/ShayCichocki/buildcheck/internal/resolve"
	"github.com/ShayCichocki/buildcheck/internal/state"
	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
	"github.com/ShayCichocki/buildcheck/internal/testexec"
	"github.com/ShayCichocki/buildcheck/internal/workspace"
)

// Orchestrator runs validation phases against one workspace.
type Orchestrator struct {
	ws         *workspace.Workspace
	runner     exec.CommandRunner
	cfg        *config.Config
	classifier *taxonomy.Classifier

	registryFactory func() *resolve.Registry
	docker          *dockerdiag.Validator
	env             *envcheck.Checker
	tests           *testexec.Executor
	targets         []health.Target

	command string
	events  *EventEmitter
	store   state.RunStore

	// resolveMu serializes registry runs; strategies keep per-run caches.
	resolveMu sync.Mutex
}

// New creates an Orchestrator. Components not supplied through options are
// built from the configuration.
func New(req RequiredConfig, opts ...Option) (*Orchestrator, error) {
	if req.Workspace == nil {
		return nil, errors.New("orchestrator: workspace is required")
	}
	if req.Runner == nil {
		return nil, errors.New("orchestrator: command runner is required")
	}

	o := &orchestratorOptions{}
	for _, opt := range opts {
		opt(o)
	}
	cfg := o.cfg
	if cfg == nil {
		cfg = config.Default()
	}
	root := req.Workspace.Root

	var patterns []taxonomy.Pattern
	if o.classifier == nil || o.docker == nil {
		var err error
		if patterns, err = CustomPatterns(cfg, root); err != nil {
			return nil, err
		}
	}
	classifier := o.classifier
	if classifier == nil {
		classifier = taxonomy.NewClassifier(taxonomy.WithPatterns(patterns...))
	}

	orch := &Orchestrator{
		ws:              req.Workspace,
		runner:          req.Runner,
		cfg:             cfg,
		classifier:      classifier,
		registryFactory: o.registryFactory,
		docker:          o.docker,
		env:             o.env,
		tests:           o.tests,
		targets:         o.targets,
		command:         o.command,
		events:          o.events,
		store:           o.store,
	}
	if orch.registryFactory == nil {
		orch.registryFactory = func() *resolve.Registry { return NewRegistry(cfg, req.Runner, req.Workspace) }
	}
	if orch.docker == nil {
		orch.docker = NewDockerValidator(cfg, req.Runner, patterns)
	}
	if orch.env == nil {
		orch.env = NewEnvChecker(cfg, root)
	}
	if orch.tests == nil {
		orch.tests = NewTestExecutor(cfg, req.Runner, req.Workspace, classifier)
	}
	if orch.targets == nil {
		orch.targets = HealthTargets(cfg)
	}
	return orch, nil
}

// Classifier returns the classifier shared by every phase.
func (o *Orchestrator) Classifier() *taxonomy.Classifier {
	return o.classifier
}

// Registry returns a fresh registry with the configured strategies.
func (o *Orchestrator) Registry() *resolve.Registry {
	return o.registryFactory()
}

// run holds the state of one Run or RunPhase call.
type run struct {
	id       string
	registry *resolve.Registry

	docker         *dockerdiag.ValidationResult
	env            *envcheck.ValidationResult
	tests          *testexec.SuiteResult
	monitoringFile string

	goOnce    sync.Once
	goVersion *semver.Version
	goErr     *taxonomy.BuildError
}

type outcome struct {
	result     phase.Result
	resolution *resolve.Result
}

func (o *Orchestrator) newRun() *run {
	return &run{id: uuid.NewString(), registry: o.registryFactory()}
}

// Run executes the phases selected by targets in fixed order. Unselected
// phases are Skipped. It always returns a result; phase faults become
// SystemError entries of an Error phase.
func (o *Orchestrator) Run(ctx context.Context, targets ...Target) *BuildValidationResult {
	if len(targets) == 0 {
		targets = []Target{TargetAll}
	}
	rs := o.newRun()
	result := &BuildValidationResult{
		RunID:     rs.id,
		Workspace: o.ws.Root,
		Targets:   targets,
		StartTime: time.Now(),
	}
	hist := o.beginHistory(result)

	slog.Info("validation run started", "run", rs.id, "workspace", o.ws.Root, "targets", targets)
	o.emit(Event{Type: EventRunStarted, RunID: rs.id, Message: o.ws.Root})

	want := selected(targets)
	outcomes := make([]outcome, len(Phases))
	runAt := func(i int) {
		name := Phases[i]
		if !want[name] {
			outcomes[i] = outcome{result: phase.Skip(name, "not selected")}
			return
		}
		outcomes[i] = o.execute(ctx, rs, name)
	}

	// Environment shares no state with the build chain, so it may run
	// alongside it. Its slot in the sequence waits for it to finish.
	var parallel errgroup.Group
	concurrentEnv := o.cfg.Pipeline.Parallel && want[PhaseEnvironment]
	for i, name := range Phases {
		if name == PhaseEnvironment && concurrentEnv {
			parallel.Go(func() error {
				runAt(i)
				return nil
			})
			break
		}
	}
	for i, name := range Phases {
		if name == PhaseEnvironment && concurrentEnv {
			_ = parallel.Wait()
			continue
		}
		runAt(i)
	}

	for _, oc := range outcomes {
		result.Phases = append(result.Phases, oc.result)
		if oc.resolution != nil {
			if result.Resolutions == nil {
				result.Resolutions = make(map[string]*resolve.Result)
			}
			result.Resolutions[oc.result.Name] = oc.resolution
		}
	}
	result.Docker = rs.docker
	result.Environment = rs.env
	result.Tests = rs.tests
	result.MonitoringFile = rs.monitoringFile
	result.Duration = time.Since(result.StartTime)

	overall := result.OverallStatus()
	slog.Info("validation run finished",
		"run", rs.id,
		"status", overall,
		"errors", len(result.Errors()),
		"resolved", result.ResolvedCount(),
		"duration", result.Duration)
	o.emit(Event{Type: EventRunDone, RunID: rs.id, Status: overall, Errors: len(result.Errors()), Duration: result.Duration})
	o.finishHistory(hist, result)
	return result
}

// RunPhase executes a single named phase, including resolution when it
// fails. It does not record history.
func (o *Orchestrator) RunPhase(ctx context.Context, name string) (phase.Result, *resolve.Result, error) {
	if _, ok := o.phaseBody(name); !ok {
		return phase.Result{}, nil, fmt.Errorf("%w: %q", ErrUnknownPhase, name)
	}
	oc := o.execute(ctx, o.newRun(), name)
	return oc.result, oc.resolution, nil
}

type phaseFunc func(ctx context.Context, rs *run, r *phase.Result) error

func (o *Orchestrator) phaseBody(name string) (phaseFunc, bool) {
	switch name {
	case PhaseDependencies:
		return o.dependencies, true
	case PhaseProjectReferences:
		return o.projectReferences, true
	case PhaseCompilation:
		return o.compilation, true
	case PhaseDocker:
		return o.dockerPhase, true
	case PhaseEnvironment:
		return o.environment, true
	case PhaseTesting:
		return o.testing, true
	case PhaseMonitoring:
		return o.monitoring, true
	default:
		return nil, false
	}
}

// execute runs one phase, folds in its sub-aggregate status and, for a
// failing validation phase, hands its errors to the registry.
func (o *Orchestrator) execute(ctx context.Context, rs *run, name string) outcome {
	o.emit(Event{Type: EventPhaseStarted, RunID: rs.id, Phase: name})

	body, _ := o.phaseBody(name)
	res := phase.Run(ctx, name, func(ctx context.Context, r *phase.Result) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run cancelled: %w", err)
		}
		return body(ctx, rs, r)
	})
	if sub, ok := rs.subStatus(name); ok {
		settle(&res, sub)
	}

	oc := outcome{result: res}
	if o.cfg.Pipeline.AutoResolve && resolvable(name) && !res.Status.Passing() && len(res.Errors) > 0 && ctx.Err() == nil {
		oc.resolution = o.resolve(ctx, rs, &oc.result)
		o.emit(Event{
			Type:     EventResolutionFinished,
			RunID:    rs.id,
			Phase:    name,
			Errors:   oc.resolution.Total(),
			Resolved: oc.resolution.Resolved(),
		})
	}

	o.emit(Event{
		Type:     EventPhaseFinished,
		RunID:    rs.id,
		Phase:    name,
		Status:   oc.result.Status,
		Errors:   len(oc.result.Errors),
		Duration: oc.result.Duration,
	})
	return oc
}

func (o *Orchestrator) resolve(ctx context.Context, rs *run, r *phase.Result) *resolve.Result {
	o.resolveMu.Lock()
	defer o.resolveMu.Unlock()

	res := rs.registry.Resolve(ctx, r.Errors)
	r.AddWarning("resolution: %d of %d errors resolved", res.Resolved(), res.Total())
	slog.Info("phase resolution finished",
		"phase", r.Name,
		"resolved", res.Resolved(),
		"total", res.Total(),
		"success_rate", res.SuccessRate())
	return res
}

// subStatus returns the aggregate status of the component result behind
// a phase, if it has one.
func (rs *run) subStatus(name string) (phase.Status, bool) {
	switch {
	case name == PhaseDocker && rs.docker != nil:
		return rs.docker.OverallStatus(), true
	case name == PhaseEnvironment && rs.env != nil:
		return rs.env.OverallStatus(), true
	case name == PhaseTesting && rs.tests != nil:
		return rs.tests.OverallStatus(), true
	default:
		return phase.NotStarted, false
	}
}

// settle folds a component aggregate into the phase status so the phase is
// never better than its worst child. A phase with nothing to check and no
// errors is Skipped.
func settle(r *phase.Result, sub phase.Status) {
	if r.Status == phase.Error {
		return
	}
	if sub == phase.Skipped && len(r.Errors) == 0 {
		r.Status = phase.Skipped
		return
	}
	r.Status = phase.Aggregate(r.Status, sub)
}

func (o *Orchestrator) emit(e Event) {
	if o.events != nil {
		o.events.Emit(e)
	}
}

func resolvePath(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
