package orchestrator

import (
	"github.com/ShayCichocki/buildcheck/internal/config"
	"github.com/ShayCichocki/buildcheck/internal/dockerdiag"
	"github.com/ShayCichocki/buildcheck/internal/envcheck"
	"github.com/ShayCichocki/buildcheck/internal/exec"
	"github.com/ShayCichocki/buildcheck/internal/health"
	"github.com/ShayCichocki/buildcheck/internal/resolve"
	"github.com/ShayCichocki/buildcheck/internal/state"
	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
	"github.com/ShayCichocki/buildcheck/internal/testexec"
	"github.com/ShayCichocki/buildcheck/internal/workspace"
)

// RequiredConfig contains the minimal required configuration for an Orchestrator.
// All fields are required and have no defaults.
type RequiredConfig struct {
	// Workspace is the loaded workspace to validate.
	Workspace *workspace.Workspace
	// Runner executes the go toolchain and the container engine.
	Runner exec.CommandRunner
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
// Components left nil are built from cfg in New.
type orchestratorOptions struct {
	cfg        *config.Config
	classifier *taxonomy.Classifier
	command    string
	events     *EventEmitter
	store      state.RunStore

	// Injectable dependencies for testing
	registryFactory func() *resolve.Registry
	docker          *dockerdiag.Validator
	env             *envcheck.Checker
	tests           *testexec.Executor
	targets         []health.Target
}

// WithConfig sets the configuration. Defaults to config.Default().
func WithConfig(cfg *config.Config) Option {
	return func(o *orchestratorOptions) { o.cfg = cfg }
}

// WithClassifier sets the classifier shared by every phase.
func WithClassifier(c *taxonomy.Classifier) Option {
	return func(o *orchestratorOptions) { o.classifier = c }
}

// WithCommand sets the command name recorded in run history.
func WithCommand(name string) Option {
	return func(o *orchestratorOptions) { o.command = name }
}

// WithEvents sets the emitter that receives progress events. The caller
// owns the emitter and closes it.
func WithEvents(e *EventEmitter) Option {
	return func(o *orchestratorOptions) { o.events = e }
}

// WithStore records every run in the given history store.
func WithStore(s state.RunStore) Option {
	return func(o *orchestratorOptions) { o.store = s }
}

// WithRegistry uses the same registry for every run instead of building
// the default strategy set per run.
func WithRegistry(r *resolve.Registry) Option {
	return func(o *orchestratorOptions) {
		o.registryFactory = func() *resolve.Registry { return r }
	}
}

// WithDockerValidator replaces the Docker phase validator.
func WithDockerValidator(v *dockerdiag.Validator) Option {
	return func(o *orchestratorOptions) { o.docker = v }
}

// WithEnvChecker replaces the Environment phase checker.
func WithEnvChecker(c *envcheck.Checker) Option {
	return func(o *orchestratorOptions) { o.env = c }
}

// WithTestExecutor replaces the Testing phase executor.
func WithTestExecutor(e *testexec.Executor) Option {
	return func(o *orchestratorOptions) { o.tests = e }
}

// WithHealthTargets sets the endpoints written into the monitoring config.
func WithHealthTargets(targets []health.Target) Option {
	return func(o *orchestratorOptions) { o.targets = targets }
}
