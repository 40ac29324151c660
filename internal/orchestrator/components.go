package orchestrator

import (
	"fmt"
	"net/http"

	"github.com/ShayCichocki/buildcheck/internal/config"
	"github.com/ShayCichocki/buildcheck/internal/dockerdiag"
	"github.com/ShayCichocki/buildcheck/internal/envcheck"
	"github.com/ShayCichocki/buildcheck/internal/exec"
	"github.com/ShayCichocki/buildcheck/internal/health"
	"github.com/ShayCichocki/buildcheck/internal/resolve"
	"github.com/ShayCichocki/buildcheck/internal/runtimeerr"
	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
	"github.com/ShayCichocki/buildcheck/internal/testexec"
	"github.com/ShayCichocki/buildcheck/internal/workspace"
)

// CustomPatterns loads classifier.patterns_file, resolved against root
// when relative. No file configured means no extra patterns.
func CustomPatterns(cfg *config.Config, root string) ([]taxonomy.Pattern, error) {
	path := cfg.Classifier.PatternsFile
	if path == "" {
		return nil, nil
	}
	patterns, err := taxonomy.LoadPatterns(resolvePath(root, path))
	if err != nil {
		return nil, fmt.Errorf("load classifier patterns: %w", err)
	}
	return patterns, nil
}

// NewRegistry builds a registry holding the default strategy set.
func NewRegistry(cfg *config.Config, runner exec.CommandRunner, ws *workspace.Workspace) *resolve.Registry {
	return resolve.NewRegistry(resolve.DefaultStrategies(resolve.Options{
		Runner:       runner,
		GoBinary:     cfg.Go.Binary,
		BuildTimeout: cfg.Timeouts.Build,
		ProbeTimeout: cfg.Timeouts.Probe,
		Workspace:    ws,
		DotenvFiles:  cfg.Environment.DotenvFiles,
		Environment:  cfg.Runtime.Environment,
	})...)
}

// NewDockerValidator builds the Docker phase validator.
func NewDockerValidator(cfg *config.Config, runner exec.CommandRunner, patterns []taxonomy.Pattern) *dockerdiag.Validator {
	return &dockerdiag.Validator{
		Engine: &dockerdiag.Engine{
			Runner:       runner,
			Binary:       cfg.Docker.Binary,
			ProbeTimeout: cfg.Timeouts.Probe,
			BuildTimeout: cfg.Timeouts.Build,
		},
		Classifier:        dockerdiag.NewClassifier(patterns...),
		BuildTest:         cfg.Docker.BuildTest,
		MaxConsecutiveRun: cfg.Policy.MaxConsecutiveRun,
	}
}

// NewEnvChecker builds the Environment phase checker.
func NewEnvChecker(cfg *config.Config, root string) *envcheck.Checker {
	req := cfg.Environment.Required
	return &envcheck.Checker{
		Required: map[envcheck.Group][]string{
			envcheck.Database:       req.Database,
			envcheck.Authentication: req.Authentication,
			envcheck.Networking:     req.Networking,
			envcheck.SSL:            req.SSL,
		},
		Root:        root,
		DotenvFiles: cfg.Environment.DotenvFiles,
		CertPath:    cfg.Environment.CertPath,
		ExpiryDays:  cfg.Policy.CertExpiryDays,
	}
}

// NewTestExecutor builds the Testing phase executor. The error-simulation
// tier exercises a runtime handler configured for runtime.environment.
func NewTestExecutor(cfg *config.Config, runner exec.CommandRunner, ws *workspace.Workspace, c *taxonomy.Classifier) *testexec.Executor {
	return &testexec.Executor{
		Runner:    runner,
		Workspace: ws,
		Conventions: map[testexec.Tier][]string{
			testexec.Unit:        cfg.Tests.Unit,
			testexec.Integration: cfg.Tests.Integration,
			testexec.Component:   cfg.Tests.Component,
		},
		Command:     cfg.Tests.Command,
		Concurrency: cfg.Pipeline.TestConcurrency,
		Timeout:     cfg.Timeouts.Test,
		Classifier:  c,
		Handler:     runtimeerr.NewHandler(c, cfg.Runtime.Environment),
		Scenarios:   testexec.DefaultScenarios(),
	}
}

// HealthTargets returns the API, Web and Database probe targets. Targets
// with no endpoint are included; the prober skips them.
func HealthTargets(cfg *config.Config) []health.Target {
	return []health.Target{
		{Name: "API", Endpoint: cfg.Health.API},
		{Name: "Web", Endpoint: cfg.Health.Web},
		{Name: "Database", Endpoint: cfg.Health.Database, Category: taxonomy.DatabaseConnectivity},
	}
}

// NewProber builds a health prober with the configured retry policy.
func NewProber(cfg *config.Config, c *taxonomy.Classifier) *health.Prober {
	return &health.Prober{
		Client:     &http.Client{},
		Classifier: c,
		Backoff:    health.Backoff{Base: cfg.Health.BaseDelay, Max: cfg.Health.MaxDelay},
		MaxRetries: cfg.Health.MaxRetries,
		Timeout:    cfg.Timeouts.Probe,
	}
}
