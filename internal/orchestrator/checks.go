package orchestrator

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/buildcheck/internal/monitoring"
	"github.com/ShayCichocki/buildcheck/internal/phase"
)

func (o *Orchestrator) dockerPhase(ctx context.Context, rs *run, r *phase.Result) error {
	res, err := o.docker.Validate(ctx, o.ws.Root)
	rs.docker = res
	if err != nil {
		return fmt.Errorf("docker validation: %w", err)
	}
	if len(res.Files) == 0 && res.Engine == nil {
		r.AddWarning("no Dockerfiles or compose files found")
	}
	r.AddError(res.Errors()...)
	return nil
}

func (o *Orchestrator) environment(ctx context.Context, rs *run, r *phase.Result) error {
	res := o.env.Validate(ctx)
	rs.env = res
	for _, c := range res.Checks {
		if c.Status == phase.Skipped {
			r.AddWarning("%s: nothing configured to check", c.Name)
		}
	}
	r.AddError(res.Errors()...)
	return nil
}

func (o *Orchestrator) testing(ctx context.Context, rs *run, r *phase.Result) error {
	res := o.tests.Run(ctx)
	rs.tests = res
	if res.Stopped != "" {
		r.AddWarning("%s; later test tiers not run", res.Stopped)
	}
	for _, t := range res.Tiers {
		if t.Status == phase.Skipped && t.Reason != "" {
			r.AddWarning("%s tests: %s", t.Tier, t.Reason)
		}
		if failed := t.FailedProjects(); len(failed) > 0 {
			r.AddWarning("%s tests failed in %v", t.Tier, failed)
		}
	}
	r.AddError(res.Errors()...)
	return ctx.Err()
}

// monitoring writes the health-check and alerting document for the
// configured endpoints.
func (o *Orchestrator) monitoring(_ context.Context, rs *run, r *phase.Result) error {
	doc := monitoring.Build(monitoring.Options{
		Workspace:   o.ws.Root,
		Environment: o.cfg.Runtime.Environment,
		Targets:     o.targets,
		Timeout:     o.cfg.Timeouts.Probe,
	})
	if len(doc.HealthChecks) == 0 {
		r.AddWarning("no health endpoints configured; monitoring config has alert rules only")
	}

	path := resolvePath(o.ws.Root, o.cfg.Monitoring.Output)
	if err := monitoring.Write(path, doc); err != nil {
		return fmt.Errorf("write monitoring config: %w", err)
	}
	rs.monitoringFile = path
	return nil
}
