package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/buildcheck/internal/orchestrator"
	"github.com/ShayCichocki/buildcheck/internal/report"
)

var pipelineShort = map[orchestrator.Target]string{
	orchestrator.TargetAll:         "Run the full validation pipeline",
	orchestrator.TargetBuild:       "Validate dependencies, project references and compilation",
	orchestrator.TargetDocker:      "Validate Dockerfiles and compose files",
	orchestrator.TargetEnvironment: "Check environment variables, connection strings and certificates",
	orchestrator.TargetTest:        "Run the unit, integration and end-to-end test tiers",
	orchestrator.TargetMonitoring:  "Generate the monitoring configuration",
}

// newPipelineCmd builds the command for one orchestrator target. "all" is
// also available as "validate".
func newPipelineCmd(t orchestrator.Target) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(t),
		Short: pipelineShort[t],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()
			return runPipeline(cmd.Context(), a, cmd.CalledAs(), t)
		},
	}
	if t == orchestrator.TargetAll {
		cmd.Aliases = []string{"validate"}
		cmd.Long = `Run every validation phase in order:

  Dependencies, ProjectReferences, Compilation, Docker, Environment,
  Testing, Monitoring

Failing phases are handed to the resolution registry before the next phase
starts. Exits 1 unless the overall status is Passed.`
	}
	return cmd
}

// runPipeline runs one orchestration pass, streaming progress to stderr in
// text mode, and renders the result. A failing run returns an exitError.
func runPipeline(ctx context.Context, a *app, command string, targets ...orchestrator.Target) error {
	res, err := runOnce(ctx, a, command, targets...)
	if err != nil {
		return err
	}
	if err := a.render(res, func() { a.print.Validation(res) }); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("validation interrupted: %w", ctx.Err())
	}
	return failIf(res.OverallStatus().Passing())
}

func runOnce(ctx context.Context, a *app, command string, targets ...orchestrator.Target) (*orchestrator.BuildValidationResult, error) {
	events := orchestrator.NewEventEmitter(64)
	o, err := a.orchestrator(command, events)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		progress := report.New(a.errOut)
		for e := range events.Events() {
			if flagOutput == outputText {
				progress.Event(e)
			}
		}
	}()

	res := o.Run(ctx, targets...)
	events.Close()
	wg.Wait()
	return res, nil
}
