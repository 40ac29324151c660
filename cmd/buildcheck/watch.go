package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/buildcheck/internal/orchestrator"
	"github.com/ShayCichocki/buildcheck/internal/watch"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run validation whenever workspace files change",
	Long: `Run the full validation pipeline, then run it again each time a Go
source file, go.mod, go.work, Dockerfile, compose file, .env or
.buildcheck.yaml changes. Bursts of changes are collected until the
workspace has been quiet for the debounce period.

The workspace and its configuration are reloaded before every run.
Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a batch of changes triggers a run")
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	w, err := watch.New(root, watchDebounce)
	if err != nil {
		return err
	}
	defer w.Close()

	ctx := cmd.Context()
	validate := func(ctx context.Context) {
		if err := watchRun(ctx, cmd); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	}

	validate(ctx)
	fmt.Fprintln(cmd.ErrOrStderr(), color.New(color.Faint).Sprintf("Watching %s for changes...", root))

	return w.Run(ctx, func(ctx context.Context, changed []string) {
		slog.Info("workspace changed", "files", len(changed), "first", changed[0])
		fmt.Fprintf(cmd.ErrOrStderr(), "\n%s %s\n", color.CyanString("↻"), describeChanges(changed))
		validate(ctx)
	})
}

// watchRun loads the workspace afresh and runs the pipeline once. A failing
// run is reported but does not stop watching.
func watchRun(ctx context.Context, cmd *cobra.Command) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := runOnce(ctx, a, "watch", orchestrator.TargetAll)
	if err != nil {
		return err
	}
	return a.render(res, func() { a.print.Validation(res) })
}

func describeChanges(changed []string) string {
	if len(changed) == 1 {
		return changed[0] + " changed"
	}
	return fmt.Sprintf("%s and %d more changed", changed[0], len(changed)-1)
}
