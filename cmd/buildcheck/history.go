package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/buildcheck/internal/state"
)

var (
	historyLimit int
	historyAll   bool
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List previous validation runs",
	Long: `List the runs recorded in the workspace history store, newest first.

With a run ID, show that run and every error it recorded, including
whether the resolution registry fixed it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Maximum number of runs to list")
	historyCmd.Flags().BoolVar(&historyAll, "all-workspaces", false, "Include runs of other workspaces sharing the store")
}

var errHistoryDisabled = errors.New("history is disabled (history.enabled is false)")

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.cfg.History.Enabled {
		return errHistoryDisabled
	}
	db, err := state.OpenWorkspace(a.cfg.HistoryPath(a.root))
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	a.store = db

	if len(args) == 1 {
		return showRun(a, args[0])
	}

	filter := state.RunFilter{Workspace: a.root, Limit: historyLimit}
	if historyAll {
		filter.Workspace = ""
	}
	runs, err := db.ListRuns(filter)
	if err != nil {
		return err
	}
	return a.render(runs, func() { a.print.History(runs, time.Now()) })
}

func showRun(a *app, id string) error {
	run, err := a.store.GetRun(id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", id)
	}
	errs, err := a.store.RunErrors(id)
	if err != nil {
		return err
	}
	detail := struct {
		Run    *state.Run       `json:"run"`
		Errors []state.RunError `json:"errors"`
	}{run, errs}
	return a.render(detail, func() { a.print.RunDetail(run, errs) })
}
