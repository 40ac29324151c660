package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/buildcheck/internal/config"
	"github.com/ShayCichocki/buildcheck/internal/exec"
	"github.com/ShayCichocki/buildcheck/internal/logging"
	"github.com/ShayCichocki/buildcheck/internal/orchestrator"
	"github.com/ShayCichocki/buildcheck/internal/report"
	"github.com/ShayCichocki/buildcheck/internal/state"
	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
	"github.com/ShayCichocki/buildcheck/internal/workspace"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// historyRetention is how long finished runs are kept in the history store.
const historyRetention = 90 * 24 * time.Hour

var (
	flagWorkspace string
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
	flagNoHistory bool
	flagOutput    string
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "buildcheck",
	Short: "Build validation and error resolution for Go workspaces",
	Long: `buildcheck runs a fixed validation pipeline over a Go workspace:

  Dependencies -> ProjectReferences -> Compilation -> Docker ->
  Environment -> Testing -> Monitoring

Every failure is classified into an error category with a severity, and
failing validation phases are handed to a resolution strategy per category
(go mod tidy, toolchain selection, .dockerignore generation, ...).

Configuration is layered: built-in defaults, ~/.config/buildcheck/config.yaml,
the nearest .buildcheck.yaml, --config, then BUILDCHECK_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagOutput != outputText && flagOutput != outputJSON {
			return fmt.Errorf("invalid --output %q (want text or json)", flagOutput)
		}
		_, err := logging.Setup(logging.Options{
			Level:  flagLogLevel,
			Format: flagLogFormat,
			Writer: cmd.ErrOrStderr(),
		})
		return err
	},
}

// Execute runs the root command. Errors other than exitError are printed.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	var ee *exitError
	if err != nil && !errors.As(err, &ee) {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return err
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagWorkspace, "workspace", "w", "", "Workspace root (default: discovered from the current directory)")
	pf.StringVar(&flagConfig, "config", "", "Additional config file, applied after .buildcheck.yaml")
	pf.StringVar(&flagLogLevel, "log-level", "warn", "Log level: debug, info, warn or error")
	pf.StringVar(&flagLogFormat, "log-format", logging.FormatAuto, "Log format: auto, text or json")
	pf.BoolVar(&flagNoHistory, "no-history", false, "Do not record this run in the history store")
	pf.StringVarP(&flagOutput, "output", "o", outputText, "Report format: text or json")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Show resolution hints, fixes and every error")

	for _, t := range orchestrator.Targets {
		rootCmd.AddCommand(newPipelineCmd(t))
	}
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// app is the per-command environment: the workspace, its configuration and
// the report printer.
type app struct {
	root  string
	cfg   *config.Config
	ws    *workspace.Workspace
	store *state.DB
	print *report.Printer

	out    io.Writer
	errOut io.Writer
}

// newApp discovers the workspace and loads its configuration. When history
// is requested and enabled, the history store is opened as well.
func newApp(cmd *cobra.Command, withHistory bool) (*app, error) {
	root, err := workspaceRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(config.LoadOptions{Dir: root, File: flagConfig})
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ws, err := workspace.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load workspace: %w", err)
	}
	slog.Debug("workspace loaded", "root", root, "projects", len(ws.Projects), "config_sources", cfg.Sources())

	a := &app{root: root, cfg: cfg, ws: ws, out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
	a.print = report.New(a.out)
	a.print.SetVerbose(flagVerbose)

	if withHistory && cfg.History.Enabled && !flagNoHistory {
		a.store = openHistory(cfg.HistoryPath(root))
	}
	return a, nil
}

// openHistory opens the history store, marks runs left behind by dead
// processes as interrupted and purges old runs. History is best effort.
func openHistory(path string) *state.DB {
	db, err := state.OpenWorkspace(path)
	if err != nil {
		slog.Warn("history disabled", "path", path, "err", err)
		return nil
	}
	if n, err := db.MarkInterrupted(); err != nil {
		slog.Warn("failed to mark interrupted runs", "err", err)
	} else if n > 0 {
		slog.Info("marked interrupted runs", "count", n)
	}
	if _, err := db.PurgeOldRuns(historyRetention); err != nil {
		slog.Warn("failed to purge old runs", "err", err)
	}
	return db
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("failed to close history store", "err", err)
		}
	}
}

func (a *app) classifier() (*taxonomy.Classifier, error) {
	patterns, err := orchestrator.CustomPatterns(a.cfg, a.root)
	if err != nil {
		return nil, err
	}
	return taxonomy.NewClassifier(taxonomy.WithPatterns(patterns...)), nil
}

func (a *app) orchestrator(command string, events *orchestrator.EventEmitter) (*orchestrator.Orchestrator, error) {
	opts := []orchestrator.Option{
		orchestrator.WithConfig(a.cfg),
		orchestrator.WithCommand(command),
		orchestrator.WithEvents(events),
	}
	if a.store != nil {
		opts = append(opts, orchestrator.WithStore(a.store))
	}
	return orchestrator.New(orchestrator.RequiredConfig{Workspace: a.ws, Runner: exec.NewRunner()}, opts...)
}

// render writes v as JSON in json output mode and calls text otherwise.
func (a *app) render(v any, text func()) error {
	if flagOutput == outputJSON {
		return report.JSON(a.out, v)
	}
	text()
	return nil
}

func workspaceRoot() (string, error) {
	if flagWorkspace != "" {
		root, err := filepath.Abs(flagWorkspace)
		if err != nil {
			return "", fmt.Errorf("resolve workspace: %w", err)
		}
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			return "", fmt.Errorf("workspace %s is not a directory", root)
		}
		return root, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	root, err := workspace.FindRoot(cwd, workspace.DefaultMarkers)
	if errors.Is(err, workspace.ErrRootNotFound) {
		slog.Debug("no workspace marker found, using current directory", "dir", cwd)
		return cwd, nil
	}
	return root, err
}

// failIf returns an exitError with code 1 when passed is false.
func failIf(passed bool) error {
	if passed {
		return nil
	}
	return &exitError{code: 1}
}
