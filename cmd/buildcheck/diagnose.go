package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/buildcheck/internal/exec"
	"github.com/ShayCichocki/buildcheck/internal/orchestrator"
	"github.com/ShayCichocki/buildcheck/internal/resolve"
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose <logfile|->",
	Short: "Classify and resolve the errors in a build log",
	Long: `Extract the error lines from a build log, classify each one and run the
resolution strategies over them. Use "-" to read the log from stdin.

Exits 1 unless the share of resolved errors is greater than
policy.resolution_threshold.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiagnose,
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	data, err := readLog(cmd, args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.classifier()
	if err != nil {
		return err
	}
	registry := orchestrator.NewRegistry(a.cfg, exec.NewRunner(), a.ws)
	d := resolve.Diagnose(cmd.Context(), c, registry, string(data), a.cfg.Policy.ResolutionThreshold)
	if err := a.render(d, func() { a.print.Diagnosis(d) }); err != nil {
		return err
	}
	return failIf(d.Success)
}

func readLog(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read build log: %w", err)
	}
	return data, nil
}
