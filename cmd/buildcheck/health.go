package main

import (
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/buildcheck/internal/orchestrator"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the configured API, Web and Database endpoints",
	Long: `Probe health.api, health.web and health.database.

HTTP endpoints must answer 2xx; other endpoints must accept a TCP
connection. Failed probes are retried with capped exponential backoff.
Exits 1 unless every configured endpoint is healthy.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.classifier()
	if err != nil {
		return err
	}
	rep := orchestrator.NewProber(a.cfg, c).Check(cmd.Context(), orchestrator.HealthTargets(a.cfg))
	if err := a.render(rep, func() { a.print.Health(rep) }); err != nil {
		return err
	}
	return failIf(rep.Healthy())
}
