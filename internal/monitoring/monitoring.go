// Package monitoring generates the static monitoring configuration that an
// external collector consumes: health check targets and alert rules.
package monitoring

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ShayCichocki/buildcheck/internal/health"
	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

// HealthCheck is one endpoint the collector should poll.
type HealthCheck struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	Interval string `json:"interval"`
	Timeout  string `json:"timeout"`
}

// AlertRule raises an alert when errors of a category reach a severity.
type AlertRule struct {
	Name        string            `json:"name"`
	Category    taxonomy.Category `json:"category"`
	MinSeverity taxonomy.Severity `json:"minSeverity"`
}

// Config is the document written to disk.
type Config struct {
	GeneratedAt  time.Time     `json:"generatedAt"`
	Workspace    string        `json:"workspace"`
	Environment  string        `json:"environment"`
	HealthChecks []HealthCheck `json:"healthChecks"`
	Alerts       []AlertRule   `json:"alerts"`
}

// Options are the inputs to Build.
type Options struct {
	Workspace   string
	Environment string
	Targets     []health.Target
	Interval    time.Duration
	Timeout     time.Duration
}

// Build assembles the monitoring document. Targets without endpoints are
// left out; every category whose default severity is High or above gets
// an alert rule.
func Build(opts Options) Config {
	interval := opts.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	cfg := Config{
		GeneratedAt:  time.Now().UTC(),
		Workspace:    opts.Workspace,
		Environment:  opts.Environment,
		HealthChecks: []HealthCheck{},
		Alerts:       []AlertRule{},
	}
	for _, t := range opts.Targets {
		if t.Endpoint == "" {
			continue
		}
		cfg.HealthChecks = append(cfg.HealthChecks, HealthCheck{
			Name:     t.Name,
			Endpoint: t.Endpoint,
			Interval: interval.String(),
			Timeout:  timeout.String(),
		})
	}
	for _, c := range taxonomy.Categories() {
		sev := taxonomy.DefaultSeverity(c)
		if c == taxonomy.Unknown || !sev.AtLeast(taxonomy.High) {
			continue
		}
		cfg.Alerts = append(cfg.Alerts, AlertRule{
			Name:        c.String() + "Alert",
			Category:    c,
			MinSeverity: sev,
		})
	}
	return cfg
}

// Write stores cfg as indented JSON at path, creating parent directories.
// The file is replaced atomically.
func Write(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode monitoring config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create monitoring dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".monitoring-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write monitoring config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close monitoring config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace monitoring config: %w", err)
	}
	return nil
}
