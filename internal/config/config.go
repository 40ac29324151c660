// Package config provides configuration management for buildcheck using Viper.
// It supports XDG config paths, project-level overrides, an explicit config
// file and BUILDCHECK_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

// ProjectConfigName is the per-workspace configuration file name.
const ProjectConfigName = ".buildcheck.yaml"

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "BUILDCHECK"

// Config holds all buildcheck configuration.
type Config struct {
	Policy      PolicyConfig      `mapstructure:"policy"`
	Timeouts    TimeoutsConfig    `mapstructure:"timeouts"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Docker      DockerConfig      `mapstructure:"docker"`
	Go          GoConfig          `mapstructure:"go"`
	Tests       TestsConfig       `mapstructure:"tests"`
	Environment EnvironmentConfig `mapstructure:"environment"`
	Health      HealthConfig      `mapstructure:"health"`
	Classifier  ClassifierConfig  `mapstructure:"classifier"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	History     HistoryConfig     `mapstructure:"history"`
	Runtime     RuntimeConfig     `mapstructure:"runtime"`

	v       *viper.Viper
	sources []string
}

// PolicyConfig holds the tunable pass/fail thresholds.
type PolicyConfig struct {
	ResolutionThreshold float64 `mapstructure:"resolution_threshold"`
	CertExpiryDays      int     `mapstructure:"cert_expiry_days"`
	MaxConsecutiveRun   int     `mapstructure:"max_consecutive_run"`
}

// TimeoutsConfig holds timeouts for external processes and probes.
type TimeoutsConfig struct {
	Probe time.Duration `mapstructure:"probe"`
	Build time.Duration `mapstructure:"build"`
	Test  time.Duration `mapstructure:"test"`
}

// PipelineConfig controls orchestration behavior.
type PipelineConfig struct {
	Parallel        bool `mapstructure:"parallel"`
	AutoResolve     bool `mapstructure:"auto_resolve"`
	TestConcurrency int  `mapstructure:"test_concurrency"`
}

// DockerConfig controls the Docker phase.
type DockerConfig struct {
	BuildTest bool   `mapstructure:"build_test"`
	Binary    string `mapstructure:"binary"`
}

// GoConfig names the go toolchain binary.
type GoConfig struct {
	Binary string `mapstructure:"binary"`
}

// TestsConfig holds the test command and the per-tier directory conventions.
type TestsConfig struct {
	Command     []string `mapstructure:"command"`
	Unit        []string `mapstructure:"unit"`
	Integration []string `mapstructure:"integration"`
	Component   []string `mapstructure:"component"`
}

// RequiredVars lists required environment variables per group.
type RequiredVars struct {
	Database       []string `mapstructure:"database"`
	Authentication []string `mapstructure:"authentication"`
	Networking     []string `mapstructure:"networking"`
	SSL            []string `mapstructure:"ssl"`
}

// EnvironmentConfig controls the Environment phase.
type EnvironmentConfig struct {
	Required    RequiredVars `mapstructure:"required"`
	CertPath    string       `mapstructure:"cert_path"`
	DotenvFiles []string     `mapstructure:"dotenv_files"`
}

// HealthConfig holds live probe endpoints and retry policy.
type HealthConfig struct {
	API        string        `mapstructure:"api"`
	Web        string        `mapstructure:"web"`
	Database   string        `mapstructure:"database"`
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
}

// ClassifierConfig points at an optional custom pattern file.
type ClassifierConfig struct {
	PatternsFile string `mapstructure:"patterns_file"`
}

// MonitoringConfig controls where the monitoring configuration is written.
type MonitoringConfig struct {
	Output string `mapstructure:"output"`
}

// HistoryConfig controls the SQLite run history.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// RuntimeConfig holds settings for the runtime exception handler.
type RuntimeConfig struct {
	Environment string `mapstructure:"environment"`
}

// LoadOptions selects where Load looks for configuration.
type LoadOptions struct {
	// Dir is where the search for .buildcheck.yaml starts. Defaults to the
	// current working directory.
	Dir string
	// File is an explicit config file (--config). It must exist.
	File string
}

// Load loads configuration from XDG paths, project overrides, an explicit
// file and environment variables, in increasing order of precedence.
func Load(opts LoadOptions) (*Config, error) {
	v := newViper()
	var sources []string

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	} else {
		sources = append(sources, v.ConfigFileUsed())
	}

	dir := opts.Dir
	if dir == "" {
		if cwd, err := os.Getwd(); err == nil {
			dir = cwd
		}
	}

	// Project config takes precedence over user config
	if projectConfig := findProjectConfig(dir); projectConfig != "" {
		if err := mergeFile(v, projectConfig); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
		sources = append(sources, projectConfig)
	}

	if opts.File != "" {
		if err := mergeFile(v, opts.File); err != nil {
			return nil, fmt.Errorf("merging config file: %w", err)
		}
		sources = append(sources, opts.File)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.sources = sources
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path, on top of the
// defaults and environment overrides only.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.sources = []string{path}
	return cfg, nil
}

// Default returns a Config with only the built-in defaults applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		// Defaults always decode.
		panic(err)
	}
	return cfg
}

// WriteDefault writes the built-in defaults to path as YAML. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	return v.WriteConfigAs(path)
}

// Get returns the effective value for a dotted key.
func (c *Config) Get(key string) any {
	if c.v == nil {
		return nil
	}
	return c.v.Get(key)
}

// IsSet reports whether key is a known configuration key.
func (c *Config) IsSet(key string) bool {
	return c.v != nil && c.v.IsSet(key)
}

// AllSettings returns the effective configuration as a nested map.
func (c *Config) AllSettings() map[string]any {
	if c.v == nil {
		return map[string]any{}
	}
	return c.v.AllSettings()
}

// Sources lists the configuration files that were read, lowest precedence first.
func (c *Config) Sources() []string {
	return append([]string(nil), c.sources...)
}

// Validate checks values that would otherwise surface as confusing
// failures deep inside a phase.
func (c *Config) Validate() error {
	var problems []string
	if c.Policy.ResolutionThreshold < 0 || c.Policy.ResolutionThreshold > 1 {
		problems = append(problems, fmt.Sprintf("policy.resolution_threshold must be within [0,1], got %v", c.Policy.ResolutionThreshold))
	}
	if c.Policy.CertExpiryDays <= 0 {
		problems = append(problems, "policy.cert_expiry_days must be positive")
	}
	if c.Policy.MaxConsecutiveRun <= 0 {
		problems = append(problems, "policy.max_consecutive_run must be positive")
	}
	if c.Pipeline.TestConcurrency <= 0 {
		problems = append(problems, "pipeline.test_concurrency must be positive")
	}
	if len(c.Tests.Command) == 0 {
		problems = append(problems, "tests.command must not be empty")
	}
	if c.Go.Binary == "" {
		problems = append(problems, "go.binary must not be empty")
	}
	if c.Docker.Binary == "" {
		problems = append(problems, "docker.binary must not be empty")
	}
	if c.Health.MaxRetries < 0 {
		problems = append(problems, "health.max_retries must not be negative")
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", taxonomy.ErrInvalidConfiguration, strings.Join(problems, "; "))
}

// HistoryPath returns the history database path, resolved against root when
// relative. An empty setting uses .buildcheck/history.db under root.
func (c *Config) HistoryPath(root string) string {
	p := c.History.Path
	if p == "" {
		p = filepath.Join(".buildcheck", "history.db")
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	return p
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	// BUILDCHECK_POLICY_RESOLUTION_THRESHOLD overrides policy.resolution_threshold
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func mergeFile(v *viper.Viper, path string) error {
	fileViper := viper.New()
	fileViper.SetConfigFile(path)
	if err := fileViper.ReadInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return v.MergeConfigMap(fileViper.AllSettings())
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references in endpoints and paths
	cfg.Health.API = expandEnv(cfg.Health.API)
	cfg.Health.Web = expandEnv(cfg.Health.Web)
	cfg.Health.Database = expandEnv(cfg.Health.Database)
	cfg.Environment.CertPath = expandEnv(cfg.Environment.CertPath)
	cfg.History.Path = expandEnv(cfg.History.Path)

	cfg.v = v
	return cfg, nil
}

// setDefaults configures default values for all config keys.
func setDefaults(v *viper.Viper) {
	// Policy
	v.SetDefault("policy.resolution_threshold", 0.5)
	v.SetDefault("policy.cert_expiry_days", 30)
	v.SetDefault("policy.max_consecutive_run", 5)

	// Timeouts
	v.SetDefault("timeouts.probe", "5s")
	v.SetDefault("timeouts.build", "10m")
	v.SetDefault("timeouts.test", "15m")

	// Pipeline
	v.SetDefault("pipeline.parallel", false)
	v.SetDefault("pipeline.auto_resolve", true)
	v.SetDefault("pipeline.test_concurrency", 4)

	// Toolchains
	v.SetDefault("docker.build_test", false)
	v.SetDefault("docker.binary", "docker")
	v.SetDefault("go.binary", "go")

	// Tests
	v.SetDefault("tests.command", []string{"go", "test", "./..."})
	v.SetDefault("tests.unit", []string{"UnitTests", "unit_tests", "unittest"})
	v.SetDefault("tests.integration", []string{"IntegrationTests", "integration_tests", "integrationtest"})
	v.SetDefault("tests.component", []string{"ComponentTests", "component_tests", "componenttest"})

	// Environment
	v.SetDefault("environment.required.database", []string{})
	v.SetDefault("environment.required.authentication", []string{})
	v.SetDefault("environment.required.networking", []string{})
	v.SetDefault("environment.required.ssl", []string{})
	v.SetDefault("environment.cert_path", "")
	v.SetDefault("environment.dotenv_files", []string{".env"})

	// Health
	v.SetDefault("health.api", "")
	v.SetDefault("health.web", "")
	v.SetDefault("health.database", "")
	v.SetDefault("health.max_retries", 3)
	v.SetDefault("health.base_delay", "200ms")
	v.SetDefault("health.max_delay", "5s")

	v.SetDefault("classifier.patterns_file", "")
	v.SetDefault("monitoring.output", filepath.Join(".buildcheck", "monitoring.json"))
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
	v.SetDefault("runtime.environment", "development")
}

// getUserConfigDir returns the XDG config directory for buildcheck.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "buildcheck")
	}

	// Fall back to ~/.config/buildcheck
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "buildcheck")
	}
	return filepath.Join(home, ".config", "buildcheck")
}

// findProjectConfig walks up from dir looking for .buildcheck.yaml.
func findProjectConfig(dir string) string {
	if dir == "" {
		return ""
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}
