package main

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/buildcheck/internal/config"
	"github.com/ShayCichocki/buildcheck/internal/report"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show the effective configuration",
	Long: `Display the effective configuration and where each value came from.

Without arguments, displays every key. With a key, displays that key or
every key under that section (for example "health" or "timeouts.build").
Endpoint credentials are masked.

Configuration is read from ~/.config/buildcheck/config.yaml, the nearest
.buildcheck.yaml, the --config file and BUILDCHECK_* environment variables.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfig,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a .buildcheck.yaml with the default settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := workspaceRoot()
		if err != nil {
			return err
		}
		path := filepath.Join(root, config.ProjectConfigName)
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Created %s\n", color.GreenString("✓"), path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	settings := flattenSettings(a.cfg, "", a.cfg.Redacted())
	if len(args) == 1 {
		key := strings.ToLower(args[0])
		settings = slices.DeleteFunc(settings, func(s report.Setting) bool {
			return s.Key != key && !strings.HasPrefix(s.Key, key+".")
		})
		if len(settings) == 0 {
			return fmt.Errorf("unknown configuration key: %s", args[0])
		}
	}

	if flagOutput == outputJSON {
		values := make(map[string]any, len(settings))
		for _, s := range settings {
			values[s.Key] = s.Value
		}
		return report.JSON(a.out, values)
	}
	if len(args) == 0 {
		if sources := a.cfg.Sources(); len(sources) > 0 {
			fmt.Fprintf(a.out, "# files: %s\n", strings.Join(sources, ", "))
		}
	}
	a.print.Settings(settings)
	return nil
}

// flattenSettings turns a nested settings map into dotted keys, sorted.
func flattenSettings(cfg *config.Config, prefix string, m map[string]any) []report.Setting {
	var out []report.Setting
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			out = append(out, flattenSettings(cfg, key, sub)...)
			continue
		}
		out = append(out, report.Setting{Key: key, Value: v, Source: string(cfg.Source(key))})
	}
	slices.SortFunc(out, func(a, b report.Setting) int { return strings.Compare(a.Key, b.Key) })
	return out
}
