package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/buildcheck/internal/report"
	"github.com/ShayCichocki/buildcheck/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Build()
		if flagOutput == outputJSON {
			return report.JSON(cmd.OutOrStdout(), info)
		}
		fmt.Fprintln(cmd.OutOrStdout(), info)
		return nil
	},
}
