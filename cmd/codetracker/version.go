package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/flozender/code-tracker-sub024/internal/version"
)

var versionFormat string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := ParseOutputFormat(versionFormat)
		if err != nil {
			return err
		}
		return writeOutput(os.Stdout, version.Get(), format)
	},
}

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "text", "Output format (json, yaml, text)")
	rootCmd.AddCommand(versionCmd)
}
