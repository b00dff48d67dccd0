package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	elementsCommit string
	elementsFormat string
)

var elementsCmd = &cobra.Command{
	Use:   "elements <file>",
	Short: "List the trackable elements of a file",
	Long: `Parse a file at a commit and print the key of every element in it.

The keys printed here are the ones accepted by "codetracker track --element".

Examples:
  codetracker elements src/Account.java --format text
  codetracker elements app/greeter.py --commit HEAD~3`,
	Args: cobra.ExactArgs(1),
	RunE: runElements,
}

func init() {
	elementsCmd.Flags().StringVar(&elementsCommit, "commit", "HEAD", "Revision to read the file at")
	elementsCmd.Flags().StringVar(&elementsFormat, "format", "text", "Output format (json, yaml, text)")
	rootCmd.AddCommand(elementsCmd)
}

func runElements(cmd *cobra.Command, args []string) error {
	format, err := ParseOutputFormat(elementsFormat)
	if err != nil {
		return err
	}

	ctx, stop := commandContext()
	defer stop()

	t, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer closeTracker(t)

	elems, err := t.Elements(ctx, elementsCommit, args[0])
	if err != nil {
		return err
	}
	return writeOutput(os.Stdout, elems, format)
}
