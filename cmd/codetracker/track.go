package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/flozender/code-tracker-sub024/internal/tracker"
)

var (
	trackCommit  string
	trackFile    string
	trackElement string
	trackFormat  string
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Reconstruct the history of one code element",
	Long: `Walk backwards from a commit and report every version of an element.

Each version lists the commit, the file path and line range the element
occupied, and the change that produced it. The walk stops when the element
is introduced, the root commit is reached, too many revisions cannot be
read, or it is interrupted; in the last case the partial history is still
printed.

Examples:
  codetracker track --file src/Account.java --element 'class:Account::method:deposit(int)'
  codetracker track --commit v1.2 --file app/greeter.py --element 'class:Greeter::method:greet' --format text
  codetracker track --repo ../other --file Foo.java --element 'class:Foo::field:count' --format yaml`,
	Args: cobra.NoArgs,
	RunE: runTrack,
}

func init() {
	trackCmd.Flags().StringVar(&trackCommit, "commit", "HEAD", "Revision to start from")
	trackCmd.Flags().StringVar(&trackFile, "file", "", "Path of the file containing the element, relative to the repository root")
	trackCmd.Flags().StringVar(&trackElement, "element", "", "Element key, e.g. class:Foo::method:bar(int)")
	trackCmd.Flags().StringVar(&trackFormat, "format", "json", "Output format (json, yaml, text)")
	_ = trackCmd.MarkFlagRequired("file")
	_ = trackCmd.MarkFlagRequired("element")
	rootCmd.AddCommand(trackCmd)
}

func runTrack(cmd *cobra.Command, args []string) error {
	format, err := ParseOutputFormat(trackFormat)
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

	h, err := t.Track(ctx, tracker.Request{
		Commit:  trackCommit,
		Path:    trackFile,
		Element: trackElement,
	})
	if h != nil {
		if werr := writeOutput(os.Stdout, h, format); werr != nil {
			return werr
		}
	}
	return err
}
