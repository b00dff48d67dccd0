package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/flozender/code-tracker-sub024/internal/tracker"
)

var batchFormat string

var batchCmd = &cobra.Command{
	Use:   "batch <requests.toml>",
	Short: "Track many elements concurrently",
	Long: `Track every request listed in a TOML file over one shared snapshot cache.

Requests run on cache.parseWorkers goroutines. Results are printed in file
order; a failing request reports its error without stopping the others.

File format:
  [[request]]
  commit = "HEAD"
  path = "src/Account.java"
  element = "class:Account::method:deposit(int)"

  [[request]]
  path = "app/greeter.py"
  element = "class:Greeter::method:greet"

Examples:
  codetracker batch requests.toml
  codetracker batch requests.toml --format text`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchFormat, "format", "json", "Output format (json, yaml, text)")
	rootCmd.AddCommand(batchCmd)
}

type batchFile struct {
	Requests []tracker.Request `toml:"request"`
}

// loadBatch reads a request file. A missing commit defaults to HEAD.
func loadBatch(path string) ([]tracker.Request, error) {
	var f batchFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("read %s: unknown key %q", path, undecoded[0].String())
	}
	for i := range f.Requests {
		if f.Requests[i].Commit == "" {
			f.Requests[i].Commit = "HEAD"
		}
		if f.Requests[i].Path == "" || f.Requests[i].Element == "" {
			return nil, fmt.Errorf("read %s: request %d needs path and element", path, i+1)
		}
	}
	return f.Requests, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	format, err := ParseOutputFormat(batchFormat)
	if err != nil {
		return err
	}
	reqs, err := loadBatch(args[0])
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

	results, err := t.TrackAll(ctx, reqs)
	if werr := writeOutput(os.Stdout, results, format); werr != nil {
		return werr
	}
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, len(results))
	}
	return nil
}
