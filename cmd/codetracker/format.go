package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/flozender/code-tracker-sub024/internal/history"
	"github.com/flozender/code-tracker-sub024/internal/snapshot"
	"github.com/flozender/code-tracker-sub024/internal/tracker"
	"github.com/flozender/code-tracker-sub024/internal/version"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatYAML OutputFormat = "yaml"
	FormatText OutputFormat = "text"
)

// ParseOutputFormat validates a --format value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatJSON, FormatYAML, FormatText:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want json, yaml or text)", s)
	}
}

// writeOutput renders v to w in the requested format.
func writeOutput(w io.Writer, v any, format OutputFormat) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case FormatText:
		return writeText(w, v)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeText(w io.Writer, v any) error {
	switch x := v.(type) {
	case *history.History:
		return writeHistoryText(w, x)
	case []tracker.Result:
		return writeResultsText(w, x)
	case []tracker.Element:
		return writeElementsText(w, x)
	case snapshot.Stats:
		return writeStatsText(w, x)
	case version.Details:
		_, err := fmt.Fprintln(w, version.Full())
		return err
	default:
		// Fall back to JSON for anything without a text form
		return writeOutput(w, v, FormatJSON)
	}
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}

func writeHistoryText(w io.Writer, h *history.History) error {
	fmt.Fprintf(w, "Element: %s\n", h.Start.Key.String())
	fmt.Fprintf(w, "Path:    %s\n", h.Start.Path)
	fmt.Fprintf(w, "Commit:  %s\n", h.Start.Commit.ID)
	if h.RequestID != "" {
		fmt.Fprintf(w, "Request: %s\n", h.RequestID)
	}
	fmt.Fprintln(w)

	// The edge producing version i is the one whose To is i.
	produced := make(map[int]history.ChangeEdge, len(h.Edges))
	for _, e := range h.Edges {
		produced[e.To] = e
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMIT\tDATE\tAUTHOR\tCHANGE\tSCORE\tPATH\tLINES")
	for i := len(h.Versions) - 1; i >= 0; i-- {
		v := h.Versions[i]
		change, score := "-", "-"
		if e, ok := produced[i]; ok {
			change = strings.Join(e.Ops.Names(), ",")
			if e.From >= 0 {
				score = fmt.Sprintf("%.2f", e.Score)
			}
			if e.Ambiguity != nil {
				change += " (ambiguous)"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d-%d\n",
			shortID(v.Commit.ID),
			v.Commit.Time.Format("2006-01-02"),
			v.Commit.Author,
			change,
			score,
			v.Path,
			v.Range.StartLine, v.Range.EndLine,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nTermination: %s at %s", h.Termination.Reason, shortID(h.Termination.Commit))
	if h.Termination.Detail != "" {
		fmt.Fprintf(w, " (%s)", h.Termination.Detail)
	}
	fmt.Fprintln(w)

	if len(h.Gaps) > 0 {
		fmt.Fprintf(w, "\nGaps (%d):\n", len(h.Gaps))
		for _, g := range h.Gaps {
			fmt.Fprintf(w, "  %s %s [%s] %s\n", shortID(g.Commit), g.Path, g.Code, g.Message)
		}
	}
	return nil
}

func writeResultsText(w io.Writer, results []tracker.Result) error {
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "== %s %s %s\n", r.Request.Commit, r.Request.Path, r.Request.Element)
		if r.History != nil {
			if err := writeHistoryText(w, r.History); err != nil {
				return err
			}
		}
		if r.Error != "" {
			fmt.Fprintf(w, "Error: %s\n", r.Error)
		}
	}
	return nil
}

func writeElementsText(w io.Writer, elems []tracker.Element) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tLINES\tKEY")
	for _, e := range elems {
		fmt.Fprintf(tw, "%s\t%d-%d\t%s\n", e.Kind, e.Range.StartLine, e.Range.EndLine, e.Key)
	}
	return tw.Flush()
}

func writeStatsText(w io.Writer, s snapshot.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Persisted entries:\t%d\n", s.Loaded)
	fmt.Fprintf(tw, "Decoded entries:\t%d\n", s.Entries)
	fmt.Fprintf(tw, "Hits:\t%d\n", s.Hits)
	fmt.Fprintf(tw, "Misses:\t%d\n", s.Misses)
	fmt.Fprintf(tw, "Shared:\t%d\n", s.Shared)
	fmt.Fprintf(tw, "Parses:\t%d\n", s.Parses)
	fmt.Fprintf(tw, "Failures:\t%d\n", s.Failures)
	return tw.Flush()
}
