// Package history builds the change history of one code element: a backward
// chain of element versions joined by change edges, ending with a
// termination reason.
package history

import (
	"time"

	"github.com/flozender/code-tracker-sub024/internal/backends/git"
	"github.com/flozender/code-tracker-sub024/internal/errors"
	"github.com/flozender/code-tracker-sub024/internal/matcher"
	"github.com/flozender/code-tracker-sub024/internal/syntax"
)

// CommitInfo is the commit metadata attached to versions and edges.
type CommitInfo struct {
	ID      string    `json:"id" yaml:"id"`
	Author  string    `json:"author,omitempty" yaml:"author,omitempty"`
	Email   string    `json:"email,omitempty" yaml:"email,omitempty"`
	Time    time.Time `json:"time" yaml:"time"`
	Subject string    `json:"subject,omitempty" yaml:"subject,omitempty"`
}

func commitInfo(c git.Commit) CommitInfo {
	return CommitInfo{
		ID:      c.ID,
		Author:  c.Author,
		Email:   c.Email,
		Time:    c.Time,
		Subject: c.Subject(),
	}
}

// ElementVersion is one appearance of the tracked element.
type ElementVersion struct {
	Commit      CommitInfo        `json:"commit" yaml:"commit"`
	Path        string            `json:"path" yaml:"path"`
	Key         syntax.ElementKey `json:"key" yaml:"key"`
	Range       syntax.Range      `json:"range" yaml:"range"`
	Fingerprint string            `json:"fingerprint" yaml:"fingerprint"`
}

func newVersion(c git.Commit, tree *syntax.Tree, idx int) ElementVersion {
	n := tree.Node(idx)
	return ElementVersion{
		Commit:      commitInfo(c),
		Path:        tree.Path,
		Key:         tree.Key(idx),
		Range:       n.Range,
		Fingerprint: n.BodyDigest,
	}
}

// ChangeEdge joins two versions. From and To index History.Versions; From
// is -1 on the edge that introduces the element. Commit is the commit
// that made the change.
type ChangeEdge struct {
	From      int                `json:"from" yaml:"from"`
	To        int                `json:"to" yaml:"to"`
	Commit    CommitInfo         `json:"commit" yaml:"commit"`
	Ops       matcher.OpSet      `json:"ops" yaml:"ops"`
	Score     float64            `json:"score" yaml:"score"`
	Ambiguity *matcher.Ambiguity `json:"ambiguity,omitempty" yaml:"ambiguity,omitempty"`
	Details   []string           `json:"details,omitempty" yaml:"details,omitempty"`
}

// TerminationReason says why a history ends where it does.
type TerminationReason string

const (
	// Introduced: the element has no predecessor before Termination.Commit.
	Introduced TerminationReason = "Introduced"
	// RootReached: the walk ran out of ancestors.
	RootReached TerminationReason = "RootReached"
	// Incomplete: too many revisions could not be read or parsed.
	Incomplete TerminationReason = "Incomplete"
	// Unsupported: older revisions are in a language without a parser.
	Unsupported TerminationReason = "Unsupported"
	// Cancelled: the caller's context ended the walk.
	Cancelled TerminationReason = "Cancelled"
)

// Termination is the final state of a history.
type Termination struct {
	Reason TerminationReason `json:"reason" yaml:"reason"`
	Commit string            `json:"commit" yaml:"commit"`
	Detail string            `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Gap is a revision that could not be examined.
type Gap struct {
	Commit  string           `json:"commit" yaml:"commit"`
	Path    string           `json:"path" yaml:"path"`
	Code    errors.ErrorCode `json:"code" yaml:"code"`
	Message string           `json:"message" yaml:"message"`
}

func newGap(commit, path string, err error) Gap {
	return Gap{
		Commit:  commit,
		Path:    path,
		Code:    errors.CodeOf(err),
		Message: err.Error(),
	}
}

// History is the result of tracking one element. Versions and Edges are
// ordered oldest first; the last version is Start.
type History struct {
	RequestID   string           `json:"requestId,omitempty" yaml:"requestId,omitempty"`
	Start       ElementVersion   `json:"start" yaml:"start"`
	Versions    []ElementVersion `json:"versions" yaml:"versions"`
	Edges       []ChangeEdge     `json:"edges" yaml:"edges"`
	Termination Termination      `json:"termination" yaml:"termination"`
	Gaps        []Gap            `json:"gaps,omitempty" yaml:"gaps,omitempty"`
}

// Oldest returns the earliest version found.
func (h *History) Oldest() ElementVersion {
	return h.Versions[0]
}

// Ops returns the edge labels oldest first.
func (h *History) Ops() []matcher.OpSet {
	out := make([]matcher.OpSet, len(h.Edges))
	for i, e := range h.Edges {
		out[i] = e.Ops
	}
	return out
}

// Commits returns the version commit ids oldest first.
func (h *History) Commits() []string {
	out := make([]string, len(h.Versions))
	for i, v := range h.Versions {
		out[i] = v.Commit.ID
	}
	return out
}

// chain accumulates a history newest first while the walk runs.
type chain struct {
	versions []ElementVersion
	edges    []ChangeEdge
	gaps     []Gap
}

// add records older as the predecessor of the newest version so far.
func (c *chain) add(older ElementVersion, child git.Commit, r matcher.Result) {
	c.versions = append(c.versions, older)
	c.edges = append(c.edges, ChangeEdge{
		Commit:    commitInfo(child),
		Ops:       r.Ops,
		Score:     r.Score,
		Ambiguity: r.Ambiguity,
		Details:   r.Details,
	})
}

// history reverses the chain into a History and numbers the edges.
func (c *chain) history(term Termination, introducedAt *git.Commit) *History {
	n := len(c.versions)
	h := &History{
		Start:       c.versions[0],
		Versions:    make([]ElementVersion, n),
		Termination: term,
		Gaps:        c.gaps,
	}
	for i, v := range c.versions {
		h.Versions[n-1-i] = v
	}
	if introducedAt != nil {
		h.Edges = append(h.Edges, ChangeEdge{
			From:   -1,
			To:     0,
			Commit: commitInfo(*introducedAt),
			Ops:    matcher.Ops(matcher.Introduced),
			Score:  1,
		})
	}
	// edges[i] joins versions[i+1] (older) to versions[i] (newer).
	for i := len(c.edges) - 1; i >= 0; i-- {
		e := c.edges[i]
		e.From = n - 2 - i
		e.To = n - 1 - i
		h.Edges = append(h.Edges, e)
	}
	return h
}
