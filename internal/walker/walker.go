// Package walker enumerates, for one file, the ancestor commits that
// changed it, from a start commit back toward the root.
package walker

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/flozender/code-tracker-sub024/internal/backends/git"
	"github.com/flozender/code-tracker-sub024/internal/errors"
)

// ErrDone is returned by Next once no further steps exist.
var ErrDone = stderrors.New("walker: no more steps")

// Candidate is one parent a step's child commit can be matched against.
type Candidate struct {
	Parent git.Commit
	// OldPath is the file's path in Parent.
	OldPath string
	// Renamed is set when OldPath differs from the child's path.
	Renamed bool
	// Missing is set when the file does not exist in Parent under any path.
	Missing bool
	// Gap holds the HISTORY_GAP error when Parent could not be examined.
	Gap error
}

// Usable reports whether the candidate's file can be read.
func (c Candidate) Usable() bool {
	return c.Gap == nil && !c.Missing
}

// Step is one commit that changed the file, with its parents.
type Step struct {
	Child      git.Commit
	Path       string
	Candidates []Candidate
}

// Merge reports whether the step offers more than one parent.
func (s *Step) Merge() bool {
	return len(s.Candidates) > 1
}

// Options configures a Walker.
type Options struct {
	// FollowRenames enables whole-file rename detection.
	FollowRenames bool
	Logger        *slog.Logger
}

// Walker is a lazy, non-restartable iterator over the commits that touched
// a file. It is not safe for concurrent use.
type Walker struct {
	backend git.Backend
	opts    Options
	logger  *slog.Logger

	cur     git.Commit
	path    string
	visited map[string]bool

	pending  *Step
	followed bool
	started  bool
	done     bool
}

// New returns a walker starting at start, where the file lives at path.
func New(backend git.Backend, start git.Commit, path string, opts Options) *Walker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Walker{
		backend: backend,
		opts:    opts,
		logger:  logger,
		cur:     start,
		path:    path,
		visited: make(map[string]bool),
	}
}

// Follow selects the parent and path the walk continues from after the
// most recent step. Without a call to Follow the walk continues from the
// first usable candidate.
func (w *Walker) Follow(parentID, path string) error {
	if w.pending == nil {
		return fmt.Errorf("walker: Follow called before Next")
	}
	for _, c := range w.pending.Candidates {
		if c.Parent.ID == parentID {
			w.cur = c.Parent
			w.path = path
			w.followed = true
			w.done = false
			return nil
		}
	}
	return fmt.Errorf("walker: %s is not a parent of %s", parentID, w.pending.Child.ID)
}

func (w *Walker) advance() {
	step := w.pending
	w.pending = nil
	if w.followed {
		return
	}
	for _, c := range step.Candidates {
		if c.Usable() {
			w.cur = c.Parent
			w.path = c.OldPath
			return
		}
	}
	w.done = true
}

// Next returns the next commit that changed the file, or ErrDone.
func (w *Walker) Next(ctx context.Context) (*Step, error) {
	if w.pending != nil {
		w.advance()
	}

	for {
		if w.done {
			return nil, ErrDone
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if w.visited[w.cur.ID] {
			w.done = true
			return nil, ErrDone
		}

		child, path := w.cur, w.path
		w.visited[child.ID] = true

		parents, err := w.backend.Parents(ctx, child.ID)
		if err != nil {
			w.done = true
			return nil, errors.New(errors.HistoryGap, fmt.Sprintf("parents of %s", child.ID), err)
		}
		if len(parents) == 0 {
			w.done = true
			return nil, ErrDone
		}

		childHash, err := w.backend.BlobHash(ctx, child.ID, path)
		if err != nil {
			w.done = true
			return nil, errors.New(errors.HistoryGap, fmt.Sprintf("%s at %s", path, child.ID), err)
		}

		// The start commit is always reported so that an untouched file
		// still yields an Unchanged edge for it.
		if w.started {
			if p, ok := w.identicalParent(ctx, parents, path, childHash); ok {
				w.cur = p
				continue
			}
		}

		step := &Step{Child: child, Path: path}
		for _, p := range parents {
			if w.visited[p.ID] {
				continue
			}
			step.Candidates = append(step.Candidates, w.candidate(ctx, child, p, path))
		}
		if len(step.Candidates) == 0 {
			w.done = true
			return nil, ErrDone
		}

		w.logger.Debug("Walker step",
			"commit", child.ID,
			"path", path,
			"candidates", len(step.Candidates),
		)
		w.pending = step
		w.followed = false
		w.started = true
		return step, nil
	}
}

// identicalParent returns an unvisited parent holding the same blob.
func (w *Walker) identicalParent(ctx context.Context, parents []git.Commit, path, hash string) (git.Commit, bool) {
	for _, p := range parents {
		if w.visited[p.ID] {
			continue
		}
		h, err := w.backend.BlobHash(ctx, p.ID, path)
		if err == nil && h == hash {
			return p, true
		}
	}
	return git.Commit{}, false
}

func (w *Walker) candidate(ctx context.Context, child, parent git.Commit, path string) Candidate {
	c := Candidate{Parent: parent, OldPath: path}

	_, err := w.backend.BlobHash(ctx, parent.ID, path)
	switch {
	case err == nil:
		return c
	case !errors.IsCode(err, errors.BlobNotFound):
		c.Gap = errors.New(errors.HistoryGap, fmt.Sprintf("%s at %s", path, parent.ID), err)
		return c
	}

	if !w.opts.FollowRenames {
		c.Missing = true
		return c
	}
	old, ok, err := w.backend.DetectRename(ctx, child.ID, parent.ID, path)
	switch {
	case err != nil:
		c.Gap = errors.New(errors.HistoryGap, fmt.Sprintf("rename of %s at %s", path, child.ID), err)
	case ok:
		c.OldPath = old
		c.Renamed = true
		w.logger.Debug("Following rename", "commit", child.ID, "from", old, "to", path)
	default:
		c.Missing = true
	}
	return c
}
