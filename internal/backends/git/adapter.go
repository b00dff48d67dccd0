// Package git provides the version-control backend: commits, parents,
// file blobs and rename detection, read through go-git.
package git

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/flozender/code-tracker-sub024/internal/errors"
)

const (
	// BackendID is the unique identifier for the Git backend
	BackendID = "git"

	// DefaultQueryTimeout is the default timeout for git operations (5000ms)
	DefaultQueryTimeout = 5000 * time.Millisecond

	// renameScore is the minimum similarity percentage for inexact renames.
	renameScore = 60
)

// Repository implements Backend on top of a go-git repository.
type Repository struct {
	repo         *gogit.Repository
	root         string
	queryTimeout time.Duration
	logger       *slog.Logger

	// go-git object storage is not safe for concurrent readers.
	mu sync.Mutex
}

// Open opens the repository containing root, which may be any directory
// inside the worktree.
func Open(root string, timeout time.Duration, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		return nil, errors.New(errors.InternalError, "Logger is required for Repository", nil)
	}
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}

	repo, err := gogit.PlainOpenWithOptions(root, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, errors.New(errors.CommitNotFound, fmt.Sprintf("not a git repository: %s", root), err)
	}

	// DetectDotGit may have walked up from a subdirectory.
	if wt, err := repo.Worktree(); err == nil {
		root = wt.Filesystem.Root()
	}

	logger.Debug("Git repository opened",
		"backend", BackendID,
		"root", root,
		"timeout", timeout.String(),
	)

	return &Repository{
		repo:         repo,
		root:         root,
		queryTimeout: timeout,
		logger:       logger,
	}, nil
}

// Root returns the worktree root, or the opened path for a bare repository.
func (r *Repository) Root() string {
	return r.root
}

type result[T any] struct {
	val T
	err error
}

// query runs fn under the repository's query timeout. fn runs on its own
// goroutine so a stuck object read cannot block the caller past the
// deadline. Its result only crosses back through the channel, and fn
// receives the deadline context.
func query[T any](ctx context.Context, r *Repository, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if err := ctx.Err(); err != nil {
			done <- result[T]{err: err}
			return
		}
		v, err := fn(ctx)
		done <- result[T]{val: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && stderrors.Is(res.err, context.DeadlineExceeded) && !errors.IsCode(res.err, errors.Timeout) {
			return zero, r.timedOut(op, res.err)
		}
		return res.val, res.err
	case <-ctx.Done():
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, r.timedOut(op, ctx.Err())
		}
		return zero, ctx.Err()
	}
}

func (r *Repository) timedOut(op string, cause error) error {
	r.logger.Warn("Git operation timed out", "op", op, "timeout", r.queryTimeout.String())
	return errors.New(errors.Timeout, fmt.Sprintf("git %s timed out", op), cause)
}

func (r *Repository) commitObject(id string) (*object.Commit, error) {
	c, err := r.repo.CommitObject(plumbing.NewHash(id))
	if err != nil {
		return nil, errors.New(errors.CommitNotFound, id, err)
	}
	return c, nil
}

func (r *Repository) tree(id string) (*object.Tree, error) {
	c, err := r.commitObject(id)
	if err != nil {
		return nil, err
	}
	t, err := c.Tree()
	if err != nil {
		return nil, errors.New(errors.InternalError, fmt.Sprintf("tree of %s", id), err)
	}
	return t, nil
}

func (r *Repository) file(id, path string) (*object.File, error) {
	t, err := r.tree(id)
	if err != nil {
		return nil, err
	}
	f, err := t.File(path)
	if err != nil {
		if stderrors.Is(err, object.ErrFileNotFound) || stderrors.Is(err, object.ErrDirectoryNotFound) || stderrors.Is(err, object.ErrEntryNotFound) {
			return nil, errors.New(errors.BlobNotFound, fmt.Sprintf("%s not found at %s", path, short(id)), err)
		}
		return nil, errors.New(errors.InternalError, fmt.Sprintf("read %s at %s", path, short(id)), err)
	}
	return f, nil
}

func toCommit(c *object.Commit) Commit {
	parents := make([]string, len(c.ParentHashes))
	for i, h := range c.ParentHashes {
		parents[i] = h.String()
	}
	return Commit{
		ID:      c.Hash.String(),
		Parents: parents,
		Author:  c.Author.Name,
		Email:   c.Author.Email,
		Time:    c.Author.When,
		Message: c.Message,
	}
}

// ResolveCommit implements Backend.
func (r *Repository) ResolveCommit(ctx context.Context, rev string) (Commit, error) {
	return query(ctx, r, "resolve", func(context.Context) (Commit, error) {
		h, err := r.repo.ResolveRevision(plumbing.Revision(rev))
		if err != nil {
			return Commit{}, errors.New(errors.CommitNotFound, fmt.Sprintf("cannot resolve %q", rev), err)
		}
		c, err := r.commitObject(h.String())
		if err != nil {
			return Commit{}, err
		}
		return toCommit(c), nil
	})
}

// Parents implements Backend.
func (r *Repository) Parents(ctx context.Context, id string) ([]Commit, error) {
	return query(ctx, r, "parents", func(context.Context) ([]Commit, error) {
		c, err := r.commitObject(id)
		if err != nil {
			return nil, err
		}
		var out []Commit
		for _, h := range c.ParentHashes {
			p, err := r.commitObject(h.String())
			if err != nil {
				return nil, err
			}
			out = append(out, toCommit(p))
		}
		return out, nil
	})
}

// Blob implements Backend.
func (r *Repository) Blob(ctx context.Context, commit, path string) ([]byte, error) {
	return query(ctx, r, "blob", func(context.Context) ([]byte, error) {
		f, err := r.file(commit, path)
		if err != nil {
			return nil, err
		}
		reader, err := f.Reader()
		if err != nil {
			return nil, errors.New(errors.InternalError, fmt.Sprintf("open %s", path), err)
		}
		defer reader.Close()

		b, err := io.ReadAll(reader)
		if err != nil {
			return nil, errors.New(errors.InternalError, fmt.Sprintf("read %s", path), err)
		}
		return b, nil
	})
}

// BlobHash implements Backend.
func (r *Repository) BlobHash(ctx context.Context, commit, path string) (string, error) {
	return query(ctx, r, "blob-hash", func(context.Context) (string, error) {
		f, err := r.file(commit, path)
		if err != nil {
			return "", err
		}
		return f.Hash.String(), nil
	})
}

func (r *Repository) diff(ctx context.Context, commit, parent string) (object.Changes, error) {
	child, err := r.tree(commit)
	if err != nil {
		return nil, err
	}
	base, err := r.tree(parent)
	if err != nil {
		return nil, err
	}
	changes, err := object.DiffTreeWithOptions(ctx, base, child, &object.DiffTreeOptions{
		DetectRenames: true,
		RenameScore:   renameScore,
	})
	if err != nil {
		return nil, errors.New(errors.InternalError, fmt.Sprintf("diff %s..%s", short(parent), short(commit)), err)
	}
	return changes, nil
}

// DetectRename implements Backend. Tree-diff rename detection runs first;
// when it finds nothing, the parent tree is searched for a blob identical
// to the one at path.
func (r *Repository) DetectRename(ctx context.Context, commit, parent, path string) (string, bool, error) {
	oldPath, err := query(ctx, r, "rename", func(ctx context.Context) (string, error) {
		changes, err := r.diff(ctx, commit, parent)
		if err != nil {
			return "", err
		}
		for _, ch := range changes {
			if ch.To.Name == path && ch.From.Name != "" && ch.From.Name != path {
				return ch.From.Name, nil
			}
		}

		f, err := r.file(commit, path)
		if err != nil {
			return "", err
		}
		base, err := r.tree(parent)
		if err != nil {
			return "", err
		}
		if _, err := base.File(path); err == nil {
			return "", nil
		}
		var found string
		err = base.Files().ForEach(func(pf *object.File) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if pf.Hash == f.Hash && pf.Name != path {
				found = pf.Name
				return storer.ErrStop
			}
			return nil
		})
		return found, err
	})
	if err != nil {
		return "", false, err
	}
	if oldPath != "" {
		r.logger.Debug("Rename detected", "commit", short(commit), "from", oldPath, "to", path)
	}
	return oldPath, oldPath != "", nil
}

// ChangedFiles implements Backend.
func (r *Repository) ChangedFiles(ctx context.Context, commit, parent string) ([]Change, error) {
	return query(ctx, r, "changes", func(ctx context.Context) ([]Change, error) {
		changes, err := r.diff(ctx, commit, parent)
		if err != nil {
			return nil, err
		}
		out := make([]Change, 0, len(changes))
		for _, ch := range changes {
			out = append(out, Change{From: ch.From.Name, To: ch.To.Name})
		}
		return out, nil
	})
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
