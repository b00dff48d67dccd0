package history

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"path"

	"github.com/bmatcuk/doublestar/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flozender/code-tracker-sub024/internal/backends/git"
	"github.com/flozender/code-tracker-sub024/internal/errors"
	"github.com/flozender/code-tracker-sub024/internal/matcher"
	"github.com/flozender/code-tracker-sub024/internal/snapshot"
	"github.com/flozender/code-tracker-sub024/internal/syntax"
	"github.com/flozender/code-tracker-sub024/internal/walker"
)

var tracer = otel.Tracer("codetracker.history")

const (
	DefaultMaxConsecutiveGaps = 3
	DefaultMaxMoveCandidates  = 20
)

// Options configures a Builder.
type Options struct {
	// MaxConsecutiveGaps is the number of unreadable revisions in a row
	// tolerated before the history is declared incomplete.
	MaxConsecutiveGaps int
	// MaxSteps bounds the number of walker steps. Zero means unbounded.
	MaxSteps int
	// MaxMoveCandidates bounds the files searched for a cross-file move.
	MaxMoveCandidates int
	FollowRenames     bool
	Logger            *slog.Logger
}

// Builder reconstructs histories. One Builder serves many concurrent Build
// calls; each call owns its walker and result.
type Builder struct {
	backend git.Backend
	cache   *snapshot.Cache
	matcher *matcher.Matcher
	opts    Options
	logger  *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(backend git.Backend, cache *snapshot.Cache, m *matcher.Matcher, opts Options) *Builder {
	if opts.MaxConsecutiveGaps <= 0 {
		opts.MaxConsecutiveGaps = DefaultMaxConsecutiveGaps
	}
	if opts.MaxMoveCandidates <= 0 {
		opts.MaxMoveCandidates = DefaultMaxMoveCandidates
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{
		backend: backend,
		cache:   cache,
		matcher: m,
		opts:    opts,
		logger:  logger,
	}
}

// cursor is the last good version: its commit, path and parsed tree.
type cursor struct {
	commit git.Commit
	path   string
	tree   *syntax.Tree
	idx    int
}

type outcomeKind int

const (
	outcomeMatched outcomeKind = iota
	outcomeNotFound
	outcomeGap
	outcomeBlobGap
	outcomeUnsupported
)

type outcome struct {
	kind      outcomeKind
	candidate walker.Candidate
	tree      *syntax.Tree
	result    matcher.Result
	err       error
}

// Build tracks the element identified by key in path at start.
//
// Errors are returned only when the start element cannot be resolved, and
// on cancellation, where the partial history is returned as well. Every
// other irregularity becomes a gap or a termination reason.
func (b *Builder) Build(ctx context.Context, start git.Commit, filePath string, key syntax.ElementKey) (*History, error) {
	ctx, span := tracer.Start(ctx, "history.Build",
		trace.WithAttributes(
			attribute.String("commit", start.ID),
			attribute.String("path", filePath),
			attribute.String("element", key.String()),
		),
	)
	defer span.End()

	tree, err := b.cache.Get(ctx, start.ID, filePath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start snapshot")
		return nil, fmt.Errorf("snapshot %s at %s: %w", filePath, start.ID, err)
	}
	idx, ok := tree.Find(key)
	if !ok {
		err := errors.New(errors.ElementNotFound, fmt.Sprintf("%s not found in %s at %s", key, filePath, start.ID), nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, "start element")
		return nil, err
	}

	cur := cursor{commit: start, path: filePath, tree: tree, idx: idx}
	c := &chain{versions: []ElementVersion{newVersion(start, tree, idx)}}
	w := walker.New(b.backend, start, filePath, walker.Options{
		FollowRenames: b.opts.FollowRenames,
		Logger:        b.logger,
	})

	h, err := b.run(ctx, w, c, cur)
	if h == nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "walk failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("termination", string(h.Termination.Reason)),
		attribute.Int("versions", len(h.Versions)),
		attribute.Int("gaps", len(h.Gaps)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancelled")
	}
	return h, err
}

func (b *Builder) run(ctx context.Context, w *walker.Walker, c *chain, cur cursor) (*History, error) {
	gaps := 0
	for steps := 0; ; steps++ {
		if err := ctx.Err(); err != nil {
			return c.history(Termination{Reason: Cancelled, Commit: cur.commit.ID}, nil), err
		}
		if b.opts.MaxSteps > 0 && steps >= b.opts.MaxSteps {
			return c.history(Termination{
				Reason: Incomplete,
				Commit: cur.commit.ID,
				Detail: fmt.Sprintf("step limit %d reached", b.opts.MaxSteps),
			}, nil), nil
		}

		step, err := w.Next(ctx)
		switch {
		case stderrors.Is(err, walker.ErrDone):
			return c.history(Termination{Reason: RootReached, Commit: cur.commit.ID}, nil), nil
		case err != nil && ctx.Err() != nil:
			return c.history(Termination{Reason: Cancelled, Commit: cur.commit.ID}, nil), ctx.Err()
		case err != nil:
			c.gaps = append(c.gaps, newGap(cur.commit.ID, cur.path, err))
			return c.history(Termination{Reason: Incomplete, Commit: cur.commit.ID, Detail: err.Error()}, nil), nil
		}

		outcomes, err := b.examine(ctx, step, cur)
		if err != nil {
			return c.history(Termination{Reason: Cancelled, Commit: cur.commit.ID}, nil), err
		}

		child := step.Child
		if best, ok := b.best(cur, outcomes); ok {
			gaps = 0
			parent := best.candidate.Parent
			older := best.tree
			c.add(newVersion(parent, older, best.result.OlderIndex), child, best.result)
			if best.result.Ops.Has(matcher.Extracted) {
				return c.history(Termination{Reason: Introduced, Commit: child.ID, Detail: "extracted"}, nil), nil
			}
			if err := w.Follow(parent.ID, older.Path); err != nil {
				return nil, errors.New(errors.InternalError, "follow matched parent", err)
			}
			cur = cursor{commit: parent, path: older.Path, tree: older, idx: best.result.OlderIndex}
			continue
		}

		counts := make(map[outcomeKind]int)
		var skip *outcome
		for i := range outcomes {
			o := &outcomes[i]
			counts[o.kind]++
			switch o.kind {
			case outcomeGap, outcomeBlobGap:
				c.gaps = append(c.gaps, newGap(o.candidate.Parent.ID, o.candidate.OldPath, o.err))
				if o.kind == outcomeGap && skip == nil {
					skip = o
				}
			case outcomeMatched, outcomeNotFound, outcomeUnsupported:
			}
		}

		switch {
		case counts[outcomeNotFound] > 0 && counts[outcomeGap]+counts[outcomeBlobGap] == 0:
			if mv, ok := b.findMove(ctx, step, cur); ok {
				gaps = 0
				parent := mv.candidate.Parent
				c.add(newVersion(parent, mv.tree, mv.result.OlderIndex), child, mv.result)
				if err := w.Follow(parent.ID, mv.tree.Path); err != nil {
					return nil, errors.New(errors.InternalError, "follow moved element", err)
				}
				cur = cursor{commit: parent, path: mv.tree.Path, tree: mv.tree, idx: mv.result.OlderIndex}
				continue
			}
			if err := ctx.Err(); err != nil {
				return c.history(Termination{Reason: Cancelled, Commit: cur.commit.ID}, nil), err
			}
			return c.history(Termination{Reason: Introduced, Commit: child.ID}, &child), nil

		case skip != nil:
			gaps++
			if gaps > b.opts.MaxConsecutiveGaps {
				return c.history(Termination{
					Reason: Incomplete,
					Commit: cur.commit.ID,
					Detail: fmt.Sprintf("%d consecutive unreadable revisions", gaps),
				}, nil), nil
			}
			b.logger.Debug("Skipping unreadable revision",
				"commit", skip.candidate.Parent.ID,
				"path", skip.candidate.OldPath,
				"code", errors.CodeOf(skip.err),
			)
			if err := w.Follow(skip.candidate.Parent.ID, skip.candidate.OldPath); err != nil {
				return nil, errors.New(errors.InternalError, "follow skipped parent", err)
			}

		case counts[outcomeUnsupported] > 0 && counts[outcomeBlobGap] == 0:
			return c.history(Termination{Reason: Unsupported, Commit: child.ID}, nil), nil

		default:
			return c.history(Termination{
				Reason: Incomplete,
				Commit: cur.commit.ID,
				Detail: "no parent of " + child.ID + " could be read",
			}, nil), nil
		}
	}
}

// examine matches the current element against every candidate parent.
// The returned error is non-nil only on cancellation.
func (b *Builder) examine(ctx context.Context, step *walker.Step, cur cursor) ([]outcome, error) {
	ctx, span := tracer.Start(ctx, "history.step",
		trace.WithAttributes(
			attribute.String("commit", step.Child.ID),
			attribute.Int("candidates", len(step.Candidates)),
		),
	)
	defer span.End()

	if step.Merge() {
		var keys []snapshot.Key
		for _, cand := range step.Candidates {
			if cand.Usable() {
				keys = append(keys, snapshot.Key{Commit: cand.Parent.ID, Path: cand.OldPath})
			}
		}
		if err := b.cache.Prefetch(ctx, keys); err != nil {
			return nil, err
		}
	}

	out := make([]outcome, 0, len(step.Candidates))
	for _, cand := range step.Candidates {
		o := outcome{candidate: cand}
		switch {
		case cand.Gap != nil:
			o.kind, o.err = outcomeBlobGap, cand.Gap
		case cand.Missing:
			o.kind = outcomeNotFound
		default:
			tree, err := b.cache.Get(ctx, cand.Parent.ID, cand.OldPath)
			switch {
			case err == nil:
				o.tree = tree
				o.result = b.matcher.Match(cur.tree, cur.idx, tree)
				o.kind = outcomeNotFound
				if o.result.Found {
					o.kind = outcomeMatched
				}
			case ctx.Err() != nil:
				return nil, ctx.Err()
			case errors.IsCode(err, errors.UnsupportedLanguage):
				o.kind, o.err = outcomeUnsupported, err
			case errors.IsCode(err, errors.BlobNotFound):
				o.kind, o.err = outcomeBlobGap, errors.New(errors.HistoryGap, "read "+cand.OldPath, err)
			default:
				o.kind, o.err = outcomeGap, errors.New(errors.HistoryGap, "parse "+cand.OldPath, err)
			}
		}
		out = append(out, o)
	}

	matched := 0
	for _, o := range out {
		if o.kind == outcomeMatched {
			matched++
		}
	}
	span.SetAttributes(attribute.Int("matched", matched))
	return out, nil
}

// best picks the matched outcome with the highest score. Equal scores go
// to the parent whose file is structurally closer to the current tree.
func (b *Builder) best(cur cursor, outcomes []outcome) (outcome, bool) {
	var best *outcome
	bestDist := 0
	for i := range outcomes {
		o := &outcomes[i]
		if o.kind != outcomeMatched {
			continue
		}
		dist := syntax.StructuralDistance(cur.tree, o.tree)
		switch {
		case best == nil:
		case o.result.Score > best.result.Score+scoreTolerance:
		case math.Abs(o.result.Score-best.result.Score) <= scoreTolerance && dist < bestDist:
		default:
			continue
		}
		best, bestDist = o, dist
	}
	if best == nil {
		return outcome{}, false
	}
	return *best, true
}

const scoreTolerance = 1e-9

// findMove searches the files changed by step's child for the element's
// predecessor. A predecessor counts only if it is gone from its own file
// in the child commit.
func (b *Builder) findMove(ctx context.Context, step *walker.Step, cur cursor) (outcome, bool) {
	ctx, span := tracer.Start(ctx, "history.findMove",
		trace.WithAttributes(attribute.String("commit", step.Child.ID)),
	)
	defer span.End()

	pattern := "**/*" + path.Ext(cur.path)
	var best outcome
	found := false
	for _, cand := range step.Candidates {
		if cand.Gap != nil {
			continue
		}
		changes, err := b.backend.ChangedFiles(ctx, step.Child.ID, cand.Parent.ID)
		if err != nil {
			b.logger.Debug("Move search skipped", "commit", step.Child.ID, "error", err.Error())
			continue
		}

		searched := 0
		for _, ch := range changes {
			if ch.From == "" || ch.From == cand.OldPath {
				continue
			}
			if ok, _ := doublestar.Match(pattern, ch.From); !ok {
				continue
			}
			if searched >= b.opts.MaxMoveCandidates {
				break
			}
			searched++

			older, err := b.cache.Get(ctx, cand.Parent.ID, ch.From)
			if err != nil || older.Language != cur.tree.Language {
				continue
			}
			r := b.matcher.Match(cur.tree, cur.idx, older)
			if !r.Found || r.Ops.Has(matcher.Extracted) {
				continue
			}
			if ch.To != "" {
				if after, err := b.cache.Get(ctx, step.Child.ID, ch.To); err == nil {
					if _, still := after.Find(older.Key(r.OlderIndex)); still {
						continue
					}
				}
			}
			if !found || r.Score > best.result.Score {
				best = outcome{kind: outcomeMatched, candidate: cand, tree: older, result: r}
				found = true
			}
		}
		if found {
			break
		}
	}

	span.SetAttributes(attribute.Bool("found", found))
	if found {
		b.logger.Debug("Cross-file move",
			"commit", step.Child.ID,
			"from", best.tree.Path,
			"to", cur.path,
		)
	}
	return best, found
}
