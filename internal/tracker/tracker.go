// Package tracker serves tracking requests. A Tracker owns one snapshot
// cache for its lifetime, so requests over the same repository share parsed
// revisions, and persists that cache between processes.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/flozender/code-tracker-sub024/internal/backends/git"
	"github.com/flozender/code-tracker-sub024/internal/config"
	"github.com/flozender/code-tracker-sub024/internal/history"
	"github.com/flozender/code-tracker-sub024/internal/matcher"
	"github.com/flozender/code-tracker-sub024/internal/metrics"
	"github.com/flozender/code-tracker-sub024/internal/snapshot"
	"github.com/flozender/code-tracker-sub024/internal/syntax"
)

var tracer = otel.Tracer("codetracker.tracker")

// Request identifies the element to track.
type Request struct {
	Commit  string `json:"commit" toml:"commit"`
	Path    string `json:"path" toml:"path"`
	Element string `json:"element" toml:"element"`
}

// Result pairs a request with its outcome.
type Result struct {
	Request Request          `json:"request" yaml:"request"`
	History *history.History `json:"history,omitempty" yaml:"history,omitempty"`
	Err     error            `json:"-" yaml:"-"`
	Error   string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// Element describes one element of a parsed file.
type Element struct {
	Key   string       `json:"key" yaml:"key"`
	Kind  string       `json:"kind" yaml:"kind"`
	Range syntax.Range `json:"range" yaml:"range"`
}

// Tracker answers tracking requests against one repository.
type Tracker struct {
	backend git.Backend
	parser  syntax.Parser
	cfg     *config.Config
	store   snapshot.Store
	cache   *snapshot.Cache
	builder *history.Builder
	logger  *slog.Logger
}

// Open builds a Tracker for the repository at repoRoot and loads the
// persisted snapshot cache selected by cfg.Cache.
func Open(ctx context.Context, repoRoot string, cfg *config.Config, backend git.Backend, parser syntax.Parser, logger *slog.Logger) (*Tracker, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store, err := openStore(cfg.Cache.Backend, cfg.CacheDir(repoRoot), logger)
	if err != nil {
		return nil, err
	}

	cache := snapshot.New(backend, parser, snapshot.Options{
		BlobTimeout:  cfg.BlobTimeout(),
		ParseTimeout: cfg.ParseTimeout(),
		Workers:      cfg.Cache.ParseWorkers,
		Store:        store,
		Logger:       logger,
	})
	if err := cache.Load(ctx); err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	m := matcher.New(MatcherOptions(cfg, logger))
	builder := history.NewBuilder(backend, cache, m, history.Options{
		MaxConsecutiveGaps: cfg.History.MaxConsecutiveGaps,
		MaxSteps:           cfg.History.MaxSteps,
		MaxMoveCandidates:  cfg.Backend.MaxMoveCandidates,
		FollowRenames:      cfg.Backend.FollowRenames,
		Logger:             logger,
	})

	logger.Debug("Tracker opened",
		"root", repoRoot,
		"cache", cfg.Cache.Backend,
		"workers", cfg.Cache.ParseWorkers,
	)

	return &Tracker{
		backend: backend,
		parser:  parser,
		cfg:     cfg,
		store:   store,
		cache:   cache,
		builder: builder,
		logger:  logger,
	}, nil
}

// MatcherOptions maps the matcher section of cfg.
func MatcherOptions(cfg *config.Config, logger *slog.Logger) matcher.Options {
	mc := cfg.Matcher
	return matcher.Options{
		NameWeight:         mc.Weights.Name,
		SignatureWeight:    mc.Weights.Signature,
		BodyWeight:         mc.Weights.Body,
		AcceptThreshold:    mc.AcceptThreshold,
		AmbiguityEpsilon:   mc.AmbiguityEpsilon,
		ExtractContainment: mc.ExtractContainment,
		MinBodyTokens:      mc.MinBodyTokens,
		Logger:             logger,
	}
}

func openStore(backend, dir string, logger *slog.Logger) (snapshot.Store, error) {
	switch backend {
	case "sqlite":
		s, err := snapshot.OpenSQLiteStore(dir, logger)
		if err != nil {
			return nil, fmt.Errorf("open snapshot database: %w", err)
		}
		return s, nil
	case "file":
		return snapshot.NewFileStore(filepath.Join(dir, snapshot.FileStoreName), logger), nil
	case "none", "":
		return nil, nil
	default:
		return nil, &config.ConfigError{Field: "cache.backend", Message: fmt.Sprintf("unknown backend %q", backend)}
	}
}

// Close flushes the snapshot cache and releases the store.
func (t *Tracker) Close(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	flushErr := t.cache.Flush(ctx)
	closeErr := t.store.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Stats returns snapshot cache counters.
func (t *Tracker) Stats() snapshot.Stats {
	return t.cache.Stats()
}

// ClearCache removes every persisted snapshot and forgets the ones already
// loaded, so a later Close does not write them back.
func (t *Tracker) ClearCache(ctx context.Context) error {
	t.cache.Reset()
	if t.store == nil {
		return nil
	}
	return t.store.Clear(ctx)
}

// Track builds the history of one element.
//
// Errors are returned only for invalid requests (unknown commit, absent
// file or element, malformed key) and on cancellation, where the partial
// history comes back as well.
func (t *Tracker) Track(ctx context.Context, req Request) (*history.History, error) {
	id := uuid.NewString()
	ctx, span := tracer.Start(ctx, "tracker.Track",
		trace.WithAttributes(
			attribute.String("request_id", id),
			attribute.String("commit", req.Commit),
			attribute.String("path", req.Path),
			attribute.String("element", req.Element),
		),
	)
	defer span.End()
	start := time.Now()

	key, err := syntax.ParseElementKey(req.Element)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid element key")
		return nil, err
	}
	commit, err := t.backend.ResolveCommit(ctx, req.Commit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown commit")
		return nil, err
	}

	h, err := t.builder.Build(ctx, commit, req.Path, key)
	if h == nil {
		metrics.RecordTrack("error", 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "track failed")
		return nil, err
	}
	h.RequestID = id
	metrics.RecordTrack(terminationLabel(h.Termination.Reason), len(h.Versions), time.Since(start))

	t.logger.Info("Element tracked",
		"request_id", id,
		"element", req.Element,
		"path", req.Path,
		"versions", len(h.Versions),
		"termination", string(h.Termination.Reason),
		"gaps", len(h.Gaps),
		"duration", time.Since(start).String(),
	)
	span.SetAttributes(attribute.String("termination", string(h.Termination.Reason)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancelled")
	}
	return h, err
}

func terminationLabel(r history.TerminationReason) string {
	switch r {
	case history.Introduced:
		return "introduced"
	case history.RootReached:
		return "root_reached"
	case history.Incomplete:
		return "incomplete"
	case history.Unsupported:
		return "unsupported"
	case history.Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TrackAll runs requests concurrently over the shared cache. Results are
// in request order; per-request failures are reported in Result.Err and
// only cancellation is returned.
func (t *Tracker) TrackAll(ctx context.Context, reqs []Request) ([]Result, error) {
	results := make([]Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Cache.ParseWorkers)
	for i, req := range reqs {
		g.Go(func() error {
			h, err := t.Track(gctx, req)
			results[i] = Result{Request: req, History: h, Err: err}
			if err != nil {
				results[i].Error = err.Error()
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Elements lists the elements of path at commit in source order.
func (t *Tracker) Elements(ctx context.Context, rev, path string) ([]Element, error) {
	commit, err := t.backend.ResolveCommit(ctx, rev)
	if err != nil {
		return nil, err
	}
	tree, err := t.cache.Get(ctx, commit.ID, path)
	if err != nil {
		return nil, err
	}
	out := make([]Element, tree.Len())
	for i := range tree.Nodes {
		n := tree.Node(i)
		out[i] = Element{Key: tree.Key(i).String(), Kind: n.Kind.String(), Range: n.Range}
	}
	return out, nil
}
