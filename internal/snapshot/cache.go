// Package snapshot memoizes parsed file revisions per (commit, path).
//
// Every key is parsed at most once per process: concurrent callers share one
// computation, and deterministic failures (absent file, parse error,
// unsupported language) are remembered like trees. Timeouts are not.
package snapshot

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/flozender/code-tracker-sub024/internal/backends/git"
	"github.com/flozender/code-tracker-sub024/internal/errors"
	"github.com/flozender/code-tracker-sub024/internal/metrics"
	"github.com/flozender/code-tracker-sub024/internal/syntax"
)

const (
	DefaultBlobTimeout  = 5 * time.Second
	DefaultParseTimeout = 10 * time.Second
	DefaultWorkers      = 4
)

// Options configures a Cache.
type Options struct {
	BlobTimeout  time.Duration
	ParseTimeout time.Duration
	// Workers bounds Prefetch concurrency.
	Workers int
	// Store persists entries across processes. Nil disables persistence.
	Store  Store
	Logger *slog.Logger
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Shared   int64 `json:"shared"`
	Parses   int64 `json:"parses"`
	Failures int64 `json:"failures"`
	Entries  int   `json:"entries"`
	Loaded   int   `json:"loaded"`
}

// Cache is the snapshot cache. It is safe for concurrent use.
type Cache struct {
	backend git.Backend
	parser  syntax.Parser
	opts    Options
	logger  *slog.Logger

	group singleflight.Group

	mu        sync.RWMutex
	entries   map[string]*Entry
	persisted map[string][]byte

	hits, misses, shared, parses, failures atomic.Int64
}

// New creates an empty cache.
func New(backend git.Backend, parser syntax.Parser, opts Options) *Cache {
	if opts.BlobTimeout <= 0 {
		opts.BlobTimeout = DefaultBlobTimeout
	}
	if opts.ParseTimeout <= 0 {
		opts.ParseTimeout = DefaultParseTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		backend:   backend,
		parser:    parser,
		opts:      opts,
		logger:    logger,
		entries:   make(map[string]*Entry),
		persisted: make(map[string][]byte),
	}
}

// Load reads the persisted store. Entries are decoded on first use.
func (c *Cache) Load(ctx context.Context) error {
	if c.opts.Store == nil {
		return nil
	}
	payloads, err := c.opts.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range payloads {
		if _, ok := c.entries[k]; !ok {
			c.persisted[k] = v
		}
	}
	c.logger.Debug("Snapshot cache loaded", "entries", len(payloads))
	return nil
}

// Flush writes every entry to the store.
func (c *Cache) Flush(ctx context.Context) error {
	if c.opts.Store == nil {
		return nil
	}

	c.mu.RLock()
	out := make(map[string][]byte, len(c.persisted)+len(c.entries))
	for k, v := range c.persisted {
		out[k] = v
	}
	var encodeErr error
	for k, e := range c.entries {
		b, err := encodeEntry(e)
		if err != nil {
			encodeErr = err
			break
		}
		out[k] = b
	}
	c.mu.RUnlock()
	if encodeErr != nil {
		return fmt.Errorf("flush snapshot cache: %w", encodeErr)
	}

	if err := c.opts.Store.Save(ctx, out); err != nil {
		return fmt.Errorf("flush snapshot cache: %w", err)
	}
	c.logger.Debug("Snapshot cache flushed", "entries", len(out))
	return nil
}

// Stats returns cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	entries, loaded := len(c.entries), len(c.persisted)
	c.mu.RUnlock()
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Shared:   c.shared.Load(),
		Parses:   c.parses.Load(),
		Failures: c.failures.Load(),
		Entries:  entries,
		Loaded:   loaded,
	}
}

// Reset drops every in-memory and loaded entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
	c.persisted = make(map[string][]byte)
}

func (c *Cache) lookup(key string) (*Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	raw, persisted := c.persisted[key]
	c.mu.RUnlock()
	if ok {
		return e, true
	}
	if !persisted {
		return nil, false
	}

	e, err := decodeEntry(raw)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.persisted, key)
	if err != nil {
		c.logger.Warn("Dropping undecodable snapshot", "key", key, "error", err.Error())
		return nil, false
	}
	if prev, ok := c.entries[key]; ok {
		return prev, true
	}
	c.entries[key] = e
	return e, true
}

func (c *Cache) remember(key string, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
}

// Get returns the tree of path at commit. Failures carry the codes
// BLOB_NOT_FOUND, PARSE_ERROR, UNSUPPORTED_LANGUAGE or TIMEOUT.
//
// If ctx ends first Get returns ctx's error; the computation itself keeps
// running so other callers can use its result.
func (c *Cache) Get(ctx context.Context, commit, path string) (*syntax.Tree, error) {
	key := Key{Commit: commit, Path: path}.String()
	if e, ok := c.lookup(key); ok {
		c.hits.Add(1)
		metrics.RecordCacheLookup("hit")
		return e.result()
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if e, ok := c.lookup(key); ok {
			return e, nil
		}
		c.misses.Add(1)
		metrics.RecordCacheLookup("miss")

		e, err := c.compute(detached, commit, path)
		if err != nil {
			c.failures.Add(1)
			return nil, err
		}
		if e.Failure != nil {
			c.failures.Add(1)
		}
		c.remember(key, e)
		return e, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Shared {
			c.shared.Add(1)
			metrics.RecordCacheLookup("shared")
		}
		if r.Err != nil {
			return nil, r.Err
		}
		e, ok := r.Val.(*Entry)
		if !ok {
			return nil, errors.New(errors.InternalError, fmt.Sprintf("unexpected cache value %T", r.Val), nil)
		}
		return e.result()
	}
}

func (c *Cache) compute(ctx context.Context, commit, path string) (*Entry, error) {
	start := time.Now()

	bctx, cancel := context.WithTimeout(ctx, c.opts.BlobTimeout)
	content, err := c.backend.Blob(bctx, commit, path)
	cancel()
	if err != nil {
		err = timeoutError(err, "read "+path)
		metrics.RecordParse(outcome(err), time.Since(start))
		if memoizable(err) {
			return failureEntry(err), nil
		}
		return nil, err
	}

	if _, ok := c.parser.Language(path); !ok {
		err := errors.New(errors.UnsupportedLanguage, fmt.Sprintf("no parser for %s", path), nil)
		metrics.RecordParse(outcome(err), time.Since(start))
		return failureEntry(err), nil
	}

	c.parses.Add(1)
	pctx, cancel := context.WithTimeout(ctx, c.opts.ParseTimeout)
	tree, err := c.parser.Parse(pctx, path, content)
	cancel()
	metrics.RecordParse(outcome(err), time.Since(start))
	if err != nil {
		err = timeoutError(err, "parse "+path)
		c.logger.Debug("Snapshot computation failed",
			"commit", commit,
			"path", path,
			"code", errors.CodeOf(err),
		)
		if memoizable(err) {
			return failureEntry(err), nil
		}
		return nil, err
	}
	return &Entry{Tree: tree}, nil
}

func timeoutError(err error, op string) error {
	if stderrors.Is(err, context.DeadlineExceeded) && !errors.IsCode(err, errors.Timeout) {
		return errors.New(errors.Timeout, op+" timed out", err)
	}
	return err
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch errors.CodeOf(err) {
	case errors.BlobNotFound:
		return "absent"
	case errors.ParseError:
		return "parse_error"
	case errors.UnsupportedLanguage:
		return "unsupported"
	case errors.Timeout:
		return "timeout"
	default:
		if stderrors.Is(err, context.DeadlineExceeded) {
			return "timeout"
		}
		return "error"
	}
}

// Prefetch computes keys on a bounded worker pool. Per-key failures are
// left in the cache for later Get calls; only cancellation is returned.
func (c *Cache) Prefetch(ctx context.Context, keys []Key) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for _, k := range keys {
		g.Go(func() error {
			if _, err := c.Get(gctx, k.Commit, k.Path); err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}
	return g.Wait()
}
