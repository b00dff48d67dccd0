// Package matcher finds the predecessor of an element in an older snapshot
// and classifies what changed between the two.
//
// Candidates are elements of the same kind. Variables and blocks are only
// searched inside the older counterpart of their enclosing method; other
// kinds are searched under containers at most one rename step away.
// Candidates are scored on name, signature and token-level body similarity,
// and near-ties are broken by name, container distance, range overlap and
// line proximity. Every near-tie is reported as an Ambiguity.
package matcher

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/flozender/code-tracker-sub024/internal/metrics"
	"github.com/flozender/code-tracker-sub024/internal/syntax"
)

// Options tunes scoring. Zero fields take the defaults.
type Options struct {
	NameWeight      float64
	SignatureWeight float64
	BodyWeight      float64

	// AcceptThreshold is the lowest score accepted as a match.
	AcceptThreshold float64
	// AmbiguityEpsilon is the score distance under which candidates tie.
	AmbiguityEpsilon float64
	// ExtractContainment is the share of one body's tokens that must
	// reappear in another body for an extraction or inlining.
	ExtractContainment float64
	// MinBodyTokens is the smallest body considered for extraction or
	// inlining.
	MinBodyTokens int

	Logger *slog.Logger
}

// DefaultOptions returns the standard weights and thresholds.
func DefaultOptions() Options {
	return Options{
		NameWeight:         0.3,
		SignatureWeight:    0.2,
		BodyWeight:         0.5,
		AcceptThreshold:    0.4,
		AmbiguityEpsilon:   0.01,
		ExtractContainment: 0.8,
		MinBodyTokens:      3,
	}
}

// Ambiguity records candidates whose scores were too close to call.
type Ambiguity struct {
	Candidates []string  `json:"candidates" yaml:"candidates"`
	Scores     []float64 `json:"scores" yaml:"scores"`
	// ResolvedBy names the tie-break that picked the winner.
	ResolvedBy string `json:"resolvedBy" yaml:"resolvedBy"`
}

// Result is the outcome of one Match.
type Result struct {
	Found      bool       `json:"found"`
	OlderIndex int        `json:"olderIndex"`
	Ops        OpSet      `json:"ops"`
	Score      float64    `json:"score"`
	Ambiguity  *Ambiguity `json:"ambiguity,omitempty"`
	Details    []string   `json:"details,omitempty"`
}

func notFound() Result {
	return Result{OlderIndex: -1}
}

// Matcher compares elements across snapshots. It is safe for concurrent use.
type Matcher struct {
	opts   Options
	logger *slog.Logger

	comparisons atomic.Int64
}

// New creates a Matcher.
func New(opts Options) *Matcher {
	def := DefaultOptions()
	if opts.NameWeight+opts.SignatureWeight+opts.BodyWeight <= 0 {
		opts.NameWeight, opts.SignatureWeight, opts.BodyWeight = def.NameWeight, def.SignatureWeight, def.BodyWeight
	}
	if opts.AcceptThreshold <= 0 {
		opts.AcceptThreshold = def.AcceptThreshold
	}
	if opts.AmbiguityEpsilon <= 0 {
		opts.AmbiguityEpsilon = def.AmbiguityEpsilon
	}
	if opts.ExtractContainment <= 0 {
		opts.ExtractContainment = def.ExtractContainment
	}
	if opts.MinBodyTokens <= 0 {
		opts.MinBodyTokens = def.MinBodyTokens
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Matcher{opts: opts, logger: logger}
}

// Options returns the effective options.
func (m *Matcher) Options() Options {
	return m.opts
}

// Comparisons returns the number of token-level comparisons run so far.
func (m *Matcher) Comparisons() int64 {
	return m.comparisons.Load()
}

// Match finds the element of older that element idx of newer descends from.
func (m *Matcher) Match(newer *syntax.Tree, idx int, older *syntax.Tree) Result {
	return m.match(newer, idx, older, true)
}

type candidate struct {
	idx       int
	score     float64
	body      float64
	sameName  bool
	container int
	overlap   float64
	lines     int
}

func (m *Matcher) match(newer *syntax.Tree, idx int, older *syntax.Tree, full bool) Result {
	if idx < 0 || idx >= newer.Len() || older.Len() == 0 {
		return notFound()
	}
	key := newer.Key(idx)

	if newer.Digest == older.Digest {
		if o, ok := older.Find(key); ok {
			r := Result{Found: true, OlderIndex: o, Score: 1, Ops: Ops(Unchanged)}
			if newer.Path != older.Path {
				r.Ops = Ops(Moved)
				r.Details = []string{"moved from " + older.Path}
			}
			return r
		}
	}

	n := newer.Node(idx)
	if o, ok := older.Find(key); ok {
		on := older.Node(o)
		if on.BodyDigest == n.BodyDigest && on.Signature.Equal(n.Signature) {
			r := Result{Found: true, OlderIndex: o, Score: 1, Ops: Ops(Unchanged)}
			if newer.Path != older.Path {
				r.Ops = Ops(Moved)
				r.Details = []string{"moved from " + older.Path}
			}
			return r
		}
	}

	free, claimed, ok := m.candidates(newer, idx, older)
	if !ok {
		return notFound()
	}

	scored := make([]candidate, 0, len(free))
	for _, o := range free {
		scored = append(scored, m.score(newer, idx, older, o))
	}
	slices.SortStableFunc(scored, func(a, b candidate) int {
		return cmp.Compare(b.score, a.score)
	})

	if len(scored) == 0 || scored[0].score < m.opts.AcceptThreshold {
		if r, ok := m.extraction(newer, idx, older, claimed); ok {
			return r
		}
		return notFound()
	}

	best := scored[0]
	var amb *Ambiguity
	tied := []candidate{best}
	for _, c := range scored[1:] {
		if best.score-c.score <= m.opts.AmbiguityEpsilon {
			tied = append(tied, c)
		}
	}
	if len(tied) > 1 {
		winner, by := breakTie(tied)
		amb = &Ambiguity{ResolvedBy: by}
		for _, c := range tied {
			amb.Candidates = append(amb.Candidates, older.Key(c.idx).String())
			amb.Scores = append(amb.Scores, c.score)
		}
		best = winner
		metrics.RecordAmbiguity()
		m.logger.Debug("Ambiguous match",
			"element", key.String(),
			"candidates", len(tied),
			"resolvedBy", by,
			"chosen", older.Key(best.idx).String(),
		)
	}

	r := Result{
		Found:      true,
		OlderIndex: best.idx,
		Score:      best.score,
		Ambiguity:  amb,
	}
	r.Ops, r.Details = m.classify(newer, idx, older, best, full)
	return r
}

// candidates returns the older elements idx may descend from. Claimed
// candidates carry another name and survive in newer with a similar body,
// so they can only be extraction sources. ok is false when the enclosing
// method of a scoped element has no predecessor.
func (m *Matcher) candidates(newer *syntax.Tree, idx int, older *syntax.Tree) (free, claimed []int, ok bool) {
	n := newer.Node(idx)
	var pool []int

	switch n.Kind {
	case syntax.KindVariable, syntax.KindBlock:
		method := newer.EnclosingMethod(idx)
		if method < 0 {
			pool = m.nearContainers(newer, idx, older)
			break
		}
		r := m.match(newer, method, older, false)
		if !r.Found {
			return nil, nil, false
		}
		for _, o := range older.Elements(n.Kind) {
			if older.Within(o, r.OlderIndex) {
				pool = append(pool, o)
			}
		}
	case syntax.KindClass, syntax.KindMethod, syntax.KindField:
		pool = m.nearContainers(newer, idx, older)
	default:
		return nil, nil, false
	}

	var moved map[string]int
	if !n.Kind.Scoped() {
		moved = m.newBodies(newer, idx, older)
	}
	for _, o := range pool {
		on := older.Node(o)
		if on.Name != n.Name {
			if j, alive := newer.Find(older.Key(o)); alive && j != idx {
				// A namesake that kept little of the old body is a
				// replacement, not the survivor.
				if m.bodySimilarity(newer.Node(j), on) >= m.opts.AcceptThreshold {
					claimed = append(claimed, o)
					continue
				}
			}
		}
		if moved[on.BodyDigest] > 0 && len(on.Tokens) >= m.opts.MinBodyTokens &&
			m.bodySimilarity(n, on) < m.opts.AcceptThreshold {
			// The old body lives on unchanged in an element new to this commit.
			continue
		}
		free = append(free, o)
	}
	return free, claimed, true
}

// newBodies counts, by body digest, the elements of idx's kind other than
// idx that have no namesake in older.
func (m *Matcher) newBodies(newer *syntax.Tree, idx int, older *syntax.Tree) map[string]int {
	out := make(map[string]int)
	for _, j := range newer.Elements(newer.Node(idx).Kind) {
		nj := newer.Node(j)
		if j == idx || len(nj.Tokens) < m.opts.MinBodyTokens {
			continue
		}
		if _, existed := older.Find(newer.Key(j)); existed {
			continue
		}
		out[nj.BodyDigest]++
	}
	return out
}

func (m *Matcher) nearContainers(newer *syntax.Tree, idx int, older *syntax.Tree) []int {
	n := newer.Node(idx)
	path := newer.ContainerPath(idx)
	var out []int
	for _, o := range older.Elements(n.Kind) {
		if containerDistance(path, older.ContainerPath(o)) <= 1 {
			out = append(out, o)
		}
	}
	return out
}

func (m *Matcher) score(newer *syntax.Tree, idx int, older *syntax.Tree, o int) candidate {
	n, on := newer.Node(idx), older.Node(o)
	c := candidate{
		idx:       o,
		sameName:  n.Name == on.Name,
		body:      m.bodySimilarity(n, on),
		container: containerDistance(newer.ContainerPath(idx), older.ContainerPath(o)),
		overlap:   n.Range.Overlap(on.Range),
		lines:     lineDistance(n.Range, on.Range),
	}
	var name float64
	if c.sameName {
		name = 1
	}
	sig := signatureSimilarity(n.Kind, n.Signature, on.Signature)

	total := m.opts.NameWeight + m.opts.SignatureWeight + m.opts.BodyWeight
	c.score = (m.opts.NameWeight*name + m.opts.SignatureWeight*sig + m.opts.BodyWeight*c.body) / total
	return c
}

var tieBreaks = []struct {
	name string
	cmp  func(a, b candidate) int
}{
	{"identical name", func(a, b candidate) int { return rank(b.sameName) - rank(a.sameName) }},
	{"container distance", func(a, b candidate) int { return a.container - b.container }},
	{"range overlap", func(a, b candidate) int { return cmp.Compare(b.overlap, a.overlap) }},
	{"line proximity", func(a, b candidate) int { return a.lines - b.lines }},
}

func rank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// breakTie narrows tied candidates one criterion at a time and names the
// criterion that left a single winner.
func breakTie(tied []candidate) (candidate, string) {
	pool := tied
	for _, tb := range tieBreaks {
		best := pool[0]
		for _, c := range pool[1:] {
			if tb.cmp(c, best) < 0 {
				best = c
			}
		}
		var next []candidate
		for _, c := range pool {
			if tb.cmp(c, best) == 0 {
				next = append(next, c)
			}
		}
		if len(next) == 1 {
			return next[0], tb.name
		}
		pool = next
	}
	return pool[0], "source order"
}

// extraction looks for a surviving older method whose body contains the
// new method's body.
func (m *Matcher) extraction(newer *syntax.Tree, idx int, older *syntax.Tree, claimed []int) (Result, bool) {
	n := newer.Node(idx)
	if n.Kind != syntax.KindMethod || len(n.Tokens) < m.opts.MinBodyTokens {
		return Result{}, false
	}
	best, bestScore := -1, 0.0
	for _, o := range claimed {
		on := older.Node(o)
		if len(on.Tokens) < len(n.Tokens) {
			continue
		}
		if c := m.containment(n, on); c >= m.opts.ExtractContainment && c > bestScore {
			best, bestScore = o, c
		}
	}
	if best < 0 {
		return Result{}, false
	}
	return Result{
		Found:      true,
		OlderIndex: best,
		Ops:        Ops(Extracted),
		Score:      bestScore,
		Details:    []string{"extracted from " + older.Key(best).String()},
	}, true
}

func (m *Matcher) classify(newer *syntax.Tree, idx int, older *syntax.Tree, c candidate, full bool) (OpSet, []string) {
	n, on := newer.Node(idx), older.Node(c.idx)
	var ops OpSet
	var details []string

	if n.Name != on.Name {
		switch n.Kind {
		case syntax.KindBlock:
			ops = ops.With(BodyChanged)
			details = append(details, fmt.Sprintf("block %s -> %s", on.Name, n.Name))
		case syntax.KindClass, syntax.KindMethod, syntax.KindField, syntax.KindVariable:
			ops = ops.With(Renamed)
			details = append(details, fmt.Sprintf("renamed %s -> %s", on.Name, n.Name))
		}
	}
	if diff := on.Signature.Diff(n.Signature); len(diff) > 0 {
		ops = ops.With(SignatureChanged)
		details = append(details, "signature: "+strings.Join(diff, ", "))
	}
	if c.body < 1 {
		ops = ops.With(BodyChanged)
	}

	if newer.Path != older.Path {
		ops = ops.With(Moved)
		details = append(details, "moved from "+older.Path)
	} else {
		np, op := newer.ContainerPath(idx), older.ContainerPath(c.idx)
		if c.container > 0 {
			if containerRenamed(newer, np, op) {
				ops = ops.With(ContainerChanged)
			} else {
				ops = ops.With(Moved)
			}
			details = append(details, fmt.Sprintf("container %s -> %s", pathString(op), pathString(np)))
		}
	}

	if full && n.Kind == syntax.KindMethod && ops.Has(BodyChanged) {
		for _, k := range m.inlined(newer, idx, older, c.idx) {
			ops = ops.With(Inlined)
			details = append(details, "inlined "+k)
		}
	}

	if ops.Empty() {
		ops = Ops(Unchanged)
	}
	return ops, details
}

// inlined returns keys of older methods that vanished from newer and whose
// bodies now live inside element idx.
func (m *Matcher) inlined(newer *syntax.Tree, idx int, older *syntax.Tree, o int) []string {
	n, on := newer.Node(idx), older.Node(o)
	var out []string
	for _, d := range older.Elements(n.Kind) {
		if d == o {
			continue
		}
		dn := older.Node(d)
		if len(dn.Tokens) < m.opts.MinBodyTokens {
			continue
		}
		k := older.Key(d)
		if _, alive := newer.Find(k); alive {
			continue
		}
		if m.containment(dn, n) >= m.opts.ExtractContainment && m.containment(dn, on) < m.opts.ExtractContainment {
			out = append(out, k.String())
		}
	}
	return out
}

// containerRenamed reports whether two container paths differ in exactly
// one segment of the same kind whose older form no longer exists.
func containerRenamed(newer *syntax.Tree, np, op []syntax.Segment) bool {
	if len(np) != len(op) {
		return false
	}
	at := -1
	for i := range np {
		if sameSegment(np[i], op[i]) {
			continue
		}
		if at >= 0 || np[i].Kind != op[i].Kind {
			return false
		}
		at = i
	}
	if at < 0 {
		return false
	}
	gone := syntax.ElementKey{
		Container: op[:at],
		Kind:      op[at].Kind,
		Name:      op[at].Name,
		Signature: op[at].Signature,
		Ordinal:   op[at].Ordinal,
	}
	_, exists := newer.Find(gone)
	return !exists
}

func pathString(p []syntax.Segment) string {
	if len(p) == 0 {
		return "<top>"
	}
	return syntax.ElementKey{
		Container: p[:len(p)-1],
		Kind:      p[len(p)-1].Kind,
		Name:      p[len(p)-1].Name,
		Signature: p[len(p)-1].Signature,
		Ordinal:   p[len(p)-1].Ordinal,
	}.String()
}
