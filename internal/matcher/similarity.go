package matcher

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/flozender/code-tracker-sub024/internal/metrics"
	"github.com/flozender/code-tracker-sub024/internal/syntax"
)

// lcs returns the length of the longest common subsequence of two token
// streams. Tokens are mapped to runes so the diff runs token by token.
func (m *Matcher) lcs(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	m.comparisons.Add(1)
	metrics.RecordComparison()

	ra, rb := encodeTokens(a, b)
	dmp := diffmatchpatch.New()
	// Zero disables the deadline; a bounded diff may be non-minimal.
	dmp.DiffTimeout = 0

	common := 0
	for _, d := range dmp.DiffMainRunes(ra, rb, false) {
		if d.Type == diffmatchpatch.DiffEqual {
			common += utf8.RuneCountInString(d.Text)
		}
	}
	return common
}

func encodeTokens(a, b []string) ([]rune, []rune) {
	dict := make(map[string]rune, len(a))
	enc := func(toks []string) []rune {
		out := make([]rune, len(toks))
		for i, t := range toks {
			r, ok := dict[t]
			if !ok {
				r = tokenRune(len(dict))
				dict[t] = r
			}
			out[i] = r
		}
		return out
	}
	return enc(a), enc(b)
}

// tokenRune returns the n-th valid code point above NUL, skipping surrogates.
func tokenRune(n int) rune {
	r := rune(n + 1)
	if r >= 0xD800 {
		r += 0x800
	}
	return r
}

// bodySimilarity is 2*LCS/(|a|+|b|). Equal digests short-circuit to 1.
func (m *Matcher) bodySimilarity(a, b *syntax.Node) float64 {
	if a.BodyDigest == b.BodyDigest {
		return 1
	}
	total := len(a.Tokens) + len(b.Tokens)
	if total == 0 {
		return 1
	}
	return 2 * float64(m.lcs(a.Tokens, b.Tokens)) / float64(total)
}

// containment is the share of part's tokens found, in order, in whole.
func (m *Matcher) containment(part, whole *syntax.Node) float64 {
	if len(part.Tokens) == 0 {
		return 0
	}
	return float64(m.lcs(part.Tokens, whole.Tokens)) / float64(len(part.Tokens))
}

func signatureSimilarity(kind syntax.Kind, a, b syntax.Signature) float64 {
	if a.Equal(b) {
		return 1
	}
	switch kind {
	case syntax.KindMethod:
		if len(a.Params) == len(b.Params) {
			return 0.5
		}
		return 0
	case syntax.KindClass:
		return 0.5
	case syntax.KindField, syntax.KindVariable, syntax.KindBlock:
		return 0
	default:
		return 0
	}
}

func sameSegment(a, b syntax.Segment) bool {
	return a.Kind == b.Kind && a.Name == b.Name
}

// containerDistance is the edit distance between two container paths,
// where replacing one segment by another counts as a single rename step.
func containerDistance(a, b []syntax.Segment) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if sameSegment(a[i-1], b[j-1]) {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func lineDistance(a, b syntax.Range) int {
	d := a.StartLine - b.StartLine
	if d < 0 {
		return -d
	}
	return d
}
