// Package syntax holds the language-neutral model of a parsed file.
//
// A Tree is an arena: nodes refer to each other by index, so a tree has no
// pointer cycles and serializes as plain JSON for the snapshot cache.
package syntax

import (
	"strings"
)

// Range is a source span. Lines are 1-indexed and inclusive.
type Range struct {
	StartLine int `json:"sl"`
	EndLine   int `json:"el"`
	StartByte int `json:"sb,omitempty"`
	EndByte   int `json:"eb,omitempty"`
}

// Lines returns the number of lines spanned.
func (r Range) Lines() int {
	if r.EndLine < r.StartLine {
		return 0
	}
	return r.EndLine - r.StartLine + 1
}

// Overlap returns the ratio of shared lines to the larger of both spans.
func (r Range) Overlap(o Range) float64 {
	lo := max(r.StartLine, o.StartLine)
	hi := min(r.EndLine, o.EndLine)
	if hi < lo {
		return 0
	}
	span := max(r.Lines(), o.Lines())
	if span == 0 {
		return 0
	}
	return float64(hi-lo+1) / float64(span)
}

// Param is one declared parameter.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Signature is the declaration header of an element.
type Signature struct {
	Modifiers    []string `json:"mods,omitempty"`
	Annotations  []string `json:"anns,omitempty"`
	ReturnType   string   `json:"ret,omitempty"`
	Params       []Param  `json:"params,omitempty"`
	DeclaredType string   `json:"type,omitempty"`
	Supertypes   []string `json:"supers,omitempty"`
	Header       string   `json:"header,omitempty"`
}

// ParamList returns the parenthesized parameter types, falling back to
// the parameter name for untyped languages.
func (s Signature) ParamList() string {
	parts := make([]string, len(s.Params))
	for i, p := range s.Params {
		if p.Type != "" {
			parts[i] = p.Type
		} else {
			parts[i] = p.Name
		}
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// Coarse returns the part of the signature used in element keys.
func (s Signature) Coarse(kind Kind) string {
	switch kind {
	case KindMethod:
		return s.ParamList()
	case KindField, KindVariable:
		return s.DeclaredType
	case KindClass, KindBlock:
		return ""
	default:
		return ""
	}
}

// Equal reports whether both signatures declare the same header.
func (s Signature) Equal(o Signature) bool {
	return len(s.Diff(o)) == 0
}

// Diff names the parts of the signature that differ.
func (s Signature) Diff(o Signature) []string {
	var out []string
	if !sameSet(s.Modifiers, o.Modifiers) {
		out = append(out, "modifiers")
	}
	if !sameSet(s.Annotations, o.Annotations) {
		out = append(out, "annotations")
	}
	if s.ReturnType != o.ReturnType {
		out = append(out, "return type")
	}
	if s.ParamList() != o.ParamList() {
		out = append(out, "parameters")
	}
	if s.DeclaredType != o.DeclaredType {
		out = append(out, "declared type")
	}
	if !sameSet(s.Supertypes, o.Supertypes) {
		out = append(out, "supertypes")
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		if seen[s] == 0 {
			return false
		}
		seen[s]--
	}
	return true
}

// Node is one element in the arena. Parent is -1 for top-level elements.
// For blocks Name holds the block tag ("if", "for", "try", ...).
type Node struct {
	Kind       Kind      `json:"kind"`
	Name       string    `json:"name"`
	Parent     int       `json:"parent"`
	Children   []int     `json:"children,omitempty"`
	Range      Range     `json:"range"`
	Signature  Signature `json:"sig"`
	Tokens     []string  `json:"tokens,omitempty"`
	BodyDigest string    `json:"digest,omitempty"`
}

// Tree is the parsed model of one file revision.
type Tree struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Digest   string `json:"digest"`
	Nodes    []Node `json:"nodes"`
}

// NewTree returns an empty tree for the given file content.
func NewTree(path, language string, content []byte) *Tree {
	return &Tree{Path: path, Language: language, Digest: Digest(content)}
}

// Add appends n under parent (-1 for top level) and returns its index.
func (t *Tree) Add(parent int, n Node) int {
	n.Parent = parent
	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, n)
	if parent >= 0 {
		t.Nodes[parent].Children = append(t.Nodes[parent].Children, idx)
	}
	return idx
}

// Seal fills in body digests from tokens. Call it once after the last Add.
func (t *Tree) Seal() {
	for i := range t.Nodes {
		if t.Nodes[i].BodyDigest == "" {
			t.Nodes[i].BodyDigest = TokenDigest(t.Nodes[i].Tokens)
		}
	}
}

// Len returns the number of elements.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Nodes)
}

// Node returns the element at i.
func (t *Tree) Node(i int) *Node {
	return &t.Nodes[i]
}

// Roots returns the top-level elements in source order.
func (t *Tree) Roots() []int {
	var out []int
	for i := range t.Nodes {
		if t.Nodes[i].Parent < 0 {
			out = append(out, i)
		}
	}
	return out
}

// Elements returns every element of the given kind in arena order.
func (t *Tree) Elements(kind Kind) []int {
	var out []int
	for i := range t.Nodes {
		if t.Nodes[i].Kind == kind {
			out = append(out, i)
		}
	}
	return out
}

// Within reports whether i is ancestor or lies below it.
func (t *Tree) Within(i, ancestor int) bool {
	for j := i; j >= 0; j = t.Nodes[j].Parent {
		if j == ancestor {
			return true
		}
	}
	return false
}

// EnclosingMethod returns the nearest method strictly above i, or -1.
func (t *Tree) EnclosingMethod(i int) int {
	for j := t.Nodes[i].Parent; j >= 0; j = t.Nodes[j].Parent {
		if t.Nodes[j].Kind == KindMethod {
			return j
		}
	}
	return -1
}

// EnclosingClass returns the nearest class strictly above i, or -1.
func (t *Tree) EnclosingClass(i int) int {
	for j := t.Nodes[i].Parent; j >= 0; j = t.Nodes[j].Parent {
		if t.Nodes[j].Kind == KindClass {
			return j
		}
	}
	return -1
}

// Ancestors returns the indexes above i, outermost first.
func (t *Tree) Ancestors(i int) []int {
	var rev []int
	for j := t.Nodes[i].Parent; j >= 0; j = t.Nodes[j].Parent {
		rev = append(rev, j)
	}
	for l, r := 0, len(rev)-1; l < r; l, r = l+1, r-1 {
		rev[l], rev[r] = rev[r], rev[l]
	}
	return rev
}

// ContainerPath returns the key segments of i's ancestors, outermost first.
func (t *Tree) ContainerPath(i int) []Segment {
	anc := t.Ancestors(i)
	out := make([]Segment, len(anc))
	for k, a := range anc {
		out[k] = t.segment(a)
	}
	return out
}

// Key returns the location-independent key of element i.
func (t *Tree) Key(i int) ElementKey {
	self := t.segment(i)
	return ElementKey{
		Container: t.ContainerPath(i),
		Kind:      self.Kind,
		Name:      self.Name,
		Signature: self.Signature,
		Ordinal:   self.Ordinal,
	}
}

func (t *Tree) siblings(i int) []int {
	if p := t.Nodes[i].Parent; p >= 0 {
		return t.Nodes[p].Children
	}
	return t.Roots()
}

func (t *Tree) segment(i int) Segment {
	n := &t.Nodes[i]
	seg := Segment{Kind: n.Kind, Name: n.Name, Signature: n.Signature.Coarse(n.Kind)}
	if n.Kind != KindMethod {
		// Only method signatures are part of the key.
		seg.Signature = ""
	}
	for _, s := range t.siblings(i) {
		if t.matches(s, seg) {
			seg.Ordinal++
		}
		if s == i {
			break
		}
	}
	return seg
}

func (t *Tree) matches(i int, seg Segment) bool {
	n := &t.Nodes[i]
	if n.Kind != seg.Kind || n.Name != seg.Name {
		return false
	}
	return seg.Signature == "" || n.Signature.Coarse(n.Kind) == seg.Signature
}

// Find resolves key to an element index.
func (t *Tree) Find(key ElementKey) (int, bool) {
	level := t.Roots()
	idx := -1
	for _, seg := range key.Segments() {
		want := max(seg.Ordinal, 1)
		idx = -1
		seen := 0
		for _, c := range level {
			if !t.matches(c, seg) {
				continue
			}
			seen++
			if seen == want {
				idx = c
				break
			}
		}
		if idx < 0 {
			return -1, false
		}
		level = t.Nodes[idx].Children
	}
	return idx, idx >= 0
}

// FindByName returns elements of the given kind and name anywhere in the tree.
func (t *Tree) FindByName(kind Kind, name string) []int {
	var out []int
	for i := range t.Nodes {
		if t.Nodes[i].Kind == kind && t.Nodes[i].Name == name {
			out = append(out, i)
		}
	}
	return out
}

func (t *Tree) fingerprint(i int) string {
	return t.Key(i).String() + "#" + t.Nodes[i].BodyDigest
}

// StructuralDistance counts elements present in one tree but not the other,
// comparing by key and body digest. A nil tree counts as empty.
func StructuralDistance(a, b *Tree) int {
	counts := make(map[string]int)
	for i := 0; i < a.Len(); i++ {
		counts[a.fingerprint(i)]++
	}
	for i := 0; i < b.Len(); i++ {
		counts[b.fingerprint(i)]--
	}
	dist := 0
	for _, c := range counts {
		if c < 0 {
			c = -c
		}
		dist += c
	}
	return dist
}
