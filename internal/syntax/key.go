package syntax

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flozender/code-tracker-sub024/internal/errors"
)

const keySeparator = "::"

// Segment is one step of an element key.
type Segment struct {
	Kind      Kind   `json:"kind"`
	Name      string `json:"name"`
	Signature string `json:"signature,omitempty"`
	Ordinal   int    `json:"ordinal,omitempty"`
}

func (s Segment) String() string {
	var b strings.Builder
	b.WriteString(s.Kind.String())
	b.WriteByte(':')
	b.WriteString(s.Name)
	b.WriteString(s.Signature)
	if s.Kind == KindBlock || s.Ordinal > 1 {
		fmt.Fprintf(&b, "[%d]", max(s.Ordinal, 1))
	}
	return b.String()
}

// ElementKey locates an element by its container chain, name and coarse
// signature, never by line numbers.
type ElementKey struct {
	Container []Segment `json:"container,omitempty"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	Signature string    `json:"signature,omitempty"`
	Ordinal   int       `json:"ordinal,omitempty"`
}

// Self returns the final segment of the key.
func (k ElementKey) Self() Segment {
	return Segment{Kind: k.Kind, Name: k.Name, Signature: k.Signature, Ordinal: k.Ordinal}
}

// Segments returns the container chain followed by the element itself.
func (k ElementKey) Segments() []Segment {
	out := make([]Segment, 0, len(k.Container)+1)
	out = append(out, k.Container...)
	return append(out, k.Self())
}

// String renders the key as "class:Foo::method:bar(int)::block:if[1]".
func (k ElementKey) String() string {
	segs := k.Segments()
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = s.String()
	}
	return strings.Join(parts, keySeparator)
}

// IsZero reports whether the key is unset.
func (k ElementKey) IsZero() bool {
	return k.Kind == 0 && k.Name == ""
}

// MarshalText implements encoding.TextMarshaler.
func (k ElementKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ElementKey) UnmarshalText(b []byte) error {
	parsed, err := ParseElementKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseElementKey parses the string form produced by ElementKey.String.
// The signature and ordinal of any segment may be omitted.
func ParseElementKey(s string) (ElementKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ElementKey{}, errors.New(errors.InvalidElementKey, "empty element key", nil)
	}
	parts := strings.Split(s, keySeparator)
	segs := make([]Segment, len(parts))
	for i, p := range parts {
		seg, err := parseSegment(p)
		if err != nil {
			return ElementKey{}, errors.New(errors.InvalidElementKey, fmt.Sprintf("element key %q", s), err)
		}
		segs[i] = seg
	}
	last := segs[len(segs)-1]
	return ElementKey{
		Container: segs[:len(segs)-1],
		Kind:      last.Kind,
		Name:      last.Name,
		Signature: last.Signature,
		Ordinal:   last.Ordinal,
	}, nil
}

func parseSegment(p string) (Segment, error) {
	kindStr, rest, ok := strings.Cut(p, ":")
	if !ok {
		return Segment{}, fmt.Errorf("segment %q: missing kind", p)
	}
	kind, err := ParseKind(kindStr)
	if err != nil {
		return Segment{}, err
	}
	seg := Segment{Kind: kind}

	if strings.HasSuffix(rest, "]") {
		open := strings.LastIndexByte(rest, '[')
		if open < 0 {
			return Segment{}, fmt.Errorf("segment %q: unbalanced ordinal", p)
		}
		n, err := strconv.Atoi(rest[open+1 : len(rest)-1])
		if err != nil || n < 1 {
			return Segment{}, fmt.Errorf("segment %q: bad ordinal", p)
		}
		seg.Ordinal = n
		rest = rest[:open]
	}

	if open := strings.IndexByte(rest, '('); open >= 0 {
		if kind != KindMethod || !strings.HasSuffix(rest, ")") {
			return Segment{}, fmt.Errorf("segment %q: unexpected signature", p)
		}
		seg.Signature = strings.ReplaceAll(rest[open:], " ", "")
		rest = rest[:open]
	}

	if rest == "" {
		return Segment{}, fmt.Errorf("segment %q: missing name", p)
	}
	seg.Name = rest
	return seg, nil
}
