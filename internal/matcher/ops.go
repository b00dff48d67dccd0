package matcher

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OperationKind labels one kind of change between two element versions.
type OperationKind uint16

const (
	Introduced OperationKind = 1 << iota
	Unchanged
	BodyChanged
	SignatureChanged
	Renamed
	Moved
	ContainerChanged
	Extracted
	Inlined
)

var opNames = []struct {
	op   OperationKind
	name string
}{
	{Introduced, "Introduced"},
	{Unchanged, "Unchanged"},
	{BodyChanged, "BodyChanged"},
	{SignatureChanged, "SignatureChanged"},
	{Renamed, "Renamed"},
	{Moved, "Moved"},
	{ContainerChanged, "ContainerChanged"},
	{Extracted, "Extracted"},
	{Inlined, "Inlined"},
}

func (o OperationKind) String() string {
	for _, n := range opNames {
		if n.op == o {
			return n.name
		}
	}
	return fmt.Sprintf("OperationKind(%d)", uint16(o))
}

// ParseOperationKind parses an operation name.
func ParseOperationKind(s string) (OperationKind, error) {
	for _, n := range opNames {
		if strings.EqualFold(n.name, s) {
			return n.op, nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// OpSet is a set of operation kinds. Several may apply to one edge.
type OpSet uint16

// Ops builds a set.
func Ops(ops ...OperationKind) OpSet {
	var s OpSet
	for _, o := range ops {
		s = s.With(o)
	}
	return s
}

// With returns s with o added.
func (s OpSet) With(o OperationKind) OpSet {
	return s | OpSet(o)
}

// Has reports whether o is in s.
func (s OpSet) Has(o OperationKind) bool {
	return s&OpSet(o) != 0
}

// Empty reports whether s has no members.
func (s OpSet) Empty() bool {
	return s == 0
}

// List returns the members in declaration order.
func (s OpSet) List() []OperationKind {
	var out []OperationKind
	for _, n := range opNames {
		if s.Has(n.op) {
			out = append(out, n.op)
		}
	}
	return out
}

// Names returns the member names in declaration order.
func (s OpSet) Names() []string {
	list := s.List()
	out := make([]string, len(list))
	for i, o := range list {
		out[i] = o.String()
	}
	return out
}

func (s OpSet) String() string {
	return "{" + strings.Join(s.Names(), ",") + "}"
}

// MarshalJSON encodes the set as a list of names.
func (s OpSet) MarshalJSON() ([]byte, error) {
	names := s.Names()
	if names == nil {
		names = []string{}
	}
	return json.Marshal(names)
}

// UnmarshalJSON decodes a list of names.
func (s *OpSet) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	var out OpSet
	for _, n := range names {
		o, err := ParseOperationKind(n)
		if err != nil {
			return err
		}
		out = out.With(o)
	}
	*s = out
	return nil
}

// MarshalYAML encodes the set as a list of names.
func (s OpSet) MarshalYAML() (interface{}, error) {
	return s.Names(), nil
}
