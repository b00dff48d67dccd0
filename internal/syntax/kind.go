package syntax

import "fmt"

// Kind is the element kind of a syntax node.
type Kind uint8

const (
	KindClass Kind = iota + 1
	KindMethod
	KindField
	KindVariable
	KindBlock
)

// Kinds lists every element kind in container order.
var Kinds = []Kind{KindClass, KindMethod, KindField, KindVariable, KindBlock}

func (k Kind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindMethod:
		return "method"
	case KindField:
		return "field"
	case KindVariable:
		return "variable"
	case KindBlock:
		return "block"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind parses the lowercase kind name used in element keys.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "class":
		return KindClass, nil
	case "method":
		return KindMethod, nil
	case "field":
		return KindField, nil
	case "variable":
		return KindVariable, nil
	case "block":
		return KindBlock, nil
	default:
		return 0, fmt.Errorf("unknown element kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Scoped reports whether elements of this kind live inside a method body
// and must be searched within the matched enclosing method.
func (k Kind) Scoped() bool {
	switch k {
	case KindVariable, KindBlock:
		return true
	case KindClass, KindMethod, KindField:
		return false
	default:
		return false
	}
}
