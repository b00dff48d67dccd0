//go:build cgo

package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/flozender/code-tracker-sub024/internal/syntax"
)

// pyScope is the innermost definition enclosing a statement.
type pyScope int

const (
	scopeModule pyScope = iota
	scopeClass
	scopeFunction
)

var pythonBlocks = map[string]string{
	"if_statement":    "if",
	"for_statement":   "for",
	"while_statement": "while",
	"try_statement":   "try",
	"with_statement":  "with",
}

func (b *builder) walkPython(n *sitter.Node, parent int, scope pyScope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "decorated_definition":
			var decs []string
			for j := 0; j < int(c.NamedChildCount()); j++ {
				if d := c.NamedChild(j); d != nil && d.Type() == "decorator" {
					decs = append(decs, collapse(b.text(d)))
				}
			}
			if def := c.ChildByFieldName("definition"); def != nil {
				b.pythonDef(def, c, parent, decs)
			}
		case "class_definition", "function_definition":
			b.pythonDef(c, c, parent, nil)
		case "expression_statement":
			if scope == scopeModule {
				continue
			}
			for j := 0; j < int(c.NamedChildCount()); j++ {
				if a := c.NamedChild(j); a != nil && a.Type() == "assignment" {
					b.pythonAssignment(a, c, parent, scope)
				}
			}
		default:
			if tag, ok := pythonBlocks[c.Type()]; ok {
				idx := b.add(parent, c, syntax.Node{
					Kind:      syntax.KindBlock,
					Name:      tag,
					Signature: syntax.Signature{Header: tag},
				}, c)
				b.walkPython(c, idx, scope)
				continue
			}
			b.walkPython(c, parent, scope)
		}
	}
}

// pythonDef adds a class or function. outer is the decorated definition
// when decorators are present, and spans the element's range.
func (b *builder) pythonDef(def, outer *sitter.Node, parent int, decorators []string) {
	body := def.ChildByFieldName("body")
	header := strings.TrimSuffix(b.header(def, body), ":")

	switch def.Type() {
	case "class_definition":
		var supers []string
		if args := def.ChildByFieldName("superclasses"); args != nil {
			for i := 0; i < int(args.NamedChildCount()); i++ {
				supers = append(supers, collapse(b.text(args.NamedChild(i))))
			}
		}
		idx := b.add(parent, outer, syntax.Node{
			Kind: syntax.KindClass,
			Name: b.text(def.ChildByFieldName("name")),
			Signature: syntax.Signature{
				Annotations: decorators,
				Supertypes:  supers,
				Header:      header,
			},
		}, body)
		if body != nil {
			b.walkPython(body, idx, scopeClass)
		}

	case "function_definition":
		var mods []string
		if first := def.Child(0); first != nil && first.Type() == "async" {
			mods = append(mods, "async")
		}
		idx := b.add(parent, outer, syntax.Node{
			Kind: syntax.KindMethod,
			Name: b.text(def.ChildByFieldName("name")),
			Signature: syntax.Signature{
				Modifiers:   mods,
				Annotations: decorators,
				ReturnType:  collapse(b.text(def.ChildByFieldName("return_type"))),
				Params:      b.pythonParams(def.ChildByFieldName("parameters")),
				Header:      header,
			},
		}, body)
		if body != nil {
			b.walkPython(body, idx, scopeFunction)
		}
	}
}

func (b *builder) pythonParams(list *sitter.Node) []syntax.Param {
	if list == nil {
		return nil
	}
	var out []syntax.Param
	for i := 0; i < int(list.NamedChildCount()); i++ {
		p := list.NamedChild(i)
		if p == nil {
			continue
		}
		switch p.Type() {
		case "identifier", "list_splat_pattern", "dictionary_splat_pattern":
			out = append(out, syntax.Param{Name: b.text(p)})
		case "typed_parameter":
			var name string
			if p.NamedChildCount() > 0 {
				name = b.text(p.NamedChild(0))
			}
			out = append(out, syntax.Param{Name: name, Type: collapse(b.text(p.ChildByFieldName("type")))})
		case "default_parameter", "typed_default_parameter":
			out = append(out, syntax.Param{
				Name: b.text(p.ChildByFieldName("name")),
				Type: collapse(b.text(p.ChildByFieldName("type"))),
			})
		}
	}
	return out
}

// pythonAssignment adds a field (class scope) or variable (function scope)
// for a plain name assignment.
func (b *builder) pythonAssignment(a, stmt *sitter.Node, parent int, scope pyScope) {
	left := a.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return
	}
	kind := syntax.KindVariable
	if scope == scopeClass {
		kind = syntax.KindField
	}
	b.add(parent, stmt, syntax.Node{
		Kind: kind,
		Name: b.text(left),
		Signature: syntax.Signature{
			DeclaredType: collapse(b.text(a.ChildByFieldName("type"))),
			Header:       collapse(b.text(stmt)),
		},
	}, a.ChildByFieldName("right"))
}
