//go:build cgo

package parser

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/flozender/code-tracker-sub024/internal/syntax"
)

var javaBlocks = map[string]string{
	"if_statement":                 "if",
	"for_statement":                "for",
	"enhanced_for_statement":       "foreach",
	"while_statement":              "while",
	"do_statement":                 "do",
	"try_statement":                "try",
	"try_with_resources_statement": "try",
	"catch_clause":                 "catch",
	"finally_clause":               "finally",
	"switch_expression":            "switch",
	"switch_statement":             "switch",
	"synchronized_statement":       "synchronized",
}

func (b *builder) walkJava(n *sitter.Node, parent int) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "class_declaration", "interface_declaration", "enum_declaration",
			"record_declaration", "annotation_type_declaration":
			idx := b.javaClass(c, parent)
			if body := c.ChildByFieldName("body"); body != nil {
				b.walkJava(body, idx)
			}
		case "method_declaration", "constructor_declaration", "compact_constructor_declaration":
			idx := b.javaMethod(c, parent)
			if body := c.ChildByFieldName("body"); body != nil {
				b.walkJava(body, idx)
			}
		case "field_declaration", "constant_declaration":
			b.javaVariables(c, parent, syntax.KindField)
		case "local_variable_declaration":
			b.javaVariables(c, parent, syntax.KindVariable)
		default:
			if tag, ok := javaBlocks[c.Type()]; ok {
				idx := b.add(parent, c, syntax.Node{
					Kind:      syntax.KindBlock,
					Name:      tag,
					Signature: syntax.Signature{Header: tag},
				}, c)
				b.walkJava(c, idx)
				continue
			}
			b.walkJava(c, parent)
		}
	}
}

// javaModifiers splits the modifiers child of decl into keywords and
// annotations.
func (b *builder) javaModifiers(decl *sitter.Node) (mods, anns []string) {
	m := childOfType(decl, "modifiers")
	if m == nil {
		return nil, nil
	}
	for i := 0; i < int(m.ChildCount()); i++ {
		c := m.Child(i)
		if c == nil || isComment(c.Type()) {
			continue
		}
		switch c.Type() {
		case "marker_annotation", "annotation":
			anns = append(anns, collapse(b.text(c)))
		default:
			mods = append(mods, b.text(c))
		}
	}
	return mods, anns
}

func (b *builder) javaClass(c *sitter.Node, parent int) int {
	mods, anns := b.javaModifiers(c)
	body := c.ChildByFieldName("body")

	var supers []string
	if sc := childOfType(c, "superclass"); sc != nil && sc.NamedChildCount() > 0 {
		supers = append(supers, collapse(b.text(sc.NamedChild(0))))
	}
	for _, typ := range []string{"super_interfaces", "extends_interfaces"} {
		si := childOfType(c, typ)
		if si == nil {
			continue
		}
		if list := childOfType(si, "type_list"); list != nil {
			for j := 0; j < int(list.NamedChildCount()); j++ {
				supers = append(supers, collapse(b.text(list.NamedChild(j))))
			}
		}
	}

	return b.add(parent, c, syntax.Node{
		Kind: syntax.KindClass,
		Name: b.text(c.ChildByFieldName("name")),
		Signature: syntax.Signature{
			Modifiers:   mods,
			Annotations: anns,
			Supertypes:  supers,
			Header:      b.header(c, body),
		},
	}, body)
}

func (b *builder) javaMethod(c *sitter.Node, parent int) int {
	mods, anns := b.javaModifiers(c)
	body := c.ChildByFieldName("body")
	return b.add(parent, c, syntax.Node{
		Kind: syntax.KindMethod,
		Name: b.text(c.ChildByFieldName("name")),
		Signature: syntax.Signature{
			Modifiers:   mods,
			Annotations: anns,
			ReturnType:  collapse(b.text(c.ChildByFieldName("type"))),
			Params:      b.javaParams(c.ChildByFieldName("parameters")),
			Header:      b.header(c, body),
		},
	}, body)
}

func (b *builder) javaParams(list *sitter.Node) []syntax.Param {
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
		case "formal_parameter":
			out = append(out, syntax.Param{
				Name: b.text(p.ChildByFieldName("name")),
				Type: collapse(b.text(p.ChildByFieldName("type")) + b.text(p.ChildByFieldName("dimensions"))),
			})
		case "spread_parameter":
			var param syntax.Param
			for j := 0; j < int(p.NamedChildCount()); j++ {
				c := p.NamedChild(j)
				switch c.Type() {
				case "modifiers":
				case "variable_declarator":
					param.Name = b.text(c.ChildByFieldName("name"))
				default:
					if param.Type == "" {
						param.Type = collapse(b.text(c)) + "..."
					}
				}
			}
			out = append(out, param)
		}
	}
	return out
}

// javaVariables adds one element per declarator of a field or local
// variable declaration.
func (b *builder) javaVariables(c *sitter.Node, parent int, kind syntax.Kind) {
	mods, anns := b.javaModifiers(c)
	typ := collapse(b.text(c.ChildByFieldName("type")))
	header := collapse(b.text(c))

	for i := 0; i < int(c.NamedChildCount()); i++ {
		d := c.NamedChild(i)
		if d == nil || d.Type() != "variable_declarator" {
			continue
		}
		name := d.ChildByFieldName("name")
		if name == nil {
			continue
		}
		value := d.ChildByFieldName("value")
		idx := b.add(parent, c, syntax.Node{
			Kind: kind,
			Name: b.text(name),
			Signature: syntax.Signature{
				Modifiers:    mods,
				Annotations:  anns,
				DeclaredType: typ + b.text(d.ChildByFieldName("dimensions")),
				Header:       header,
			},
		}, value)
		if value != nil {
			b.walkJava(value, idx)
		}
	}
}
