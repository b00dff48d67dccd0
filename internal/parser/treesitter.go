//go:build cgo

package parser

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/flozender/code-tracker-sub024/internal/errors"
	"github.com/flozender/code-tracker-sub024/internal/syntax"
)

// Available reports whether tree-sitter parsing is compiled in.
func Available() bool {
	return true
}

func parse(ctx context.Context, lang, path string, content []byte) (*syntax.Tree, error) {
	var (
		tsLang *sitter.Language
		walk   func(b *builder, root *sitter.Node)
	)
	switch lang {
	case LangJava:
		tsLang = java.GetLanguage()
		walk = func(b *builder, root *sitter.Node) { b.walkJava(root, -1) }
	case LangPython:
		tsLang = python.GetLanguage()
		walk = func(b *builder, root *sitter.Node) { b.walkPython(root, -1, scopeModule) }
	default:
		return nil, errors.New(errors.UnsupportedLanguage, fmt.Sprintf("no grammar for %s", lang), nil)
	}

	// A fresh parser per call keeps Parse safe for concurrent use.
	ps := sitter.NewParser()
	ps.SetLanguage(tsLang)
	t, err := ps.ParseCtx(ctx, nil, content)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.New(errors.ParseError, path, err)
	}
	defer t.Close()

	root := t.RootNode()
	if root == nil {
		return nil, errors.New(errors.ParseError, path+": empty syntax tree", nil)
	}
	if root.HasError() {
		return nil, errors.New(errors.ParseError, fmt.Sprintf("%s:%d: syntax error", path, errorLine(root)), nil)
	}

	b := &builder{src: content, tree: syntax.NewTree(path, lang, content)}
	walk(b, root)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.tree.Seal()
	return b.tree, nil
}

// builder accumulates syntax nodes while walking a tree-sitter tree.
type builder struct {
	src  []byte
	tree *syntax.Tree
}

func (b *builder) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(b.src)
}

// add records decl under parent. Tokens are taken from body, which may be
// nil for bodiless declarations.
func (b *builder) add(parent int, decl *sitter.Node, n syntax.Node, body *sitter.Node) int {
	n.Range = nodeRange(decl)
	n.Tokens = b.tokens(body)
	return b.tree.Add(parent, n)
}

// header returns the declaration text up to body, whitespace-collapsed.
func (b *builder) header(decl, body *sitter.Node) string {
	end := decl.EndByte()
	if body != nil {
		end = body.StartByte()
	}
	return collapse(string(b.src[decl.StartByte():end]))
}

var punctuation = map[string]bool{
	"{": true, "}": true, "(": true, ")": true, "[": true, "]": true,
	";": true, ",": true, ".": true, ":": true,
}

func isComment(typ string) bool {
	switch typ {
	case "comment", "line_comment", "block_comment":
		return true
	default:
		return false
	}
}

// tokens returns the leaf tokens below n without comments and punctuation.
func (b *builder) tokens(n *sitter.Node) []string {
	if n == nil {
		return nil
	}
	var out []string
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if isComment(n.Type()) {
			return
		}
		if n.ChildCount() == 0 {
			if t := strings.TrimSpace(b.text(n)); t != "" && !punctuation[t] {
				out = append(out, t)
			}
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if c := n.Child(i); c != nil {
				walk(c)
			}
		}
	}
	walk(n)
	return out
}

func nodeRange(n *sitter.Node) syntax.Range {
	start, end := n.StartPoint(), n.EndPoint()
	endLine := int(end.Row) + 1
	// A node ending at column 0 stops at the previous line's newline.
	if end.Column == 0 && end.Row > start.Row {
		endLine--
	}
	return syntax.Range{
		StartLine: int(start.Row) + 1,
		EndLine:   endLine,
		StartByte: int(n.StartByte()),
		EndByte:   int(n.EndByte()),
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func errorLine(n *sitter.Node) int {
	if n.IsError() || n.IsMissing() {
		return int(n.StartPoint().Row) + 1
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c != nil && c.HasError() {
			return errorLine(c)
		}
	}
	return int(n.StartPoint().Row) + 1
}

func childOfType(n *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil && c.Type() == typ {
			return c
		}
	}
	return nil
}
