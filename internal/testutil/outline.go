// Package testutil provides test helpers shared across packages: a small
// indentation-based source language that parses without cgo, an in-memory
// fixture builder and golden-file comparison.
package testutil

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/flozender/code-tracker-sub024/internal/errors"
	"github.com/flozender/code-tracker-sub024/internal/syntax"
)

// OutlineLanguage is the language name reported for outline files.
const OutlineLanguage = "outline"

// OutlineParser parses the outline format:
//
//	class Foo : Base
//	  field count: int
//	  method bar(int n, String s): void
//	    | return n + 1
//	    variable x: int
//	      | x = n
//	    block if
//	      | if x > 0
//
// Each level of nesting is two spaces. Lines starting with "|" carry body
// tokens of the enclosing element. A line "!error" makes the file
// unparseable. Only files ending in ".ol" are supported.
type OutlineParser struct{}

// Language implements syntax.Parser.
func (OutlineParser) Language(p string) (string, bool) {
	if path.Ext(p) == ".ol" {
		return OutlineLanguage, true
	}
	return "", false
}

// Parse implements syntax.Parser.
func (o OutlineParser) Parse(ctx context.Context, p string, content []byte) (*syntax.Tree, error) {
	if _, ok := o.Language(p); !ok {
		return nil, errors.New(errors.UnsupportedLanguage, "no parser for "+p, nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tree := syntax.NewTree(p, OutlineLanguage, content)
	// stack[d] is the open element at depth d.
	var stack []int
	var own [][]string

	sc := bufio.NewScanner(bytes.NewReader(content))
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Text()
		trimmed := strings.TrimLeft(raw, " ")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if trimmed == "!error" {
			return nil, errors.New(errors.ParseError, fmt.Sprintf("%s:%d: syntax error", p, line), nil)
		}
		depth := (len(raw) - len(trimmed)) / 2

		if strings.HasPrefix(trimmed, "|") {
			if depth == 0 || depth > len(stack) {
				return nil, errors.New(errors.ParseError, fmt.Sprintf("%s:%d: body outside element", p, line), nil)
			}
			owner := stack[depth-1]
			own[owner] = append(own[owner], strings.Fields(trimmed[1:])...)
			extend(tree, stack[:depth], line)
			continue
		}

		if depth > len(stack) {
			return nil, errors.New(errors.ParseError, fmt.Sprintf("%s:%d: bad indentation", p, line), nil)
		}
		stack = stack[:depth]
		n, err := parseDecl(trimmed)
		if err != nil {
			return nil, errors.New(errors.ParseError, fmt.Sprintf("%s:%d", p, line), err)
		}
		n.Range = syntax.Range{StartLine: line, EndLine: line}
		parent := -1
		if depth > 0 {
			parent = stack[depth-1]
		}
		idx := tree.Add(parent, n)
		own = append(own, nil)
		extend(tree, stack, line)
		stack = append(stack, idx)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.New(errors.ParseError, p, err)
	}

	for i := range tree.Nodes {
		tree.Nodes[i].Tokens = collect(tree, own, i, nil)
	}
	tree.Seal()
	return tree, nil
}

func extend(tree *syntax.Tree, open []int, line int) {
	for _, i := range open {
		tree.Nodes[i].Range.EndLine = line
	}
}

func collect(tree *syntax.Tree, own [][]string, i int, acc []string) []string {
	acc = append(acc, own[i]...)
	for _, c := range tree.Nodes[i].Children {
		acc = collect(tree, own, c, acc)
	}
	return acc
}

func parseDecl(s string) (syntax.Node, error) {
	kindStr, rest, _ := strings.Cut(s, " ")
	kind, err := syntax.ParseKind(kindStr)
	if err != nil {
		return syntax.Node{}, err
	}
	rest = strings.TrimSpace(rest)
	n := syntax.Node{Kind: kind}

	if head, typ, ok := strings.Cut(rest, ":"); ok {
		rest = strings.TrimSpace(head)
		typ = strings.TrimSpace(typ)
		switch kind {
		case syntax.KindMethod:
			n.Signature.ReturnType = typ
		case syntax.KindClass:
			n.Signature.Supertypes = strings.Fields(strings.ReplaceAll(typ, ",", " "))
		case syntax.KindField, syntax.KindVariable:
			n.Signature.DeclaredType = typ
		case syntax.KindBlock:
			return syntax.Node{}, fmt.Errorf("block %q cannot declare a type", rest)
		}
	}

	if open := strings.IndexByte(rest, '('); open >= 0 {
		if kind != syntax.KindMethod || !strings.HasSuffix(rest, ")") {
			return syntax.Node{}, fmt.Errorf("unexpected parameter list in %q", s)
		}
		for _, p := range strings.Split(rest[open+1:len(rest)-1], ",") {
			f := strings.Fields(p)
			switch len(f) {
			case 0:
			case 1:
				n.Signature.Params = append(n.Signature.Params, syntax.Param{Name: f[0]})
			default:
				n.Signature.Params = append(n.Signature.Params, syntax.Param{Type: f[0], Name: f[1]})
			}
		}
		rest = strings.TrimSpace(rest[:open])
	} else if kind == syntax.KindMethod {
		return syntax.Node{}, fmt.Errorf("method %q needs a parameter list", rest)
	}

	if rest == "" {
		return syntax.Node{}, fmt.Errorf("missing name in %q", s)
	}
	n.Name = rest
	n.Signature.Header = s
	return n, nil
}
