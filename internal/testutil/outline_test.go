package testutil

import (
	"context"
	"testing"

	"github.com/flozender/code-tracker-sub024/internal/errors"
	"github.com/flozender/code-tracker-sub024/internal/syntax"
)

const sample = `class Foo : Base
  field count: int
  method bar(int n, String s): void
    | return n
    variable x: int
      | x = n
    block if
      | if x
method top()
`

func TestOutlineParser_Parse(t *testing.T) {
	tree, err := OutlineParser{}.Parse(context.Background(), "a/Foo.ol", []byte(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if tree.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", tree.Len())
	}

	want := []string{
		"class:Foo",
		"class:Foo::field:count",
		"class:Foo::method:bar(int,String)",
		"class:Foo::method:bar(int,String)::variable:x",
		"class:Foo::method:bar(int,String)::block:if[1]",
		"method:top()",
	}
	for i, w := range want {
		if got := tree.Key(i).String(); got != w {
			t.Errorf("Key(%d) = %q, want %q", i, got, w)
		}
	}

	bar := tree.Node(2)
	if got := len(bar.Tokens); got != 7 {
		t.Errorf("method tokens = %v, want 7 tokens", bar.Tokens)
	}
	if bar.Range.StartLine != 3 || bar.Range.EndLine != 8 {
		t.Errorf("method range = %+v, want 3-8", bar.Range)
	}
	if tree.Node(0).Signature.Supertypes[0] != "Base" {
		t.Errorf("supertypes = %v", tree.Node(0).Signature.Supertypes)
	}
	if tree.Node(3).Signature.DeclaredType != "int" {
		t.Errorf("declared type = %q", tree.Node(3).Signature.DeclaredType)
	}
}

func TestOutlineParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		src  string
		code errors.ErrorCode
	}{
		{"marker", "x.ol", "class A\n!error\n", errors.ParseError},
		{"bad indent", "x.ol", "class A\n      method b()\n", errors.ParseError},
		{"unknown kind", "x.ol", "struct A\n", errors.ParseError},
		{"unsupported", "x.java", "class A\n", errors.UnsupportedLanguage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OutlineParser{}.Parse(context.Background(), tt.path, []byte(tt.src))
			if !errors.IsCode(err, tt.code) {
				t.Errorf("error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestOutlineParser_DigestIgnoresLayout(t *testing.T) {
	a, _ := OutlineParser{}.Parse(context.Background(), "x.ol", []byte("method m()\n  | a b\n  | c\n"))
	b, _ := OutlineParser{}.Parse(context.Background(), "x.ol", []byte("\nmethod m()\n  | a   b c\n"))
	if a.Node(0).BodyDigest != b.Node(0).BodyDigest {
		t.Error("body digest should only depend on tokens")
	}
	if a.Digest == b.Digest {
		t.Error("file digest should depend on raw bytes")
	}
	var _ syntax.Parser = OutlineParser{}
}
