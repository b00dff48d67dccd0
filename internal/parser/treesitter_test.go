//go:build cgo

package parser

import (
	"context"
	"slices"
	"testing"

	"github.com/flozender/code-tracker-sub024/internal/errors"
	"github.com/flozender/code-tracker-sub024/internal/syntax"
)

const accountJava = `package demo;

import java.io.Serializable;

public class Account extends Base implements Serializable {
    private int balance = 0;

    @Override
    public int deposit(int amount, String note) {
        // add it
        int next = balance + amount;
        if (next > 100) {
            log(note);
        }
        balance = next;
        return balance;
    }

    static void log(String... parts) {
        for (String p : parts) {
            System.out.println(p);
        }
    }
}
`

const greeterPy = `class Greeter(Base):
    greeting = "hi"

    @staticmethod
    def greet(name: str, times=1) -> str:
        message = greeting + name
        for i in range(times):
            print(message)
        return message
`

func newParser(t *testing.T) *Parser {
	t.Helper()
	r, err := NewRegistry(DefaultLanguages())
	if err != nil {
		t.Fatal(err)
	}
	return New(r, Options{})
}

func mustParse(t *testing.T, path, src string) *syntax.Tree {
	t.Helper()
	tree, err := newParser(t).Parse(context.Background(), path, []byte(src))
	if err != nil {
		t.Fatalf("Parse(%s): %v", path, err)
	}
	return tree
}

func find(t *testing.T, tree *syntax.Tree, key string) *syntax.Node {
	t.Helper()
	k, err := syntax.ParseElementKey(key)
	if err != nil {
		t.Fatal(err)
	}
	idx, ok := tree.Find(k)
	if !ok {
		var keys []string
		for i := range tree.Nodes {
			keys = append(keys, tree.Key(i).String())
		}
		t.Fatalf("%s not found; have %v", key, keys)
	}
	return tree.Node(idx)
}

func TestParseJava(t *testing.T) {
	tree := mustParse(t, "src/Account.java", accountJava)

	if tree.Language != LangJava || tree.Digest != syntax.Digest([]byte(accountJava)) {
		t.Errorf("tree header = %s %s", tree.Language, tree.Digest)
	}

	cls := find(t, tree, "class:Account")
	if !slices.Equal(cls.Signature.Supertypes, []string{"Base", "Serializable"}) {
		t.Errorf("supertypes = %v", cls.Signature.Supertypes)
	}
	if !slices.Equal(cls.Signature.Modifiers, []string{"public"}) {
		t.Errorf("class modifiers = %v", cls.Signature.Modifiers)
	}
	if cls.Range.StartLine != 5 {
		t.Errorf("class starts at %d, want 5", cls.Range.StartLine)
	}

	field := find(t, tree, "class:Account::field:balance")
	if field.Signature.DeclaredType != "int" || !slices.Equal(field.Tokens, []string{"0"}) {
		t.Errorf("field = %+v", field)
	}

	deposit := find(t, tree, "class:Account::method:deposit(int,String)")
	if deposit.Signature.ReturnType != "int" {
		t.Errorf("return type = %q", deposit.Signature.ReturnType)
	}
	if !slices.Equal(deposit.Signature.Annotations, []string{"@Override"}) {
		t.Errorf("annotations = %v", deposit.Signature.Annotations)
	}
	for _, tok := range deposit.Tokens {
		switch tok {
		case "add", "//", ";", "{", "}":
			t.Errorf("unexpected token %q in %v", tok, deposit.Tokens)
		}
	}
	if !slices.Contains(deposit.Tokens, "amount") || !slices.Contains(deposit.Tokens, "+") {
		t.Errorf("deposit tokens = %v", deposit.Tokens)
	}

	next := find(t, tree, "class:Account::method:deposit(int,String)::variable:next")
	if next.Signature.DeclaredType != "int" {
		t.Errorf("variable type = %q", next.Signature.DeclaredType)
	}
	find(t, tree, "class:Account::method:deposit(int,String)::block:if[1]")

	log := find(t, tree, "class:Account::method:log(String...)")
	if !slices.Equal(log.Signature.Modifiers, []string{"static"}) || log.Signature.ReturnType != "void" {
		t.Errorf("log signature = %+v", log.Signature)
	}
	find(t, tree, "class:Account::method:log(String...)::block:foreach[1]")

	if n := len(tree.Elements(syntax.KindMethod)); n != 2 {
		t.Errorf("methods = %d, want 2", n)
	}
}

func TestParseJavaBodyDigestIgnoresLayout(t *testing.T) {
	reformatted := `package demo;

import java.io.Serializable;

public class Account extends Base implements Serializable {
    private int balance = 0;

    @Override
    public int deposit(int amount, String note) {
        /* different comment */
        int next =
            balance + amount;
        if (next > 100) { log(note); }
        balance = next;
        return balance;
    }

    static void log(String... parts) {
        for (String p : parts) System.out.println(p);
    }
}
`
	a := mustParse(t, "Account.java", accountJava)
	b := mustParse(t, "Account.java", reformatted)

	key := "class:Account::method:deposit(int,String)"
	if find(t, a, key).BodyDigest != find(t, b, key).BodyDigest {
		t.Error("layout change altered the body digest")
	}
	if a.Digest == b.Digest {
		t.Error("file digests should differ")
	}
}

func TestParsePython(t *testing.T) {
	tree := mustParse(t, "pkg/greeter.py", greeterPy)

	cls := find(t, tree, "class:Greeter")
	if !slices.Equal(cls.Signature.Supertypes, []string{"Base"}) {
		t.Errorf("supertypes = %v", cls.Signature.Supertypes)
	}
	find(t, tree, "class:Greeter::field:greeting")

	greet := find(t, tree, "class:Greeter::method:greet(str,times)")
	if greet.Signature.ReturnType != "str" {
		t.Errorf("return type = %q", greet.Signature.ReturnType)
	}
	if !slices.Equal(greet.Signature.Annotations, []string{"@staticmethod"}) {
		t.Errorf("decorators = %v", greet.Signature.Annotations)
	}
	if greet.Range.StartLine != 4 || greet.Range.EndLine != 9 {
		t.Errorf("greet range = %+v, want lines 4-9", greet.Range)
	}
	find(t, tree, "class:Greeter::method:greet(str,times)::variable:message")
	find(t, tree, "class:Greeter::method:greet(str,times)::block:for[1]")
}

func TestParseSyntaxError(t *testing.T) {
	p := newParser(t)
	tests := map[string]string{
		"Broken.java": "public class {",
		"broken.py":   "def (:\n",
	}
	for path, src := range tests {
		_, err := p.Parse(context.Background(), path, []byte(src))
		if !errors.IsCode(err, errors.ParseError) {
			t.Errorf("%s: error = %v, want PARSE_ERROR", path, err)
		}
	}
}

func TestParseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newParser(t).Parse(ctx, "Account.java", []byte(accountJava)); err == nil {
		t.Error("expected error for cancelled context")
	}
}
