package parser

import (
	"context"
	"strings"
	"testing"

	"github.com/flozender/code-tracker-sub024/internal/errors"
)

func TestRegistryDefaults(t *testing.T) {
	r, err := NewRegistry(DefaultLanguages())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"Foo.java", LangJava, true},
		{"src/main/java/org/Foo.java", LangJava, true},
		{"/abs/Foo.java", LangJava, true},
		{"tools/build.py", LangPython, true},
		{"README.md", "", false},
		{"Foo.javax", "", false},
	}
	for _, tt := range tests {
		got, ok := r.Language(tt.path)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Language(%q) = %q, %v; want %q, %v", tt.path, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRegistryCustomPatterns(t *testing.T) {
	r, err := NewRegistry(map[string][]string{"Python": {"scripts/*.py", "**/*.pyw"}})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if lang, ok := r.Language("scripts/run.py"); !ok || lang != LangPython {
		t.Errorf("scripts/run.py = %q, %v", lang, ok)
	}
	if _, ok := r.Language("lib/run.py"); ok {
		t.Error("lib/run.py should not match scripts/*.py")
	}
	if _, ok := r.Language("gui/app.pyw"); !ok {
		t.Error("gui/app.pyw should match **/*.pyw")
	}
}

func TestRegistryRejects(t *testing.T) {
	if _, err := NewRegistry(map[string][]string{"cobol": {"**/*.cbl"}}); err == nil {
		t.Error("expected error for unsupported language")
	}
	if _, err := NewRegistry(map[string][]string{"java": {"src/[.java"}}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestParseRejectsInput(t *testing.T) {
	r, err := NewRegistry(DefaultLanguages())
	if err != nil {
		t.Fatal(err)
	}
	p := New(r, Options{MaxFileSize: 64})

	tests := []struct {
		name    string
		path    string
		content []byte
		code    errors.ErrorCode
	}{
		{"unsupported", "notes.txt", []byte("hello"), errors.UnsupportedLanguage},
		{"too large", "Big.java", []byte(strings.Repeat("x", 65)), errors.ParseError},
		{"invalid utf8", "Bad.java", []byte{'c', 0xff, 0xfe}, errors.ParseError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(context.Background(), tt.path, tt.content)
			if !errors.IsCode(err, tt.code) {
				t.Errorf("Parse error = %v, want %s", err, tt.code)
			}
		})
	}
}
