// Package parser turns Java and Python sources into syntax trees using
// tree-sitter. Paths are mapped to languages by glob patterns.
package parser

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	LangJava   = "java"
	LangPython = "python"
)

// DefaultLanguages maps each supported language to its default globs.
func DefaultLanguages() map[string][]string {
	return map[string][]string{
		LangJava:   {"**/*.java"},
		LangPython: {"**/*.py"},
	}
}

type rule struct {
	lang    string
	pattern string
}

// Registry resolves file paths to languages. Languages are tried in name
// order and the first matching pattern wins.
type Registry struct {
	rules []rule
}

// NewRegistry validates the patterns of languages. Unknown language names
// are rejected.
func NewRegistry(languages map[string][]string) (*Registry, error) {
	names := make([]string, 0, len(languages))
	for name := range languages {
		names = append(names, name)
	}
	sort.Strings(names)

	r := &Registry{}
	for _, name := range names {
		lang := strings.ToLower(name)
		if !supported(lang) {
			return nil, fmt.Errorf("unsupported language %q", name)
		}
		for _, p := range languages[name] {
			if !doublestar.ValidatePattern(p) {
				return nil, fmt.Errorf("invalid pattern %q for %s", p, name)
			}
			r.rules = append(r.rules, rule{lang: lang, pattern: p})
		}
	}
	return r, nil
}

func supported(lang string) bool {
	switch lang {
	case LangJava, LangPython:
		return true
	default:
		return false
	}
}

// Language returns the language registered for p.
func (r *Registry) Language(p string) (string, bool) {
	p = path.Clean(strings.TrimPrefix(p, "/"))
	for _, ru := range r.rules {
		if ok, _ := doublestar.Match(ru.pattern, p); ok {
			return ru.lang, true
		}
	}
	return "", false
}
