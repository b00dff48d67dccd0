//go:build !cgo

package parser

import (
	"context"
	"fmt"

	"github.com/flozender/code-tracker-sub024/internal/errors"
	"github.com/flozender/code-tracker-sub024/internal/syntax"
)

// Available reports whether tree-sitter parsing is compiled in.
func Available() bool {
	return false
}

func parse(ctx context.Context, lang, path string, content []byte) (*syntax.Tree, error) {
	return nil, errors.New(errors.UnsupportedLanguage,
		fmt.Sprintf("%s: %s parsing requires cgo (tree-sitter)", path, lang), nil)
}
