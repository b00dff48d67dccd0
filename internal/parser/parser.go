package parser

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/flozender/code-tracker-sub024/internal/errors"
	"github.com/flozender/code-tracker-sub024/internal/syntax"
)

// DefaultMaxFileSize bounds the size of a parsed file.
const DefaultMaxFileSize = 2 << 20

// Options configures a Parser.
type Options struct {
	MaxFileSize int
	Logger      *slog.Logger
}

// Parser implements syntax.Parser. It is safe for concurrent use: every
// Parse call builds its own tree-sitter parser.
type Parser struct {
	registry    *Registry
	maxFileSize int
	logger      *slog.Logger
}

// New creates a Parser over registry.
func New(registry *Registry, opts Options) *Parser {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Parser{registry: registry, maxFileSize: opts.MaxFileSize, logger: logger}
}

// Language implements syntax.Parser.
func (p *Parser) Language(path string) (string, bool) {
	return p.registry.Language(path)
}

// Parse implements syntax.Parser.
func (p *Parser) Parse(ctx context.Context, path string, content []byte) (*syntax.Tree, error) {
	lang, ok := p.registry.Language(path)
	if !ok {
		return nil, errors.New(errors.UnsupportedLanguage, fmt.Sprintf("no parser for %s", path), nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(content) > p.maxFileSize {
		return nil, errors.New(errors.ParseError,
			fmt.Sprintf("%s: size %d exceeds limit %d", path, len(content), p.maxFileSize), nil)
	}
	if !utf8.Valid(content) {
		return nil, errors.New(errors.ParseError, fmt.Sprintf("%s: content is not valid UTF-8", path), nil)
	}

	tree, err := parse(ctx, lang, path, content)
	if err != nil {
		p.logger.Debug("Parse failed", "path", path, "language", lang, "error", err.Error())
		return nil, err
	}
	return tree, nil
}

var _ syntax.Parser = (*Parser)(nil)
