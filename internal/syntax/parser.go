package syntax

import "context"

// Parser turns the raw bytes of one file revision into a Tree.
// Implementations must be safe for concurrent use.
type Parser interface {
	// Parse returns a normalized tree, or an error with code PARSE_ERROR
	// or UNSUPPORTED_LANGUAGE.
	Parse(ctx context.Context, path string, content []byte) (*Tree, error)

	// Language reports the language registered for path.
	Language(path string) (string, bool)
}
