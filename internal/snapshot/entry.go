package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/flozender/code-tracker-sub024/internal/errors"
	"github.com/flozender/code-tracker-sub024/internal/syntax"
)

// SchemaVersion is the version of the persisted entry format. Stores
// holding another version are discarded on load.
const SchemaVersion = 1

// Key identifies one file revision.
type Key struct {
	Commit string
	Path   string
}

func (k Key) String() string {
	return k.Commit + ":" + k.Path
}

// Failure is a memoized, deterministic failure to produce a tree.
type Failure struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// Entry is the memoized outcome for one Key: a tree or a failure.
type Entry struct {
	Tree    *syntax.Tree `json:"tree,omitempty"`
	Failure *Failure     `json:"failure,omitempty"`
}

func (e *Entry) result() (*syntax.Tree, error) {
	if e.Failure != nil {
		return nil, errors.New(e.Failure.Code, e.Failure.Message, nil)
	}
	return e.Tree, nil
}

// memoizable reports whether err is a deterministic property of the
// revision that can be remembered.
func memoizable(err error) bool {
	switch errors.CodeOf(err) {
	case errors.BlobNotFound, errors.ParseError, errors.UnsupportedLanguage:
		return true
	default:
		return false
	}
}

func failureEntry(err error) *Entry {
	f := &Failure{Code: errors.CodeOf(err), Message: err.Error()}
	return &Entry{Failure: f}
}

func encodeEntry(e *Entry) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEntry(b []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode snapshot entry: %w", err)
	}
	if e.Tree == nil && e.Failure == nil {
		return nil, fmt.Errorf("decode snapshot entry: empty entry")
	}
	return &e, nil
}
