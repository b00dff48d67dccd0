package git

import (
	"context"
	"strings"
	"time"
)

// Commit is an immutable revision with its parent ids. Root commits have no
// parents; merges have more than one.
type Commit struct {
	ID      string    `json:"id"`
	Parents []string  `json:"parents,omitempty"`
	Author  string    `json:"author,omitempty"`
	Email   string    `json:"email,omitempty"`
	Time    time.Time `json:"time"`
	Message string    `json:"message,omitempty"`
}

// IsMerge reports whether the commit has more than one parent.
func (c Commit) IsMerge() bool {
	return len(c.Parents) > 1
}

// Subject returns the first line of the commit message.
func (c Commit) Subject() string {
	subject, _, _ := strings.Cut(c.Message, "\n")
	return subject
}

// Change is one file-level difference between a parent and a child commit.
// From is empty for added files and To is empty for deleted ones.
type Change struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// Backend is the version-control contract the tracker consumes.
//
// Absent paths fail with BLOB_NOT_FOUND, unknown revisions with
// COMMIT_NOT_FOUND and slow calls with TIMEOUT.
type Backend interface {
	// ResolveCommit resolves a revision (hash, branch, tag, HEAD~n).
	ResolveCommit(ctx context.Context, rev string) (Commit, error)

	// Parents returns the parent commits of id in parent order.
	Parents(ctx context.Context, id string) ([]Commit, error)

	// Blob returns the content of path at commit.
	Blob(ctx context.Context, commit, path string) ([]byte, error)

	// BlobHash returns the object id of path at commit without reading it.
	BlobHash(ctx context.Context, commit, path string) (string, error)

	// DetectRename returns the path under which the file that is path in
	// commit existed in parent, when it was renamed between them.
	DetectRename(ctx context.Context, commit, parent, path string) (oldPath string, ok bool, err error)

	// ChangedFiles lists the files that differ between parent and commit.
	ChangedFiles(ctx context.Context, commit, parent string) ([]Change, error)
}
