package git

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flozender/code-tracker-sub024/internal/errors"
	"github.com/flozender/code-tracker-sub024/internal/syntax"
)

type memCommit struct {
	Commit
	files map[string][]byte
}

// MemoryBackend is an in-memory Backend over hand-built commits.
// Every commit carries a full snapshot of its files.
type MemoryBackend struct {
	mu      sync.RWMutex
	commits map[string]*memCommit
	renames map[string]string // commit|newPath -> oldPath
	fail    map[string]error  // commit|path -> injected Blob error

	blobCalls atomic.Int64
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		commits: make(map[string]*memCommit),
		renames: make(map[string]string),
		fail:    make(map[string]error),
	}
}

// AddCommit records a commit with a complete file snapshot.
func (m *MemoryBackend) AddCommit(id string, parents []string, files map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := make(map[string][]byte, len(files))
	for p, content := range files {
		snap[p] = []byte(content)
	}
	m.commits[id] = &memCommit{
		Commit: Commit{
			ID:      id,
			Parents: append([]string(nil), parents...),
			Author:  "Test Author",
			Email:   "test@example.com",
			Time:    time.Unix(int64(len(m.commits))*3600, 0).UTC(),
			Message: "commit " + id,
		},
		files: snap,
	}
}

// Derive records a commit whose snapshot is parent's with changes applied.
// An empty content deletes the path.
func (m *MemoryBackend) Derive(id, parent string, changes map[string]string) {
	m.mu.RLock()
	base := m.commits[parent]
	files := make(map[string]string)
	if base != nil {
		for p, c := range base.files {
			files[p] = string(c)
		}
	}
	m.mu.RUnlock()

	for p, c := range changes {
		if c == "" {
			delete(files, p)
			continue
		}
		files[p] = c
	}
	m.AddCommit(id, []string{parent}, files)
}

// Rename registers oldPath in the parent as the origin of newPath at commit.
func (m *MemoryBackend) Rename(commit, oldPath, newPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renames[commit+"|"+newPath] = oldPath
}

// FailBlob makes Blob and BlobHash for path at commit return err.
func (m *MemoryBackend) FailBlob(commit, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[commit+"|"+path] = err
}

// BlobCalls returns the number of Blob reads served.
func (m *MemoryBackend) BlobCalls() int64 {
	return m.blobCalls.Load()
}

func (m *MemoryBackend) get(id string) (*memCommit, error) {
	c, ok := m.commits[id]
	if !ok {
		return nil, errors.New(errors.CommitNotFound, fmt.Sprintf("unknown commit %q", id), nil)
	}
	return c, nil
}

// ResolveCommit implements Backend.
func (m *MemoryBackend) ResolveCommit(ctx context.Context, rev string) (Commit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.get(rev)
	if err != nil {
		return Commit{}, err
	}
	return c.Commit, nil
}

// Parents implements Backend.
func (m *MemoryBackend) Parents(ctx context.Context, id string) ([]Commit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.get(id)
	if err != nil {
		return nil, err
	}
	out := make([]Commit, 0, len(c.Parents))
	for _, pid := range c.Parents {
		p, err := m.get(pid)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Commit)
	}
	return out, nil
}

func (m *MemoryBackend) blob(commit, path string) ([]byte, error) {
	if err := m.fail[commit+"|"+path]; err != nil {
		return nil, err
	}
	c, err := m.get(commit)
	if err != nil {
		return nil, err
	}
	b, ok := c.files[path]
	if !ok {
		return nil, errors.New(errors.BlobNotFound, fmt.Sprintf("%s not found at %s", path, commit), nil)
	}
	return b, nil
}

// Blob implements Backend.
func (m *MemoryBackend) Blob(ctx context.Context, commit, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.blob(commit, path)
	if err != nil {
		return nil, err
	}
	m.blobCalls.Add(1)
	return append([]byte(nil), b...), nil
}

// BlobHash implements Backend.
func (m *MemoryBackend) BlobHash(ctx context.Context, commit, path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.blob(commit, path)
	if err != nil {
		return "", err
	}
	return syntax.Digest(b), nil
}

// DetectRename implements Backend.
func (m *MemoryBackend) DetectRename(ctx context.Context, commit, parent, path string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	child, err := m.get(commit)
	if err != nil {
		return "", false, err
	}
	base, err := m.get(parent)
	if err != nil {
		return "", false, err
	}
	if _, ok := base.files[path]; ok {
		return "", false, nil
	}
	if old, ok := m.renames[commit+"|"+path]; ok {
		if _, exists := base.files[old]; exists {
			return old, true, nil
		}
	}
	content, ok := child.files[path]
	if !ok {
		return "", false, errors.New(errors.BlobNotFound, fmt.Sprintf("%s not found at %s", path, commit), nil)
	}
	for _, p := range sortedPaths(base.files) {
		if _, kept := child.files[p]; kept {
			continue
		}
		if string(base.files[p]) == string(content) {
			return p, true, nil
		}
	}
	return "", false, nil
}

// ChangedFiles implements Backend.
func (m *MemoryBackend) ChangedFiles(ctx context.Context, commit, parent string) ([]Change, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	child, err := m.get(commit)
	if err != nil {
		return nil, err
	}
	base, err := m.get(parent)
	if err != nil {
		return nil, err
	}

	var out []Change
	for _, p := range sortedPaths(child.files) {
		old, ok := base.files[p]
		switch {
		case !ok:
			out = append(out, Change{To: p})
		case string(old) != string(child.files[p]):
			out = append(out, Change{From: p, To: p})
		}
	}
	for _, p := range sortedPaths(base.files) {
		if _, ok := child.files[p]; !ok {
			out = append(out, Change{From: p})
		}
	}
	return out, nil
}

func sortedPaths(files map[string][]byte) []string {
	out := make([]string, 0, len(files))
	for p := range files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

var _ Backend = (*MemoryBackend)(nil)
var _ Backend = (*Repository)(nil)
