package git

import (
	"context"
	"testing"

	"github.com/flozender/code-tracker-sub024/internal/errors"
)

func TestMemoryBackend(t *testing.T) {
	m := NewMemoryBackend()
	m.AddCommit("c1", nil, map[string]string{"a.ol": "class A\n", "b.ol": "class B\n"})
	m.Derive("c2", "c1", map[string]string{"b.ol": "", "moved/b.ol": "class B\n"})
	m.Derive("c3", "c2", map[string]string{"a.ol": "class A2\n"})
	m.AddCommit("m", []string{"c3", "c1"}, map[string]string{"a.ol": "class A\n"})
	ctx := context.Background()

	c, err := m.ResolveCommit(ctx, "m")
	if err != nil || !c.IsMerge() {
		t.Fatalf("ResolveCommit(m) = %+v, %v", c, err)
	}
	parents, err := m.Parents(ctx, "m")
	if err != nil || len(parents) != 2 || parents[0].ID != "c3" {
		t.Fatalf("Parents(m) = %v, %v", parents, err)
	}

	old, ok, err := m.DetectRename(ctx, "c2", "c1", "moved/b.ol")
	if err != nil || !ok || old != "b.ol" {
		t.Errorf("DetectRename() = %q, %v, %v", old, ok, err)
	}

	changes, err := m.ChangedFiles(ctx, "c3", "c2")
	if err != nil || len(changes) != 1 || changes[0] != (Change{From: "a.ol", To: "a.ol"}) {
		t.Errorf("ChangedFiles() = %v, %v", changes, err)
	}

	if _, err := m.Blob(ctx, "c2", "b.ol"); !errors.IsCode(err, errors.BlobNotFound) {
		t.Errorf("Blob() error = %v, want BLOB_NOT_FOUND", err)
	}
	if _, err := m.Parents(ctx, "nope"); !errors.IsCode(err, errors.CommitNotFound) {
		t.Errorf("Parents() error = %v, want COMMIT_NOT_FOUND", err)
	}

	m.FailBlob("c3", "a.ol", errors.New(errors.Timeout, "slow", nil))
	if _, err := m.Blob(ctx, "c3", "a.ol"); !errors.IsCode(err, errors.Timeout) {
		t.Errorf("Blob() error = %v, want TIMEOUT", err)
	}
	if m.BlobCalls() != 0 {
		t.Errorf("BlobCalls() = %d, want 0", m.BlobCalls())
	}
}

func TestMemoryBackend_ExplicitRename(t *testing.T) {
	m := NewMemoryBackend()
	m.AddCommit("c1", nil, map[string]string{"a.ol": "class A\n"})
	m.Derive("c2", "c1", map[string]string{"a.ol": "", "z.ol": "class A\n  field f: int\n"})
	m.Rename("c2", "a.ol", "z.ol")

	old, ok, err := m.DetectRename(context.Background(), "c2", "c1", "z.ol")
	if err != nil || !ok || old != "a.ol" {
		t.Errorf("DetectRename() = %q, %v, %v", old, ok, err)
	}
}
