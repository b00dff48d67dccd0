package git

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/flozender/code-tracker-sub024/internal/errors"
)

type fixtureRepo struct {
	dir  string
	repo *gogit.Repository
	wt   *gogit.Worktree
	now  time.Time
}

func newFixtureRepo(t *testing.T) *fixtureRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit() error = %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree() error = %v", err)
	}
	return &fixtureRepo{dir: dir, repo: repo, wt: wt, now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fixtureRepo) write(t *testing.T, path, content string) {
	t.Helper()
	full := filepath.Join(f.dir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := f.wt.Add(path); err != nil {
		t.Fatalf("Add(%s) error = %v", path, err)
	}
}

func (f *fixtureRepo) commit(t *testing.T, msg string) string {
	t.Helper()
	f.now = f.now.Add(time.Hour)
	h, err := f.wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Jane Doe", Email: "jane@example.com", When: f.now},
	})
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return h.String()
}

func openFixture(t *testing.T, f *fixtureRepo) *Repository {
	t.Helper()
	r, err := Open(f.dir, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return r
}

func TestRepository_CommitsAndBlobs(t *testing.T) {
	f := newFixtureRepo(t)
	f.write(t, "src/A.java", "class A {}\n")
	c1 := f.commit(t, "add A\n\nlonger body")
	f.write(t, "src/A.java", "class A { int x; }\n")
	c2 := f.commit(t, "edit A")

	r := openFixture(t, f)
	ctx := context.Background()

	head, err := r.ResolveCommit(ctx, "HEAD")
	if err != nil {
		t.Fatalf("ResolveCommit(HEAD) error = %v", err)
	}
	if head.ID != c2 {
		t.Errorf("HEAD = %s, want %s", head.ID, c2)
	}
	if len(head.Parents) != 1 || head.Parents[0] != c1 {
		t.Errorf("Parents = %v, want [%s]", head.Parents, c1)
	}

	parents, err := r.Parents(ctx, c2)
	if err != nil {
		t.Fatalf("Parents() error = %v", err)
	}
	if len(parents) != 1 || parents[0].Author != "Jane Doe" || parents[0].Subject() != "add A" {
		t.Errorf("Parents() = %+v", parents)
	}

	root, err := r.Parents(ctx, c1)
	if err != nil || len(root) != 0 {
		t.Errorf("root Parents() = %v, %v", root, err)
	}

	b, err := r.Blob(ctx, c1, "src/A.java")
	if err != nil {
		t.Fatalf("Blob() error = %v", err)
	}
	if string(b) != "class A {}\n" {
		t.Errorf("Blob() = %q", b)
	}

	h1, _ := r.BlobHash(ctx, c1, "src/A.java")
	h2, _ := r.BlobHash(ctx, c2, "src/A.java")
	if h1 == "" || h1 == h2 {
		t.Errorf("BlobHash() = %q, %q; want distinct non-empty", h1, h2)
	}
}

func TestRepository_Errors(t *testing.T) {
	f := newFixtureRepo(t)
	f.write(t, "a.py", "x = 1\n")
	c1 := f.commit(t, "init")
	r := openFixture(t, f)
	ctx := context.Background()

	if _, err := r.ResolveCommit(ctx, "does-not-exist"); !errors.IsCode(err, errors.CommitNotFound) {
		t.Errorf("ResolveCommit() error = %v, want COMMIT_NOT_FOUND", err)
	}
	if _, err := r.Blob(ctx, c1, "missing.py"); !errors.IsCode(err, errors.BlobNotFound) {
		t.Errorf("Blob() error = %v, want BLOB_NOT_FOUND", err)
	}
	if _, err := r.BlobHash(ctx, c1, "dir/missing.py"); !errors.IsCode(err, errors.BlobNotFound) {
		t.Errorf("BlobHash() error = %v, want BLOB_NOT_FOUND", err)
	}
}

func TestRepository_RenameAndChanges(t *testing.T) {
	f := newFixtureRepo(t)
	content := "class A {\n  void foo() { return; }\n}\n"
	f.write(t, "old/A.java", content)
	f.write(t, "B.java", "class B {}\n")
	c1 := f.commit(t, "init")

	if _, err := f.wt.Move("old/A.java", "new/A.java"); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	f.write(t, "B.java", "class B { int y; }\n")
	c2 := f.commit(t, "move A, edit B")

	r := openFixture(t, f)
	ctx := context.Background()

	old, ok, err := r.DetectRename(ctx, c2, c1, "new/A.java")
	if err != nil {
		t.Fatalf("DetectRename() error = %v", err)
	}
	if !ok || old != "old/A.java" {
		t.Errorf("DetectRename() = %q, %v; want old/A.java", old, ok)
	}

	_, ok, err = r.DetectRename(ctx, c2, c1, "B.java")
	if err != nil || ok {
		t.Errorf("DetectRename(B.java) = %v, %v; want no rename", ok, err)
	}

	changes, err := r.ChangedFiles(ctx, c2, c1)
	if err != nil {
		t.Fatalf("ChangedFiles() error = %v", err)
	}
	seen := map[Change]bool{}
	for _, ch := range changes {
		seen[ch] = true
	}
	if !seen[Change{From: "old/A.java", To: "new/A.java"}] {
		t.Errorf("ChangedFiles() = %v, want rename of A.java", changes)
	}
	if !seen[Change{From: "B.java", To: "B.java"}] {
		t.Errorf("ChangedFiles() = %v, want modification of B.java", changes)
	}
}

func TestRepository_CancelledContext(t *testing.T) {
	f := newFixtureRepo(t)
	f.write(t, "a.py", "x = 1\n")
	c1 := f.commit(t, "init")
	r := openFixture(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Blob(ctx, c1, "a.py"); err == nil {
		t.Error("Blob() with cancelled context should fail")
	}
}

func TestRepository_TimeoutLeavesNoSharedState(t *testing.T) {
	f := newFixtureRepo(t)
	f.write(t, "a.py", "x = 1\n")
	c1 := f.commit(t, "init")
	r, err := Open(f.dir, time.Nanosecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := r.Blob(context.Background(), c1, "a.py")
			switch {
			case err == nil:
				if string(b) != "x = 1\n" {
					t.Errorf("Blob() = %q", b)
				}
			case !errors.IsCode(err, errors.Timeout):
				t.Errorf("Blob() error = %v, want TIMEOUT", err)
			}
		}()
	}
	wg.Wait()

	r.queryTimeout = time.Second
	if _, err := r.Blob(context.Background(), c1, "a.py"); err != nil {
		t.Errorf("Blob() after timeouts error = %v", err)
	}
}

func TestOpen_Subdirectory(t *testing.T) {
	f := newFixtureRepo(t)
	f.write(t, "src/pkg/a.py", "x = 1\n")
	f.commit(t, "init")

	r, err := Open(filepath.Join(f.dir, "src", "pkg"), time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open(subdir) error = %v", err)
	}
	if r.Root() != f.dir {
		t.Errorf("Root() = %q, want worktree root %q", r.Root(), f.dir)
	}
}

func TestOpen_NotARepository(t *testing.T) {
	_, err := Open(t.TempDir(), 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		t.Fatal("Open() on a plain directory should fail")
	}
}
