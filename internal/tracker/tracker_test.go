package tracker

import (
	"context"
	stderrors "errors"
	"reflect"
	"testing"

	"github.com/flozender/code-tracker-sub024/internal/backends/git"
	"github.com/flozender/code-tracker-sub024/internal/config"
	"github.com/flozender/code-tracker-sub024/internal/errors"
	"github.com/flozender/code-tracker-sub024/internal/history"
	"github.com/flozender/code-tracker-sub024/internal/matcher"
	"github.com/flozender/code-tracker-sub024/internal/testutil"
)

const fooV1 = `class Foo
  method foo(int n): int
    | total = n + 1 ; return total * 2
  method other()
    | log ( 1 )
`

const fooV2 = `class Foo
  method bar(int n): int
    | total = n + 1 ; return total * 2
  method other()
    | log ( 1 )
`

func fixture() *git.MemoryBackend {
	be := git.NewMemoryBackend()
	be.AddCommit("c1", nil, map[string]string{"Foo.ol": fooV1})
	be.Derive("c2", "c1", map[string]string{"Foo.ol": fooV2})
	be.Derive("c3", "c2", map[string]string{"README.md": "docs"})
	return be
}

func openTracker(t *testing.T, root, backend string, be git.Backend) *Tracker {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Cache.Backend = backend
	tr, err := Open(context.Background(), root, cfg, be, testutil.OutlineParser{}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return tr
}

var barRequest = Request{Commit: "c3", Path: "Foo.ol", Element: "class:Foo::method:bar(int)"}

func TestTrack(t *testing.T) {
	tr := openTracker(t, t.TempDir(), "none", fixture())
	defer tr.Close(context.Background())

	h, err := tr.Track(context.Background(), barRequest)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if h.RequestID == "" {
		t.Error("RequestID not assigned")
	}
	if got := h.Commits(); !reflect.DeepEqual(got, []string{"c1", "c2", "c3"}) {
		t.Errorf("versions = %v", got)
	}
	if h.Edges[0].Ops != matcher.Ops(matcher.Renamed) {
		t.Errorf("first edge = %s, want {Renamed}", h.Edges[0].Ops)
	}
	if h.Termination.Reason != history.RootReached {
		t.Errorf("termination = %+v", h.Termination)
	}
}

func TestTrackRequestIDsAreUnique(t *testing.T) {
	tr := openTracker(t, t.TempDir(), "none", fixture())
	ctx := context.Background()

	a, err := tr.Track(ctx, barRequest)
	if err != nil {
		t.Fatal(err)
	}
	b, err := tr.Track(ctx, barRequest)
	if err != nil {
		t.Fatal(err)
	}
	if a.RequestID == b.RequestID {
		t.Errorf("duplicate request id %s", a.RequestID)
	}
}

func TestTrackInvalidRequests(t *testing.T) {
	tr := openTracker(t, t.TempDir(), "none", fixture())

	tests := []struct {
		name string
		req  Request
		code errors.ErrorCode
	}{
		{"unknown commit", Request{Commit: "nope", Path: "Foo.ol", Element: "class:Foo"}, errors.CommitNotFound},
		{"bad key", Request{Commit: "c3", Path: "Foo.ol", Element: "widget:Foo"}, errors.InvalidElementKey},
		{"empty key", Request{Commit: "c3", Path: "Foo.ol"}, errors.InvalidElementKey},
		{"missing element", Request{Commit: "c3", Path: "Foo.ol", Element: "class:Bar"}, errors.ElementNotFound},
		{"missing file", Request{Commit: "c3", Path: "Gone.ol", Element: "class:Foo"}, errors.BlobNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := tr.Track(context.Background(), tt.req)
			if h != nil {
				t.Errorf("history = %+v, want nil", h)
			}
			if !errors.IsCode(err, tt.code) {
				t.Errorf("error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestTrackAllKeepsRequestOrder(t *testing.T) {
	tr := openTracker(t, t.TempDir(), "none", fixture())

	reqs := []Request{
		barRequest,
		{Commit: "c3", Path: "Foo.ol", Element: "class:Foo::method:other()"},
		{Commit: "c3", Path: "Foo.ol", Element: "class:Missing"},
		{Commit: "c2", Path: "Foo.ol", Element: "class:Foo"},
	}
	results, err := tr.TrackAll(context.Background(), reqs)
	if err != nil {
		t.Fatalf("TrackAll: %v", err)
	}
	if len(results) != len(reqs) {
		t.Fatalf("got %d results, want %d", len(results), len(reqs))
	}
	for i, r := range results {
		if r.Request != reqs[i] {
			t.Errorf("results[%d].Request = %+v, want %+v", i, r.Request, reqs[i])
		}
	}
	if results[0].History.Start.Key.Name != "bar" {
		t.Errorf("results[0] tracked %s", results[0].History.Start.Key)
	}
	if results[1].History.Start.Key.Name != "other" {
		t.Errorf("results[1] tracked %s", results[1].History.Start.Key)
	}
	if results[2].Err == nil || results[2].Error == "" || results[2].History != nil {
		t.Errorf("results[2] = %+v, want element error", results[2])
	}
	if got := results[3].History.Commits(); !reflect.DeepEqual(got, []string{"c1", "c2"}) {
		t.Errorf("results[3] versions = %v", got)
	}
}

func TestTrackAllCancelled(t *testing.T) {
	tr := openTracker(t, t.TempDir(), "none", fixture())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.TrackAll(ctx, []Request{barRequest})
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestWarmCacheReproducesHistory(t *testing.T) {
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			root := t.TempDir()

			cold := openTracker(t, root, backend, fixture())
			first, err := cold.Track(ctx, barRequest)
			if err != nil {
				t.Fatalf("cold Track: %v", err)
			}
			if cold.Stats().Parses == 0 {
				t.Fatal("cold run parsed nothing")
			}
			if err := cold.Close(ctx); err != nil {
				t.Fatalf("Close: %v", err)
			}

			warm := openTracker(t, root, backend, fixture())
			defer warm.Close(ctx)
			if warm.Stats().Loaded == 0 {
				t.Fatal("warm tracker loaded no snapshots")
			}
			second, err := warm.Track(ctx, barRequest)
			if err != nil {
				t.Fatalf("warm Track: %v", err)
			}
			if p := warm.Stats().Parses; p != 0 {
				t.Errorf("warm run parsed %d files, want 0", p)
			}

			first.RequestID, second.RequestID = "", ""
			if !reflect.DeepEqual(first, second) {
				t.Errorf("warm history differs:\ncold %+v\nwarm %+v", first, second)
			}
		})
	}
}

func TestClearCache(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	tr := openTracker(t, root, "file", fixture())
	if _, err := tr.Track(ctx, barRequest); err != nil {
		t.Fatal(err)
	}
	if err := tr.Close(ctx); err != nil {
		t.Fatal(err)
	}

	tr = openTracker(t, root, "file", fixture())
	if err := tr.ClearCache(ctx); err != nil {
		t.Fatalf("ClearCache: %v", err)
	}

	tr = openTracker(t, root, "file", fixture())
	if n := tr.Stats().Loaded; n != 0 {
		t.Errorf("Loaded = %d after clear, want 0", n)
	}
}

func TestElements(t *testing.T) {
	tr := openTracker(t, t.TempDir(), "none", fixture())

	els, err := tr.Elements(context.Background(), "c2", "Foo.ol")
	if err != nil {
		t.Fatalf("Elements: %v", err)
	}
	want := []string{"class:Foo", "class:Foo::method:bar(int)", "class:Foo::method:other()"}
	if len(els) != len(want) {
		t.Fatalf("got %d elements, want %d: %+v", len(els), len(want), els)
	}
	for i, w := range want {
		if els[i].Key != w {
			t.Errorf("els[%d].Key = %s, want %s", i, els[i].Key, w)
		}
	}
	if els[1].Kind != "method" {
		t.Errorf("els[1].Kind = %s", els[1].Kind)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cache.Backend = "redis"
	_, err := Open(context.Background(), t.TempDir(), cfg, fixture(), testutil.OutlineParser{}, nil)
	var ce *config.ConfigError
	if !stderrors.As(err, &ce) || ce.Field != "cache.backend" {
		t.Errorf("Open error = %v, want cache.backend ConfigError", err)
	}
}
