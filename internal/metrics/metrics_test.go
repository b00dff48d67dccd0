package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordTrack(t *testing.T) {
	before := testutil.ToFloat64(tracksTotal.WithLabelValues("introduced"))
	RecordTrack("introduced", 3, 10*time.Millisecond)
	after := testutil.ToFloat64(tracksTotal.WithLabelValues("introduced"))
	if after-before != 1 {
		t.Errorf("requests_total delta = %v, want 1", after-before)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	before := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit"))
	RecordCacheLookup("hit")
	RecordCacheLookup("hit")
	if got := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit")) - before; got != 2 {
		t.Errorf("lookups_total{hit} delta = %v, want 2", got)
	}
}

func TestHandler(t *testing.T) {
	RecordComparison()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "codetracker_matcher_token_comparisons_total") {
		t.Error("handler output missing matcher counter")
	}
}
