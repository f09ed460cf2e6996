package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordMatch(t *testing.T) {
	before := testutil.ToFloat64(MatchesTotal.WithLabelValues("test", "high"))
	RecordMatch("test", "high", 0.93)
	after := testutil.ToFloat64(MatchesTotal.WithLabelValues("test", "high"))
	if after-before != 1 {
		t.Fatalf("counter moved by %v", after-before)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(CacheLookups.WithLabelValues("hit"))
	misses := testutil.ToFloat64(CacheLookups.WithLabelValues("miss"))
	RecordCacheLookup(true)
	RecordCacheLookup(false)
	RecordCacheLookup(false)
	if got := testutil.ToFloat64(CacheLookups.WithLabelValues("hit")) - hits; got != 1 {
		t.Fatalf("hits=%v", got)
	}
	if got := testutil.ToFloat64(CacheLookups.WithLabelValues("miss")) - misses; got != 2 {
		t.Fatalf("misses=%v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordAPICall("/parts/search", "200", 20*time.Millisecond)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "partsmatch_api_calls_total") {
		t.Fatal("api call counter missing from /metrics output")
	}
}
