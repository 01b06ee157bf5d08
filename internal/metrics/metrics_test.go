package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordStreamCountsByStatus(t *testing.T) {
	before := testutil.ToFloat64(StreamsTotal.WithLabelValues("fake", "complete"))
	RecordStream("fake", "complete", true, 0.2)
	RecordStream("fake", "failed", true, 0.1)
	if got := testutil.ToFloat64(StreamsTotal.WithLabelValues("fake", "complete")); got != before+1 {
		t.Fatalf("complete streams: want %v got %v", before+1, got)
	}
}

func TestRecordRequestLabelsUnmatchedRoute(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "unmatched", "404"))
	RecordRequest("GET", "", 404, 0.001)
	if got := testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "unmatched", "404")); got != before+1 {
		t.Fatalf("unmatched route not recorded: %v", got)
	}
}
