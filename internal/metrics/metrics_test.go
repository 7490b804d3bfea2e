package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistry_CountersAndHandler(t *testing.T) {
	r := NewRegistry()
	r.RecordsReceived.Add(3)
	r.Faults.WithLabelValues("mapping").Inc()
	r.Uploads.WithLabelValues("accepted").Add(2)

	if got := testutil.ToFloat64(r.RecordsReceived); got != 3 {
		t.Fatalf("received=%v want=3", got)
	}
	if got := testutil.ToFloat64(r.Uploads.WithLabelValues("accepted")); got != 2 {
		t.Fatalf("accepted=%v want=2", got)
	}

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		"evfwd_records_received_total 3",
		`evfwd_faults_total{kind="mapping"} 1`,
		`evfwd_uploads_total{status="accepted"} 2`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("scrape missing %q", want)
		}
	}
}
