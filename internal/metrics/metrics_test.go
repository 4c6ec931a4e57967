package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/leadfinder/internal/storage"
)

func TestMetricsServer(t *testing.T) {
	srv, err := Start("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("failed to start metrics server: %v", err)
	}
	defer srv.Stop(context.Background())

	RecordFetch("website", "ok", time.Second, 11)
	RecordAudit(storage.AuditSummary{
		IssueCodes: []storage.IssueCode{storage.IssueNoHTTPS, storage.IssueSlowLoad},
	}, 65)
	RecordJob("completed", 3*time.Second)

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	output := string(body)

	for _, want := range []string{
		`leadfinder_fetch_requests_total{kind="website",outcome="ok"}`,
		`leadfinder_fetch_duration_seconds_bucket`,
		`leadfinder_fetch_bytes_total{kind="website"}`,
		`leadfinder_audit_issues_total{code="no_https"}`,
		`leadfinder_lead_score_bucket`,
		`leadfinder_jobs_total{state="completed"}`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in metrics output", want)
		}
	}
}

func TestRecordFetch_BoundedSeries(t *testing.T) {
	ts := httptest.NewServer(Handler())
	defer ts.Close()

	// One fetch per target host; the series count must not grow with them.
	for range []string{"a.example", "b.example", "c.example"} {
		RecordFetch("search", "ok", 100*time.Millisecond, 512)
	}

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	var series []string
	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, `leadfinder_fetch_requests_total{kind="search",`) {
			series = append(series, line)
		}
	}
	if len(series) != 1 {
		t.Fatalf("expected one search series, got %q", series)
	}
	if !strings.HasPrefix(series[0], `leadfinder_fetch_requests_total{kind="search",outcome="ok"} `) {
		t.Errorf("unexpected labels in %q", series[0])
	}
}

func TestStop_NilServer(t *testing.T) {
	var s *Server
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("expected nil error stopping a nil server, got %v", err)
	}
}
