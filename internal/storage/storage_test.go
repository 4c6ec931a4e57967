package storage

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint("Joe's Coffee", "123 Main St, Seattle, WA", "")
	b := Fingerprint("  joes coffee ", "123 main st seattle wa", "")
	if a != b {
		t.Errorf("expected equal fingerprints for equivalent listings, got %s and %s", a, b)
	}
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(a))
	}

	if Fingerprint("Joe's Coffee", "456 Pine St", "") == a {
		t.Errorf("different address must change the fingerprint")
	}

	// Source id only stands in when the address is missing.
	if Fingerprint("Joe's Coffee", "", "yp-1") == Fingerprint("Joe's Coffee", "", "yp-2") {
		t.Errorf("source ids should distinguish address-less listings")
	}
	if Fingerprint("Joe's Coffee", "123 Main St, Seattle, WA", "yp-1") != a {
		t.Errorf("source id must be ignored when an address is present")
	}
}

func TestBusinessJSON(t *testing.T) {
	b := Business{
		ID:           "abc",
		Name:         "Joe's Coffee",
		DiscoveredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	raw, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(raw)
	if !strings.Contains(s, `"lead_score":null`) {
		t.Errorf("unscored business should carry a null lead_score: %s", s)
	}
	for _, absent := range []string{`"website"`, `"rating"`, `"audit_summary"`, `"phone"`} {
		if strings.Contains(s, absent) {
			t.Errorf("expected %s to be omitted: %s", absent, s)
		}
	}
}

func TestAuditSummary_HasIssue(t *testing.T) {
	a := AuditSummary{IssueCodes: []IssueCode{IssueNoHTTPS, IssueSlowLoad}}
	if !a.HasIssue(IssueSlowLoad) || a.HasIssue(IssueNoWebsite) {
		t.Errorf("unexpected HasIssue results for %v", a.IssueCodes)
	}
}

type stubRepo struct{ Repository }

func TestOpen_Registry(t *testing.T) {
	var gotDSN string
	Register(func(_ context.Context, dsn string) (Repository, error) {
		gotDSN = dsn
		return stubRepo{}, nil
	}, "Stub")

	if _, err := Open(context.Background(), "stub://somewhere"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotDSN != "stub://somewhere" {
		t.Errorf("opener got %q", gotDSN)
	}

	if _, err := Open(context.Background(), "mysql://x"); err == nil {
		t.Errorf("expected error for unregistered scheme")
	}
}

func TestScheme(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost/db":  "postgres",
		"file:leads.db?cache=shared":   "file",
		"sqlite://./leads.db":          "sqlite",
		"no-scheme":                    "",
		"POSTGRESQL://localhost/leads": "postgresql",
	}
	for dsn, want := range tests {
		if got := Scheme(dsn); got != want {
			t.Errorf("Scheme(%q) = %q, want %q", dsn, got, want)
		}
	}
}
