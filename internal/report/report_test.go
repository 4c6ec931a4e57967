package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/leadfinder/internal/pipeline"
	"github.com/FranksOps/leadfinder/internal/storage"
)

func scored(name, category string, score int, status storage.AuditStatus, codes ...storage.IssueCode) *storage.Business {
	return &storage.Business{
		ID:        strings.ToLower(strings.ReplaceAll(name, " ", "-")),
		Name:      name,
		Category:  category,
		LeadScore: &score,
		Audit:     &storage.AuditSummary{Status: status, IssueCodes: codes, Issues: []string{string(status)}},
	}
}

func sample() []*storage.Business {
	return []*storage.Business{
		scored("Joe's Pizza", "Pizza", 85, storage.AuditInspected, storage.IssueNoHTTPS, storage.IssueSlowLoad),
		scored("Corner Cafe", "Coffee", 60, storage.AuditNoWebsite, storage.IssueNoWebsite),
		scored("Bean There", "Coffee", 45, storage.AuditFailed, storage.IssueUnreachable),
		scored("Fancy Place", "", 20, storage.AuditInspected, storage.IssueNoHTTPS),
		{ID: "unscored", Name: "Unscored"},
	}
}

func TestGenerateSummary(t *testing.T) {
	s := GenerateSummary(sample())

	if s.TotalLeads != 4 {
		t.Errorf("expected 4 leads, got %d", s.TotalLeads)
	}
	if s.NoWebsite != 1 || s.AuditFailed != 1 {
		t.Errorf("expected 1 no-website and 1 failed, got %d and %d", s.NoWebsite, s.AuditFailed)
	}
	if s.AverageScore != 52.5 {
		t.Errorf("expected average 52.5, got %v", s.AverageScore)
	}
	if s.IssueCounts["no_https"] != 2 {
		t.Errorf("expected 2 no_https, got %d", s.IssueCounts["no_https"])
	}
	if s.Categories["Coffee"] != 2 || len(s.Categories) != 2 {
		t.Errorf("unexpected categories %v", s.Categories)
	}
	for band, want := range map[string]int{"80-100": 1, "60-79": 1, "40-59": 1, "0-39": 1} {
		if s.ScoreBands[band] != want {
			t.Errorf("band %s: expected %d, got %d", band, want, s.ScoreBands[band])
		}
	}
}

func TestGenerateSummary_Empty(t *testing.T) {
	s := GenerateSummary(nil)
	if s.TotalLeads != 0 || s.AverageScore != 0 {
		t.Errorf("expected zero summary, got %+v", s)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, GenerateSummary(sample())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded Summary
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if decoded.TotalLeads != 4 {
		t.Errorf("expected 4 leads, got %d", decoded.TotalLeads)
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, GenerateSummary(sample())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Leads:         4", "Average score: 52.5", "no_https: 2", "Coffee: 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	// no_https (2) sorts before the single-count issues.
	if strings.Index(out, "no_https") > strings.Index(out, "slow_load") {
		t.Errorf("expected issues ordered by count")
	}
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	s := GenerateSummary(sample())
	s.IssueCounts["<script>"] = 1
	if err := WriteHTML(&buf, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<title>Lead Report</title>") {
		t.Errorf("expected HTML title")
	}
	if strings.Contains(out, "<td><script></td>") {
		t.Errorf("expected issue keys to be escaped")
	}
}

func TestWriteJob(t *testing.T) {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	res := &pipeline.JobResult{
		ID:          "job-1",
		Query:       "coffee shops in Seattle",
		State:       pipeline.StateCompleted,
		StartedAt:   start,
		CompletedAt: start.Add(3 * time.Second),
		Discovered:  5,
		Count:       4,
		Errors: []pipeline.JobError{
			{BusinessID: "x", Name: "Bean There", Stage: pipeline.StagePersist, Message: "disk full"},
			{Stage: pipeline.StageDiscovery, Message: "stopped at page 2"},
		},
	}

	var buf bytes.Buffer
	if err := WriteJob(&buf, res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Job job-1 (completed)", "Persisted:  4", "Duration:   3s", "[persist] Bean There: disk full", "[discovery] -: stopped at page 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestWriteLeads(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLeads(&buf, sample()[:2]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "SCORE") || !strings.HasPrefix(lines[1], "85") {
		t.Errorf("unexpected table:\n%s", buf.String())
	}
}
