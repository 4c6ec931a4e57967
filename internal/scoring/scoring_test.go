package scoring

import (
	"testing"

	"github.com/FranksOps/leadfinder/internal/storage"
)

func ptr(f float64) *float64 { return &f }

func audit(codes ...storage.IssueCode) storage.AuditSummary {
	return storage.AuditSummary{Status: storage.AuditInspected, IssueCodes: codes}
}

func TestScore(t *testing.T) {
	m := NewModel(nil)
	tests := []struct {
		name  string
		b     *storage.Business
		audit storage.AuditSummary
		want  int
	}{
		{"clean site, neutral reputation", &storage.Business{Rating: ptr(3.8), ReviewCount: 5}, audit(), 90},
		{"well reviewed", &storage.Business{Rating: ptr(4.6), ReviewCount: 120}, audit(), 100},
		{"good rating few reviews", &storage.Business{Rating: ptr(4.2), ReviewCount: 3}, audit(storage.IssueNoHTTPS), 80},
		{"no reviews", &storage.Business{}, audit(storage.IssueMissingTitle), 80},
		{"poorly reviewed", &storage.Business{Rating: ptr(2.9), ReviewCount: 40}, audit(storage.IssueSlowLoad), 75},
		{"no website best case", &storage.Business{Rating: ptr(5), ReviewCount: 50}, audit(storage.IssueNoWebsite), 60},
		{"duplicate codes count once", &storage.Business{Rating: ptr(3.8), ReviewCount: 5}, audit(storage.IssueSlowLoad, storage.IssueSlowLoad), 80},
		{
			"clamped at zero",
			&storage.Business{},
			audit(storage.IssueUnreachable, storage.IssueBrokenResponse, storage.IssueNoHTTPS, storage.IssueSlowLoad,
				storage.IssueMissingContact, storage.IssueNoMobileViewport, storage.IssueEmptyPage),
			0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Score(tt.b, tt.audit); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestScore_Deterministic(t *testing.T) {
	m := NewModel(nil)
	b := &storage.Business{Rating: ptr(4.1), ReviewCount: 12}
	a := audit(storage.IssueNoHTTPS, storage.IssueMissingContact, storage.IssueMissingTitle)

	first := m.Score(b, a)
	for i := 0; i < 50; i++ {
		if got := m.Score(b, a); got != first {
			t.Fatalf("score changed between calls: %d then %d", first, got)
		}
	}
}

func TestScore_NoWebsiteNeverAbove60(t *testing.T) {
	m := NewModel(nil)
	for _, reviews := range []int{0, 1, 9, 10, 100} {
		for _, rating := range []float64{0, 1, 3.4, 3.5, 4, 5} {
			b := &storage.Business{Rating: ptr(rating), ReviewCount: reviews}
			if got := m.Score(b, audit(storage.IssueNoWebsite)); got > 60 {
				t.Errorf("rating %.1f reviews %d: expected <= 60, got %d", rating, reviews, got)
			}
		}
	}
}

func TestScore_MoreIssuesNeverScoreHigher(t *testing.T) {
	m := NewModel(nil)
	b := &storage.Business{Rating: ptr(4.5), ReviewCount: 30}
	codes := []storage.IssueCode{
		storage.IssueNoHTTPS, storage.IssueSlowLoad, storage.IssueMissingTitle, storage.IssueMissingMetaDescription,
	}

	prev := m.Score(b, audit())
	for i := range codes {
		got := m.Score(b, audit(codes[:i+1]...))
		if got > prev {
			t.Errorf("adding %s raised the score from %d to %d", codes[i], prev, got)
		}
		prev = got
	}
}

func TestExplain(t *testing.T) {
	m := NewModel(nil)
	b := &storage.Business{Rating: ptr(4.8), ReviewCount: 25}
	got := m.Explain(b, audit(storage.IssueNoWebsite))

	want := []Term{
		{Label: "baseline", Points: 90},
		{Label: "no_website", Points: -40},
		{Label: "well reviewed", Points: 10},
	}
	if len(got.Terms) != len(want) {
		t.Fatalf("expected %d terms, got %+v", len(want), got.Terms)
	}
	for i := range want {
		if got.Terms[i] != want[i] {
			t.Errorf("term %d: expected %+v, got %+v", i, want[i], got.Terms[i])
		}
	}
	if got.Score != 60 || got.Raw != 60 {
		t.Errorf("expected score 60, got %+v", got)
	}
	if s := got.String(); s == "" {
		t.Errorf("expected a printable breakdown")
	}
}

func TestNewModel_CustomWeights(t *testing.T) {
	m := NewModel(map[storage.IssueCode]int{storage.IssueNoHTTPS: 50})
	b := &storage.Business{Rating: ptr(3.8), ReviewCount: 5}
	if got := m.Score(b, audit(storage.IssueNoHTTPS, storage.IssueSlowLoad)); got != 40 {
		t.Errorf("expected 40 with custom weights, got %d", got)
	}
}
