// Package storagetest is a behavioral test suite for storage.Repository
// implementations.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/FranksOps/leadfinder/internal/storage"
)

// Run exercises repo against the Repository contract. repo must start empty.
func Run(t *testing.T, repo storage.Repository) {
	t.Helper()
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Fatalf("ping: %v", err)
		}
	})
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(ctx, t, repo) })
	t.Run("UpsertOverwrites", func(t *testing.T) { testUpsertOverwrites(ctx, t, repo) })
	t.Run("QueryOrderAndFilter", func(t *testing.T) { testQuery(ctx, t, repo) })
	t.Run("Delete", func(t *testing.T) { testDelete(ctx, t, repo) })
	t.Run("ConcurrentUpsertSameID", func(t *testing.T) { testConcurrentUpsert(ctx, t, repo) })
}

func score(n int) *int { return &n }

func rating(f float64) *float64 { return &f }

func testRoundTrip(ctx context.Context, t *testing.T, repo storage.Repository) {
	discovered := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b := &storage.Business{
		ID:           storage.Fingerprint("Roundtrip Bakery", "1 First Ave, Seattle, WA", ""),
		Name:         "Roundtrip Bakery",
		Category:     "Bakeries",
		Address:      "1 First Ave, Seattle, WA",
		Phone:        "12066246000",
		Website:      "http://roundtrip.example",
		Rating:       rating(4.5),
		ReviewCount:  12,
		DiscoveredAt: discovered,
	}
	if err := repo.Upsert(ctx, b); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if b.LastUpdatedAt.IsZero() {
		t.Errorf("expected LastUpdatedAt to be written back")
	}

	got, err := repo.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != b.Name || got.Category != b.Category || got.Address != b.Address ||
		got.Phone != b.Phone || got.Website != b.Website || got.ReviewCount != b.ReviewCount {
		t.Errorf("fields did not round-trip: got %+v", got)
	}
	if got.Rating == nil || *got.Rating != 4.5 {
		t.Errorf("expected rating 4.5, got %v", got.Rating)
	}
	if got.LeadScore != nil {
		t.Errorf("expected nil lead score, got %d", *got.LeadScore)
	}
	if got.Audit != nil {
		t.Errorf("expected no audit, got %+v", got.Audit)
	}
	if !got.DiscoveredAt.Equal(discovered) {
		t.Errorf("expected discovered_at %v, got %v", discovered, got.DiscoveredAt)
	}

	// Unscored businesses never show up in lead queries.
	leads, err := repo.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for _, l := range leads {
		if l.ID == b.ID {
			t.Errorf("unscored business returned by Query")
		}
	}

	if _, err := repo.Get(ctx, "does-not-exist"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testUpsertOverwrites(ctx context.Context, t *testing.T, repo storage.Repository) {
	id := storage.Fingerprint("Overwrite Cafe", "2 Second Ave", "")
	first := &storage.Business{
		ID:           id,
		Name:         "Overwrite Cafe",
		Website:      "http://old.example",
		Rating:       rating(3.0),
		ReviewCount:  2,
		LeadScore:    score(70),
		DiscoveredAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Audit: &storage.AuditSummary{
			Status:     storage.AuditInspected,
			Issues:     []string{"Website does not use HTTPS", "Slow page load"},
			IssueCodes: []storage.IssueCode{storage.IssueNoHTTPS, storage.IssueSlowLoad},
			Signals:    map[string]any{"has_ssl": false, "load_time_ms": float64(4200)},
			AuditedAt:  time.Date(2026, 3, 1, 9, 1, 0, 0, time.UTC),
		},
	}
	if err := repo.Upsert(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	firstUpdated := first.LastUpdatedAt

	second := &storage.Business{
		ID:           id,
		Name:         "Overwrite Cafe",
		Website:      "https://new.example",
		ReviewCount:  5,
		LeadScore:    score(40),
		DiscoveredAt: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		Audit: &storage.AuditSummary{
			Status:     storage.AuditInspected,
			Issues:     []string{"Missing page title"},
			IssueCodes: []storage.IssueCode{storage.IssueMissingTitle},
			Signals:    map[string]any{"has_title": false},
			AuditedAt:  time.Date(2026, 4, 1, 9, 1, 0, 0, time.UTC),
		},
	}
	if err := repo.Upsert(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.DiscoveredAt.Equal(first.DiscoveredAt) {
		t.Errorf("discovered_at must be preserved: got %v", got.DiscoveredAt)
	}
	if !second.DiscoveredAt.Equal(first.DiscoveredAt) {
		t.Errorf("stored discovered_at should be written back into the record, got %v", second.DiscoveredAt)
	}
	if got.LastUpdatedAt.Before(firstUpdated) {
		t.Errorf("last_updated_at went backwards: %v < %v", got.LastUpdatedAt, firstUpdated)
	}
	if got.Website != "https://new.example" || got.ReviewCount != 5 || got.Rating != nil {
		t.Errorf("expected most recent fields to win, got %+v", got)
	}
	if got.LeadScore == nil || *got.LeadScore != 40 {
		t.Errorf("expected lead score 40, got %v", got.LeadScore)
	}
	if got.Audit == nil || len(got.Audit.IssueCodes) != 1 || got.Audit.IssueCodes[0] != storage.IssueMissingTitle {
		t.Errorf("audit should be replaced wholesale, got %+v", got.Audit)
	}
	if got.Audit != nil && got.Audit.Issues[0] != "Missing page title" {
		t.Errorf("unexpected issues %v", got.Audit.Issues)
	}
}

func testQuery(ctx context.Context, t *testing.T, repo storage.Repository) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	seed := []*storage.Business{
		{Name: "Query Plumbing B", Category: "Plumbers", LeadScore: score(80), DiscoveredAt: base.Add(2 * time.Hour)},
		{Name: "Query Bakery", Category: "Bakeries", LeadScore: score(60), DiscoveredAt: base},
		{Name: "Query Plumbing A", Category: "plumbers", LeadScore: score(80), DiscoveredAt: base.Add(time.Hour)},
		{Name: "Query Unscored", Category: "Plumbers", DiscoveredAt: base},
	}
	for _, b := range seed {
		b.ID = storage.Fingerprint(b.Name, "", "")
		if err := repo.Upsert(ctx, b); err != nil {
			t.Fatalf("upsert %s: %v", b.Name, err)
		}
	}

	names := func(bs []*storage.Business) []string {
		var out []string
		for _, b := range bs {
			if len(b.Name) > 6 && b.Name[:6] == "Query " {
				out = append(out, b.Name)
			}
		}
		return out
	}

	all, err := repo.Query(ctx, storage.Filter{MinScore: 50})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	want := []string{"Query Plumbing A", "Query Plumbing B", "Query Bakery"}
	if got := names(all); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected order %v, got %v", want, got)
	}
	for i := 1; i < len(all); i++ {
		if *all[i].LeadScore > *all[i-1].LeadScore {
			t.Errorf("results not ordered by score descending at %d", i)
		}
	}

	high, err := repo.Query(ctx, storage.Filter{MinScore: 70, Category: "PLUMBERS"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := names(high); fmt.Sprint(got) != fmt.Sprint([]string{"Query Plumbing A", "Query Plumbing B"}) {
		t.Errorf("expected both plumbers, got %v", got)
	}

	limited, err := repo.Query(ctx, storage.Filter{MinScore: 70, Category: "plumbers", Limit: 1})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(limited) != 1 || limited[0].Name != "Query Plumbing A" {
		t.Errorf("expected only the first plumber, got %v", names(limited))
	}

	none, err := repo.Query(ctx, storage.Filter{MinScore: 101})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no results above 100, got %d", len(none))
	}
}

func testDelete(ctx context.Context, t *testing.T, repo storage.Repository) {
	b := &storage.Business{ID: storage.Fingerprint("Delete Me", "", ""), Name: "Delete Me", LeadScore: score(10)}
	if err := repo.Upsert(ctx, b); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Delete(ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, b.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, b.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func testConcurrentUpsert(ctx context.Context, t *testing.T, repo storage.Repository) {
	id := storage.Fingerprint("Concurrent Diner", "9 Ninth St", "")
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- repo.Upsert(ctx, &storage.Business{
				ID:          id,
				Name:        "Concurrent Diner",
				ReviewCount: i,
				LeadScore:   score(50 + i),
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent upsert: %v", err)
		}
	}

	leads, err := repo.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	count := 0
	for _, l := range leads {
		if l.ID == id {
			count++
			if *l.LeadScore != 50+l.ReviewCount {
				t.Errorf("fields from different writes were mixed: score %d, reviews %d", *l.LeadScore, l.ReviewCount)
			}
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one row for the id, got %d", count)
	}
}
