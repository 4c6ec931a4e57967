package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/leadfinder/internal/apperr"
	"github.com/FranksOps/leadfinder/internal/storage"
	"github.com/FranksOps/leadfinder/internal/storage/sqlite"
)

type fakeRepo struct {
	businesses []*storage.Business
	err        error
	filter     storage.Filter
}

func (f *fakeRepo) Query(_ context.Context, filter storage.Filter) ([]*storage.Business, error) {
	f.filter = filter
	return f.businesses, f.err
}

func leads() []*storage.Business {
	rating := 4.5
	score := 85
	low := 40
	return []*storage.Business{
		{
			ID: "a1", Name: "Joe's Pizza, Inc.", Category: "Pizza", Address: "1 Main St, Seattle, WA",
			Phone: "12066246000", Website: "https://joes.example", Rating: &rating, ReviewCount: 42,
			LeadScore: &score, DiscoveredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{ID: "b2", Name: "Quiet Cafe", LeadScore: &low},
	}
}

func TestWrite_CSV(t *testing.T) {
	repo := &fakeRepo{businesses: leads()}
	var buf bytes.Buffer

	n, err := Write(context.Background(), repo, storage.Filter{MinScore: 30, Category: "pizza"}, FormatCSV, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 records, got %d", n)
	}
	if repo.filter.MinScore != 30 || repo.filter.Category != "pizza" {
		t.Errorf("filter not passed through: %+v", repo.filter)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	want := [][]string{
		Header,
		{"a1", "Joe's Pizza, Inc.", "Pizza", "1 Main St, Seattle, WA", "12066246000", "https://joes.example", "4.5", "42", "85"},
		{"b2", "Quiet Cafe", "", "", "", "", "", "0", "40"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("unexpected rows\n got: %q\nwant: %q", rows, want)
	}
}

func TestWrite_CSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Write(context.Background(), &fakeRepo{}, storage.Filter{}, FormatCSV, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := buf.String(); got != "id,name,category,address,phone,website,rating,review_count,lead_score\n" {
		t.Errorf("expected header only, got %q", got)
	}
}

func TestWrite_NDJSON(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Write(context.Background(), &fakeRepo{businesses: leads()}, storage.Filter{}, FormatJSON, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var ids []string
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var b storage.Business
		if err := json.Unmarshal(scanner.Bytes(), &b); err != nil {
			t.Fatalf("line %q is not a JSON object: %v", scanner.Text(), err)
		}
		ids = append(ids, b.ID)
	}
	if !reflect.DeepEqual(ids, []string{"a1", "b2"}) {
		t.Errorf("expected ids in query order, got %v", ids)
	}
}

func TestWrite_QueryError(t *testing.T) {
	repo := &fakeRepo{err: errors.New("db down")}
	_, err := Write(context.Background(), repo, storage.Filter{}, FormatCSV, &bytes.Buffer{})
	if !apperr.Is(err, apperr.KindPersistence) {
		t.Errorf("expected persistence error, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatCSV, false},
		{"CSV", FormatCSV, false},
		{"json", FormatJSON, false},
		{"ndjson", FormatJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if tt.wantErr && !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("expected validation error for %q", tt.in)
		}
	}
	if FormatJSON.ContentType() != "application/x-ndjson" || FormatCSV.Filename() != "leads.csv" {
		t.Errorf("unexpected format metadata")
	}
}

func seedSQLite(t *testing.T) storage.Repository {
	t.Helper()
	ctx := context.Background()
	repo, err := sqlite.New(ctx, "file:export_"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	seeds := []struct {
		name     string
		category string
		score    *int
	}{
		{"Drip Drop", "Coffee Shops", intPtr(59)},
		{"Rosewood Coffee", "Coffee Shops", intPtr(80)},
		{"Unaudited Bakery", "Bakeries", nil},
		{"Fern Bakery", "Bakeries", intPtr(90)},
		{"Pike Roasters", "Coffee Shops", intPtr(60)},
		{"Polished Espresso", "Coffee Shops", intPtr(20)},
		{"Second Cup", "coffee shops", intPtr(80)},
	}
	for i, s := range seeds {
		b := &storage.Business{
			ID:           storage.Fingerprint(s.name, "Seattle, WA", ""),
			Name:         s.name,
			Category:     s.category,
			Address:      "Seattle, WA",
			LeadScore:    s.score,
			DiscoveredAt: time.Date(2026, 4, 1, 0, 0, i, 0, time.UTC),
		}
		if err := repo.Upsert(ctx, b); err != nil {
			t.Fatalf("seed %s: %v", s.name, err)
		}
	}
	return repo
}

func intPtr(v int) *int { return &v }

func TestWrite_MatchesRepositoryQuery(t *testing.T) {
	ctx := context.Background()
	repo := seedSQLite(t)
	id := func(name string) string { return storage.Fingerprint(name, "Seattle, WA", "") }

	tests := []struct {
		name   string
		filter storage.Filter
		want   []string
	}{
		{
			name:   "min score",
			filter: storage.Filter{MinScore: 60},
			want:   []string{id("Fern Bakery"), id("Rosewood Coffee"), id("Second Cup"), id("Pike Roasters")},
		},
		{
			name:   "category and limit",
			filter: storage.Filter{MinScore: 60, Category: "COFFEE SHOPS", Limit: 2},
			want:   []string{id("Rosewood Coffee"), id("Second Cup")},
		},
		{
			name:   "everything scored",
			filter: storage.Filter{},
			want: []string{
				id("Fern Bakery"), id("Rosewood Coffee"), id("Second Cup"),
				id("Pike Roasters"), id("Drip Drop"), id("Polished Espresso"),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queried, err := repo.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("query failed: %v", err)
			}
			var fromQuery []string
			for _, b := range queried {
				fromQuery = append(fromQuery, b.ID)
			}
			if !reflect.DeepEqual(fromQuery, tt.want) {
				t.Fatalf("query returned %v, want %v", fromQuery, tt.want)
			}

			var csvBuf bytes.Buffer
			n, err := Write(ctx, repo, tt.filter, FormatCSV, &csvBuf)
			if err != nil {
				t.Fatalf("csv export failed: %v", err)
			}
			rows, err := csv.NewReader(&csvBuf).ReadAll()
			if err != nil {
				t.Fatalf("output is not valid CSV: %v", err)
			}
			var fromCSV []string
			for i, row := range rows[1:] {
				fromCSV = append(fromCSV, row[0])
				if want := *queried[i].LeadScore; row[8] != strconv.Itoa(want) {
					t.Errorf("row %d: lead_score %q, want %d", i, row[8], want)
				}
			}
			if n != len(tt.want) || !reflect.DeepEqual(fromCSV, tt.want) {
				t.Errorf("csv export (%d) = %v, want %v", n, fromCSV, tt.want)
			}

			var jsonBuf bytes.Buffer
			if _, err := Write(ctx, repo, tt.filter, FormatJSON, &jsonBuf); err != nil {
				t.Fatalf("json export failed: %v", err)
			}
			var fromJSON []string
			sc := bufio.NewScanner(&jsonBuf)
			for sc.Scan() {
				var b storage.Business
				if err := json.Unmarshal(sc.Bytes(), &b); err != nil {
					t.Fatalf("invalid json line %q: %v", sc.Text(), err)
				}
				fromJSON = append(fromJSON, b.ID)
			}
			if !reflect.DeepEqual(fromJSON, tt.want) {
				t.Errorf("json export = %v, want %v", fromJSON, tt.want)
			}
		})
	}
}
