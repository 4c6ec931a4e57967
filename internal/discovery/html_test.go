package discovery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/leadfinder/internal/fingerprint"
	"github.com/FranksOps/leadfinder/internal/logger"
	"github.com/FranksOps/leadfinder/internal/scraper"
)

const resultsPage = `<html><body>
<div class="search-results">
  <div class="result" data-ypid="101">
    <a class="business-name" href="/biz/joes">Joe's   Coffee</a>
    <div class="categories"><a>Coffee Shops</a><a>Cafes</a></div>
    <div class="street-address">123  main st</div>
    <div class="locality">seattle, WA 98101</div>
    <div class="phones">(206) 624-6000</div>
    <a class="track-visit-website" href="http://JoesCoffee.example/?utm_source=yp">Website</a>
    <div class="ratings" data-rating="4.5"><span class="count">(1,234)</span></div>
  </div>
  <div class="result" data-ypid="102">
    <a class="business-name">Bean There</a>
    <div class="street-address">9 Pine St</div>
    <div class="ratings" data-rating="not-a-number"></div>
  </div>
  <div class="result"><span>advertisement without a name</span></div>
</div>
<a class="next" href="?page=2">Next</a>
</body></html>`

type fakeFetcher struct {
	pages   map[string]string
	err     error
	targets []string
}

func (f *fakeFetcher) Fetch(_ context.Context, target string, kind scraper.Kind) (*scraper.Document, error) {
	f.targets = append(f.targets, target)
	if kind != scraper.KindSearch {
		return nil, errors.New("listing pages must use the search policy")
	}
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.pages[target]
	if !ok {
		return nil, &scraper.FetchError{Kind: scraper.ErrMalformed, URL: target, StatusCode: 404}
	}
	return &scraper.Document{URL: target, FinalURL: target, StatusCode: 200, Body: []byte(body)}, nil
}

const template = "https://listings.example/search?q={terms}&loc={location}&page={page}"

func TestHTMLProvider_Search(t *testing.T) {
	page1 := "https://listings.example/search?q=coffee+shops&loc=Seattle%2C+WA&page=1"
	f := &fakeFetcher{pages: map[string]string{page1: resultsPage}}
	p, err := NewHTMLProvider(f, template, DefaultSelectors(), logger.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := p.Search(context.Background(), Query{Terms: "coffee shops", Location: "Seattle, WA"}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.targets) != 1 || f.targets[0] != page1 {
		t.Fatalf("unexpected fetch targets %v", f.targets)
	}
	if !res.HasNext {
		t.Errorf("expected HasNext")
	}
	if len(res.Listings) != 2 {
		t.Fatalf("expected 2 listings (nameless skipped), got %d", len(res.Listings))
	}

	joe := res.Listings[0]
	if joe.Name != "Joe's Coffee" || joe.Category != "Coffee Shops" || joe.SourceID != "101" {
		t.Errorf("unexpected listing %+v", joe)
	}
	if joe.Address != "123 main st, seattle, WA 98101" {
		t.Errorf("unexpected raw address %q", joe.Address)
	}
	if joe.Phone != "(206) 624-6000" || joe.Website != "http://JoesCoffee.example/?utm_source=yp" {
		t.Errorf("unexpected contact fields %+v", joe)
	}
	if joe.Rating == nil || *joe.Rating != 4.5 || joe.ReviewCount != 1234 {
		t.Errorf("unexpected reputation %v / %d", joe.Rating, joe.ReviewCount)
	}

	bean := res.Listings[1]
	if bean.Rating != nil || bean.ReviewCount != 0 || bean.Website != "" {
		t.Errorf("expected missing reputation and website for %+v", bean)
	}
}

func TestHTMLProvider_FetchErrorPassesThrough(t *testing.T) {
	want := &scraper.FetchError{Kind: scraper.ErrBlocked, URL: "x"}
	p, _ := NewHTMLProvider(&fakeFetcher{err: want}, template, DefaultSelectors(), nil)

	_, err := p.Search(context.Background(), Query{Terms: "plumbers"}, 1)
	if fe, ok := scraper.AsFetchError(err); !ok || fe.Kind != scraper.ErrBlocked {
		t.Errorf("expected the fetch error to pass through, got %v", err)
	}
}

func TestNewHTMLProvider_Validation(t *testing.T) {
	if _, err := NewHTMLProvider(&fakeFetcher{}, "https://listings.example/search", DefaultSelectors(), nil); err == nil {
		t.Errorf("expected error for template without {terms}")
	}
	if _, err := NewHTMLProvider(&fakeFetcher{}, template, Selectors{}, nil); err == nil {
		t.Errorf("expected error for empty selectors")
	}
}

func TestHTMLProvider_WithFetcher(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "plumbers" || r.URL.Query().Get("page") != "1" {
			http.NotFound(w, r)
			return
		}
		// Relative website links resolve against the results page.
		_, _ = w.Write([]byte(strings.Replace(resultsPage,
			`href="http://JoesCoffee.example/?utm_source=yp"`, `href="/out/joes"`, 1)))
	}))
	defer ts.Close()

	fetcher, err := scraper.NewFetcher(scraper.Config{
		Search:      scraper.Policy{Timeout: 2 * time.Second},
		Fingerprint: fingerprint.ProfileGo,
	})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	p, err := NewHTMLProvider(fetcher, ts.URL+"/search?q={terms}&page={page}", DefaultSelectors(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := p.Search(context.Background(), Query{Terms: "plumbers"}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(res.Listings))
	}
	if got := res.Listings[0].Website; got != ts.URL+"/out/joes" {
		t.Errorf("expected resolved website link, got %q", got)
	}
}

func TestParseHelpers(t *testing.T) {
	ratings := map[string]float64{"4.5": 4.5, "3 stars": 3, "5": 5}
	for in, want := range ratings {
		if got := parseRating(in); got == nil || *got != want {
			t.Errorf("parseRating(%q) = %v, want %v", in, got, want)
		}
	}
	for _, in := range []string{"", "7.5", "n/a"} {
		if got := parseRating(in); got != nil {
			t.Errorf("parseRating(%q) = %v, want nil", in, *got)
		}
	}
	if got := parseCount("(1,234 reviews)"); got != 1234 {
		t.Errorf("parseCount = %d", got)
	}
}
