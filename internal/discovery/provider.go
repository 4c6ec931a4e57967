package discovery

import (
	"context"

	"github.com/FranksOps/leadfinder/internal/scraper"
)

// Listing is one raw search result before normalization.
type Listing struct {
	// SourceID is the listing site's own id, when it exposes one.
	SourceID    string
	Name        string
	Category    string
	Address     string
	Phone       string
	Website     string
	Rating      *float64
	ReviewCount int
}

// Page is one page of search results.
type Page struct {
	Listings []Listing
	HasNext  bool
}

// Provider searches a business listing source. Pages are numbered from 1.
type Provider interface {
	Search(ctx context.Context, q Query, page int) (Page, error)
}

// Fetcher is the subset of *scraper.Fetcher providers need.
type Fetcher interface {
	Fetch(ctx context.Context, target string, kind scraper.Kind) (*scraper.Document, error)
}
