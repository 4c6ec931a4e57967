// Package discovery turns a free-text query into a deduplicated, bounded set
// of normalized business records by paging through a listing provider.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/leadfinder/internal/apperr"
	"github.com/FranksOps/leadfinder/internal/storage"
	"github.com/FranksOps/leadfinder/pkg/normalize"
)

// PartialError reports that paging stopped early. The businesses collected
// before the failing page are still returned alongside it.
type PartialError struct {
	Page int
	Err  error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("discovery: stopped at page %d: %v", e.Page, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}

// Config tunes a Discoverer.
type Config struct {
	// MaxPages bounds how many result pages one query may read.
	MaxPages int
	// Region interprets phone numbers without a country code.
	Region string
	Logger *slog.Logger
}

// Discoverer pages through a Provider until it has enough unique businesses.
type Discoverer struct {
	provider Provider
	maxPages int
	region   string
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Discoverer over provider.
func New(provider Provider, cfg Config) *Discoverer {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	if cfg.Region == "" {
		cfg.Region = normalize.DefaultRegion
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Discoverer{
		provider: provider,
		maxPages: cfg.MaxPages,
		region:   cfg.Region,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// Discover returns up to maxResults unique businesses for query. A failure
// reading the first page is a Discovery error and nothing is returned; a
// failure on a later page returns what was collected together with a
// *PartialError. Fewer results than asked for is not an error.
func (d *Discoverer) Discover(ctx context.Context, query string, maxResults int) ([]*storage.Business, error) {
	q, err := ParseQuery(query)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid query", err).WithOp("discover")
	}
	if maxResults <= 0 {
		return nil, apperr.Validation("max_results must be positive").WithOp("discover")
	}

	seen := make(map[string]bool)
	var out []*storage.Business

	for page := 1; page <= d.maxPages && len(out) < maxResults; page++ {
		res, err := d.provider.Search(ctx, q, page)
		if err != nil {
			if page == 1 {
				return nil, apperr.Wrap(apperr.KindDiscovery, "search surface unreachable", err).WithOp("discover")
			}
			d.logger.Warn("discovery stopped early", "query", q.String(), "page", page, "collected", len(out), "err", err)
			return out, &PartialError{Page: page, Err: err}
		}

		for _, l := range res.Listings {
			b := d.toBusiness(l)
			if b == nil || seen[b.ID] {
				continue
			}
			seen[b.ID] = true
			out = append(out, b)
			if len(out) == maxResults {
				break
			}
		}

		if !res.HasNext {
			break
		}
	}

	d.logger.Info("discovery finished", "query", q.String(), "found", len(out), "max_results", maxResults)
	return out, nil
}

func (d *Discoverer) toBusiness(l Listing) *storage.Business {
	name := normalize.Text(l.Name)
	if name == "" {
		return nil
	}
	address := normalize.Address(l.Address)

	b := &storage.Business{
		ID:           storage.Fingerprint(name, address, l.SourceID),
		Name:         name,
		Category:     normalize.Text(l.Category),
		Address:      address,
		Phone:        normalize.Phone(l.Phone, d.region),
		Website:      normalize.URL(l.Website),
		ReviewCount:  max(l.ReviewCount, 0),
		DiscoveredAt: d.now().UTC(),
	}
	if l.Rating != nil && *l.Rating >= 0 && *l.Rating <= 5 {
		r := *l.Rating
		b.Rating = &r
	}
	return b
}
