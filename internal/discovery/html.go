package discovery

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/FranksOps/leadfinder/internal/scraper"
	"github.com/PuerkitoBio/goquery"
)

// Selectors locate listing fields in a search results page. Field
// selectors are relative to Result.
type Selectors struct {
	Result   string
	Name     string
	Category string
	Street   string
	Locality string
	Phone    string
	Website  string
	// Rating is read from RatingAttr when set, else from the element text.
	Rating     string
	RatingAttr string
	Reviews    string
	// SourceIDAttr is an attribute of the Result element.
	SourceIDAttr string
	// Next matches anywhere in the page when another page exists.
	Next string
}

// DefaultSelectors match the common directory markup the default search
// template points at.
func DefaultSelectors() Selectors {
	return Selectors{
		Result:       "div.result",
		Name:         "a.business-name",
		Category:     "div.categories a",
		Street:       "div.street-address",
		Locality:     "div.locality",
		Phone:        "div.phones",
		Website:      "a.track-visit-website",
		Rating:       "div.ratings",
		RatingAttr:   "data-rating",
		Reviews:      "span.count",
		SourceIDAttr: "data-ypid",
		Next:         "a.next",
	}
}

// HTMLProvider scrapes a listing site through a URL template with
// {terms}, {location} and {page} placeholders.
type HTMLProvider struct {
	fetcher   Fetcher
	template  string
	selectors Selectors
	logger    *slog.Logger
}

// NewHTMLProvider validates the template and returns a provider.
func NewHTMLProvider(fetcher Fetcher, template string, selectors Selectors, logger *slog.Logger) (*HTMLProvider, error) {
	if !strings.Contains(template, "{terms}") {
		return nil, fmt.Errorf("discovery: search template %q has no {terms} placeholder", template)
	}
	if _, err := url.Parse(expand(template, Query{Terms: "x"}, 1)); err != nil {
		return nil, fmt.Errorf("discovery: search template: %w", err)
	}
	if selectors.Result == "" || selectors.Name == "" {
		return nil, fmt.Errorf("discovery: result and name selectors are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTMLProvider{fetcher: fetcher, template: template, selectors: selectors, logger: logger}, nil
}

func expand(template string, q Query, page int) string {
	return strings.NewReplacer(
		"{terms}", url.QueryEscape(q.Terms),
		"{location}", url.QueryEscape(q.Location),
		"{page}", strconv.Itoa(page),
	).Replace(template)
}

// Search fetches and parses one results page.
func (p *HTMLProvider) Search(ctx context.Context, q Query, page int) (Page, error) {
	target := expand(p.template, q, page)
	doc, err := p.fetcher.Fetch(ctx, target, scraper.KindSearch)
	if err != nil {
		return Page{}, err
	}

	parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return Page{}, fmt.Errorf("discovery: parse %s: %w", target, err)
	}

	base, _ := url.Parse(doc.FinalURL)
	s := p.selectors
	var out Page
	parsed.Find(s.Result).Each(func(_ int, sel *goquery.Selection) {
		l := Listing{
			Name:     text(sel.Find(s.Name).First()),
			Category: text(sel.Find(s.Category).First()),
			Phone:    text(sel.Find(s.Phone).First()),
		}
		if l.Name == "" {
			return
		}
		if s.SourceIDAttr != "" {
			l.SourceID = strings.TrimSpace(sel.AttrOr(s.SourceIDAttr, ""))
		}

		var addr []string
		for _, part := range []string{text(sel.Find(s.Street).First()), text(sel.Find(s.Locality).First())} {
			if part != "" {
				addr = append(addr, part)
			}
		}
		l.Address = strings.Join(addr, ", ")

		if href, ok := sel.Find(s.Website).First().Attr("href"); ok {
			l.Website = resolve(base, href)
		}

		ratingSel := sel.Find(s.Rating).First()
		raw := text(ratingSel)
		if s.RatingAttr != "" {
			if v, ok := ratingSel.Attr(s.RatingAttr); ok {
				raw = v
			}
		}
		l.Rating = parseRating(raw)
		l.ReviewCount = parseCount(text(sel.Find(s.Reviews).First()))

		out.Listings = append(out.Listings, l)
	})
	out.HasNext = s.Next != "" && parsed.Find(s.Next).Length() > 0

	p.logger.Debug("parsed results page", "url", target, "page", page, "listings", len(out.Listings), "has_next", out.HasNext)
	return out, nil
}

func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// parseRating reads the first number in s; values outside [0,5] are dropped.
func parseRating(s string) *float64 {
	s = strings.TrimSpace(s)
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) && r != '.' })
	if end >= 0 {
		s = s[:end]
	}
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 5 {
		return nil
	}
	return &v
}

// parseCount reads the digits of s: "(1,234 reviews)" is 1234.
func parseCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' && n < 1e9 {
			n = n*10 + int(r-'0')
		}
	}
	return n
}
