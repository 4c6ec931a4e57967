package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsChecker fetches and caches robots.txt per scheme and host.
type RobotsChecker struct {
	fetcher *Fetcher
	logger  *slog.Logger
	mu      sync.RWMutex
	cache   map[string]*robotstxt.RobotsData
}

// NewRobotsChecker creates a checker that fetches through fetcher.
func NewRobotsChecker(fetcher *Fetcher, logger *slog.Logger) *RobotsChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsChecker{
		fetcher: fetcher,
		logger:  logger,
		cache:   make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether userAgent may fetch u. A missing or unreadable
// robots.txt allows everything.
func (r *RobotsChecker) Allowed(ctx context.Context, u *url.URL, userAgent string) bool {
	data := r.getOrFetch(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.FindGroup(userAgent).Test(path)
}

func (r *RobotsChecker) getOrFetch(ctx context.Context, origin string) *robotstxt.RobotsData {
	r.mu.RLock()
	data, exists := r.cache[origin]
	r.mu.RUnlock()
	if exists {
		return data
	}

	// Fetched outside the lock; two workers racing on a cold host both
	// fetch, and the second write wins with identical content.
	data = r.fetch(ctx, origin)
	if ctx.Err() != nil {
		return data
	}

	r.mu.Lock()
	r.cache[origin] = data
	r.mu.Unlock()
	return data
}

func (r *RobotsChecker) fetch(ctx context.Context, origin string) *robotstxt.RobotsData {
	robotsURL, err := url.Parse(origin + "/robots.txt")
	if err != nil {
		return nil
	}

	doc, ferr := r.fetcher.attempt(ctx, robotsURL, KindWebsite, r.fetcher.cfg.UAPool.Next())
	if ferr != nil {
		r.logger.Debug("robots.txt unavailable, defaulting to allow", "origin", origin, "err", ferr)
		return nil
	}

	parsed, err := robotstxt.FromBytes(doc.Body)
	if err != nil {
		r.logger.Debug("robots.txt unparseable, defaulting to allow", "origin", origin, "err", err)
		return nil
	}
	return parsed
}

// Cached reports how many origins have a cached robots.txt decision.
func (r *RobotsChecker) Cached() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
