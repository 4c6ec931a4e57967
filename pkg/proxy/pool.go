package proxy

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

type entry struct {
	url           *url.URL
	failures      int
	disabledUntil time.Time
}

// Pool rotates through outbound proxies and benches the ones that keep failing.
type Pool struct {
	mu          sync.Mutex
	entries     []*entry
	cursor      int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// Config defines settings for the Pool.
type Config struct {
	// MaxFailures consecutive failures bench a proxy.
	MaxFailures int
	// Cooldown is how long a benched proxy sits out.
	Cooldown time.Duration
}

// NewPool creates an empty pool. Zero config values get defaults.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         time.Now,
	}
}

// LoadFile adds proxies from a file, one URL per line. Blank lines and
// '#' comments are skipped.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	defer f.Close()

	var raws []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raws = append(raws, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	return p.Add(raws...)
}

// Add parses and appends proxy URLs. A missing scheme defaults to http.
func (p *Pool) Add(raws ...string) error {
	parsed := make([]*entry, 0, len(raws))
	for _, raw := range raws {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: parse %q: %w", raw, err)
		}
		parsed = append(parsed, &entry{url: u})
	}

	p.mu.Lock()
	p.entries = append(p.entries, parsed...)
	p.mu.Unlock()
	return nil
}

// Len reports the number of proxies in the pool, benched or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Next returns the next proxy that is not benched, or nil when none is usable.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.entries {
		e := p.entries[p.cursor]
		p.cursor = (p.cursor + 1) % len(p.entries)

		if !e.disabledUntil.IsZero() && now.Before(e.disabledUntil) {
			continue
		}
		if !e.disabledUntil.IsZero() {
			// Cooldown elapsed; give it a clean slate.
			e.disabledUntil = time.Time{}
			e.failures = 0
		}
		return e.url
	}
	return nil
}

// Report records the outcome of a request made through u. Unknown proxies are
// ignored.
func (p *Pool) Report(u *url.URL, ok bool) {
	if u == nil {
		return
	}
	target := u.String()

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.url.String() != target {
			continue
		}
		if ok {
			e.failures = 0
			return
		}
		e.failures++
		if e.failures >= p.maxFailures {
			e.disabledUntil = p.now().Add(p.cooldown)
		}
		return
	}
}
