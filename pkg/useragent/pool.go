package useragent

import (
	"math/rand/v2"
	"strings"
	"sync/atomic"
)

// Defaults is a small set of current desktop browser User-Agents. Listing sites
// and small-business homepages rarely vary content by browser, so a handful of
// mainstream strings is enough to avoid looking like a script.
var Defaults = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
}

// Pool hands out User-Agent strings. It is safe for concurrent use.
type Pool struct {
	uas  []string
	next atomic.Uint64
}

// NewPool creates a pool from uas, ignoring blank entries. An empty input
// falls back to Defaults.
func NewPool(uas []string) *Pool {
	cleaned := make([]string, 0, len(uas))
	for _, ua := range uas {
		if ua = strings.TrimSpace(ua); ua != "" {
			cleaned = append(cleaned, ua)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, Defaults...)
	}
	return &Pool{uas: cleaned}
}

// Next returns User-Agents round-robin.
func (p *Pool) Next() string {
	idx := p.next.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// Random returns a uniformly chosen User-Agent.
func (p *Pool) Random() string {
	return p.uas[rand.IntN(len(p.uas))]
}

// Len reports how many User-Agents the pool holds.
func (p *Pool) Len() int {
	return len(p.uas)
}
