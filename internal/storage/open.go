package storage

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// OpenFunc opens a Repository for a DSN of a registered scheme.
type OpenFunc func(ctx context.Context, dsn string) (Repository, error)

var (
	openersMu sync.RWMutex
	openers   = map[string]OpenFunc{}
)

// Register makes a backend available to Open under the given DSN schemes.
// Backends call it from init.
func Register(open OpenFunc, schemes ...string) {
	openersMu.Lock()
	defer openersMu.Unlock()
	for _, s := range schemes {
		openers[strings.ToLower(s)] = open
	}
}

// Open picks a backend by the DSN scheme ("postgres://", "sqlite://", "file:").
func Open(ctx context.Context, dsn string) (Repository, error) {
	scheme := Scheme(dsn)
	openersMu.RLock()
	open, ok := openers[scheme]
	openersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: no backend for scheme %q (registered: %s)", scheme, strings.Join(Schemes(), ", "))
	}
	return open(ctx, dsn)
}

// Scheme returns the lower-cased scheme of dsn, or "" when it has none.
func Scheme(dsn string) string {
	u, err := url.Parse(strings.TrimSpace(dsn))
	if err != nil {
		if i := strings.Index(dsn, ":"); i > 0 {
			return strings.ToLower(dsn[:i])
		}
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// Schemes lists the registered DSN schemes.
func Schemes() []string {
	openersMu.RLock()
	defer openersMu.RUnlock()
	out := make([]string, 0, len(openers))
	for s := range openers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
