package discovery

import (
	"errors"
	"strings"

	"github.com/FranksOps/leadfinder/pkg/normalize"
)

// Query is a free-text search split into what is sought and where.
type Query struct {
	Terms    string
	Location string
}

func (q Query) String() string {
	if q.Location == "" {
		return q.Terms
	}
	return q.Terms + " in " + q.Location
}

// ErrEmptyQuery is returned by ParseQuery when no search terms remain.
var ErrEmptyQuery = errors.New("discovery: query has no search terms")

// ParseQuery splits raw on its last " in ", case-insensitively:
// "coffee shops in Seattle" is terms "coffee shops", location "Seattle".
// Without a separator the whole text is the terms.
func ParseQuery(raw string) (Query, error) {
	text := normalize.Text(raw)
	q := Query{Terms: text}

	// Pad so a query that starts with "in " splits to empty terms.
	padded := " " + text
	if i := strings.LastIndex(strings.ToLower(padded), " in "); i >= 0 {
		q = Query{
			Terms:    strings.TrimSpace(padded[:i]),
			Location: strings.TrimSpace(padded[i+len(" in "):]),
		}
	}
	if q.Terms == "" {
		return Query{}, ErrEmptyQuery
	}
	return q, nil
}
