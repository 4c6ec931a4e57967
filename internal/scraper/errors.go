package scraper

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why a fetch failed. Callers branch on it; the audit
// turns each kind into a different issue.
type ErrorKind string

const (
	// ErrUnreachable covers DNS, connection and exhausted 5xx failures.
	ErrUnreachable ErrorKind = "unreachable"
	// ErrTimeout means the per-kind deadline elapsed.
	ErrTimeout ErrorKind = "timeout"
	// ErrBlocked means an anti-bot page, a 429 or a robots.txt rule stopped us.
	ErrBlocked ErrorKind = "blocked"
	// ErrMalformed covers other 4xx, redirect loops and unreadable bodies.
	ErrMalformed ErrorKind = "malformed"
)

var (
	// ErrRobotsDisallowed is wrapped by Blocked errors caused by robots.txt.
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
	// ErrChallenged is wrapped by Blocked errors caused by an anti-bot page.
	ErrChallenged = errors.New("bot challenge detected")
	// ErrStatus is wrapped by errors derived from the response status alone.
	ErrStatus = errors.New("unexpected status")
)

// FetchError is the only error type Fetch returns.
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Attempts   int
	// Source names the protection that blocked the request, when known.
	Source string
	Err    error

	retryable bool
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("scraper: fetch %s: %s", e.URL, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AsFetchError returns the *FetchError in err's chain, if any.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	ok := errors.As(err, &fe)
	return fe, ok
}

// contextKind maps a context error to the failure it represents.
func contextKind(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrUnreachable
}
