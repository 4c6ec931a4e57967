// Package httpclient builds the outbound HTTP clients used for scraping and
// for talking to a leadfinder server.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// ErrRedirectLimit is returned (wrapped) when a response chain exceeds the
// configured redirect budget. Redirect loops surface as this error.
var ErrRedirectLimit = errors.New("redirect limit exceeded")

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout time.Duration
	// MaxRedirects bounds redirect chains; negative returns the first
	// redirect response as is.
	MaxRedirects int
	UseCookieJar bool
	// Headers are set on every request that does not carry them already.
	Headers http.Header
	// Transport overrides the default, e.g. for proxies or uTLS fingerprints.
	Transport http.RoundTripper
}

// Client is an http.Client with a redirect budget and default headers.
type Client struct {
	hc      *http.Client
	headers http.Header
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	hc := &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport}

	limit := cfg.MaxRedirects
	hc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if limit < 0 {
			return http.ErrUseLastResponse
		}
		if len(via) > limit {
			return fmt.Errorf("httpclient: stopped after %d redirects: %w", limit, ErrRedirectLimit)
		}
		return nil
	}

	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("httpclient: %w", err)
		}
		hc.Jar = jar
	}

	return &Client{hc: hc, headers: cfg.Headers.Clone()}, nil
}

// Do sends req bound to ctx, which controls cancellation independently of
// the client timeout. The caller's request is not modified.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("httpclient: context cannot be nil")
	}

	out := req.Clone(ctx)
	for k, v := range c.headers {
		if out.Header.Get(k) == "" {
			out.Header[k] = v
		}
	}

	resp, err := c.hc.Do(out)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	return resp, nil
}

// ReadBody reads at most limit bytes from r and reports whether more was
// available. A non-positive limit reads everything.
func ReadBody(r io.Reader, limit int64) ([]byte, bool, error) {
	if limit <= 0 {
		b, err := io.ReadAll(r)
		return b, false, err
	}
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return b, false, err
	}
	if int64(len(b)) > limit {
		return b[:limit], true, nil
	}
	return b, false, nil
}
