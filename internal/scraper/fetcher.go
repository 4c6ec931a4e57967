// Package scraper fetches search listing pages and business websites with
// per-host politeness, bounded retries and a typed failure taxonomy.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/leadfinder/internal/bypass"
	"github.com/FranksOps/leadfinder/internal/fingerprint"
	"github.com/FranksOps/leadfinder/internal/metrics"
	"github.com/FranksOps/leadfinder/pkg/httpclient"
	"github.com/FranksOps/leadfinder/pkg/proxy"
	"github.com/FranksOps/leadfinder/pkg/ratelimit"
	"github.com/FranksOps/leadfinder/pkg/useragent"
	"github.com/sethvargo/go-retry"
)

type contextKey string

var browserHeaders = http.Header{
	"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
	"Accept-Language": {"en-US,en;q=0.5"},
}

const proxyKey contextKey = "proxy_url"

// Kind selects the timeout and retry policy for a fetch.
type Kind int

const (
	// KindSearch is a listing page. It must succeed for a job to proceed, so
	// it fails fast and retries a few times.
	KindSearch Kind = iota
	// KindWebsite is a business homepage. Failure is itself a finding.
	KindWebsite
)

func (k Kind) String() string {
	if k == KindSearch {
		return "search"
	}
	return "website"
}

// Policy is the per-kind timeout and retry budget. Timeout bounds a single
// attempt, including reading the body.
type Policy struct {
	Timeout    time.Duration
	MaxRetries int
}

// Config configures a Fetcher. Zero timeouts and sizes get defaults; zero
// MaxRetries means a single attempt.
type Config struct {
	Search  Policy
	Website Policy

	// MaxRedirects bounds redirect chains; 0 means 10, negative disables
	// following redirects.
	MaxRedirects int
	UseCookieJar bool
	// MaxBodyBytes caps how much of a body is kept; the rest is discarded.
	MaxBodyBytes int64

	// BackoffBase is the first retry delay; each retry doubles it up to BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// RespectRobots checks robots.txt before website fetches.
	RespectRobots bool

	Fingerprint fingerprint.Profile
	// InsecureSkipVerify disables certificate checks. Tests only.
	InsecureSkipVerify bool

	UAPool    *useragent.Pool
	ProxyPool *proxy.Pool
	Limiter   *ratelimit.HostLimiter
	Logger    *slog.Logger
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Search:       Policy{Timeout: 10 * time.Second, MaxRetries: 2},
		Website:      Policy{Timeout: 20 * time.Second, MaxRetries: 1},
		MaxRedirects: 10,
		MaxBodyBytes: 5 << 20,
		BackoffBase:  500 * time.Millisecond,
		BackoffMax:   5 * time.Second,
		Fingerprint:  fingerprint.ProfileChrome,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Search.Timeout <= 0 {
		c.Search.Timeout = def.Search.Timeout
	}
	if c.Website.Timeout <= 0 {
		c.Website.Timeout = def.Website.Timeout
	}
	if c.Search.MaxRetries < 0 {
		c.Search.MaxRetries = 0
	}
	if c.Website.MaxRetries < 0 {
		c.Website.MaxRetries = 0
	}
	if c.MaxRedirects == 0 {
		c.MaxRedirects = def.MaxRedirects
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = max(def.BackoffMax, c.BackoffBase)
	}
	if c.Fingerprint == "" {
		c.Fingerprint = def.Fingerprint
	}
	if c.UAPool == nil {
		c.UAPool = useragent.NewPool(nil)
	}
	if c.Limiter == nil {
		c.Limiter = ratelimit.Unlimited()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Document is a successfully fetched response.
type Document struct {
	URL        string
	FinalURL   string // after redirects
	StatusCode int
	Headers    http.Header
	Body       []byte
	// Truncated is set when the body exceeded MaxBodyBytes.
	Truncated bool
	// Duration is the wall time of the successful attempt, limiter wait excluded.
	Duration  time.Duration
	Attempts  int
	FetchedAt time.Time
}

// Fetcher performs GET requests for both fetch kinds. It is safe for
// concurrent use; one Fetcher is shared by every job in the process.
type Fetcher struct {
	cfg     Config
	clients map[Kind]*httpclient.Client
	robots  *RobotsChecker
	logger  *slog.Logger
}

// NewFetcher builds a Fetcher with one HTTP client per kind over a shared
// transport, so connections are pooled across kinds.
func NewFetcher(cfg Config) (*Fetcher, error) {
	cfg.applyDefaults()

	opts := fingerprint.Options{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.ProxyPool != nil {
		// The proxy is chosen per request and carried in the request context.
		opts.Proxy = func(req *http.Request) (*url.URL, error) {
			if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
				return u, nil
			}
			return nil, nil
		}
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, opts)
	if err != nil {
		return nil, fmt.Errorf("scraper: failed to setup transport: %w", err)
	}

	f := &Fetcher{
		cfg:     cfg,
		clients: make(map[Kind]*httpclient.Client, 2),
		logger:  cfg.Logger,
	}
	for kind, policy := range map[Kind]Policy{KindSearch: cfg.Search, KindWebsite: cfg.Website} {
		client, err := httpclient.New(httpclient.Config{
			Timeout:      policy.Timeout,
			MaxRedirects: cfg.MaxRedirects,
			UseCookieJar: cfg.UseCookieJar,
			Headers:      browserHeaders,
			Transport:    transport,
		})
		if err != nil {
			return nil, fmt.Errorf("scraper: failed to create client: %w", err)
		}
		f.clients[kind] = client
	}
	if cfg.RespectRobots {
		f.robots = NewRobotsChecker(f, cfg.Logger)
	}
	return f, nil
}

func (f *Fetcher) policy(kind Kind) Policy {
	if kind == KindSearch {
		return f.cfg.Search
	}
	return f.cfg.Website
}

// Fetch GETs target under kind's policy. On failure the error is always a
// *FetchError; transient failures are retried with exponential backoff and
// the host limiter is waited on before every attempt.
func (f *Fetcher) Fetch(ctx context.Context, target string, kind Kind) (*Document, error) {
	start := time.Now()
	u, err := parseTarget(target)
	if err != nil {
		return nil, f.finish(kind, start, nil, &FetchError{Kind: ErrMalformed, URL: target, Err: err})
	}

	ua := f.cfg.UAPool.Next()

	if kind == KindWebsite && f.robots != nil && !f.robots.Allowed(ctx, u, ua) {
		return nil, f.finish(kind, start, nil, &FetchError{Kind: ErrBlocked, URL: target, Err: ErrRobotsDisallowed})
	}

	policy := f.policy(kind)
	backoff := retry.WithMaxRetries(uint64(policy.MaxRetries),
		retry.WithCappedDuration(f.cfg.BackoffMax, retry.NewExponential(f.cfg.BackoffBase)))

	var (
		doc      *Document
		lastErr  *FetchError
		attempts int
	)
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		d, ferr := f.attempt(ctx, u, kind, ua)
		if ferr == nil {
			doc = d
			return nil
		}
		lastErr = ferr
		if ferr.retryable && ctx.Err() == nil {
			f.logger.Debug("retrying fetch", "url", target, "kind", kind, "attempt", attempts, "err", ferr)
			return retry.RetryableError(ferr)
		}
		return ferr
	})

	if err == nil {
		doc.Attempts = attempts
		return doc, f.finish(kind, start, doc, nil)
	}

	fe, ok := AsFetchError(err)
	if !ok {
		// The backoff wait was cut short by the caller's context.
		fe = &FetchError{Kind: contextKind(err), URL: target, Err: err}
		if lastErr != nil {
			fe.StatusCode = lastErr.StatusCode
		}
	}
	fe.Attempts = attempts
	return nil, f.finish(kind, start, nil, fe)
}

// finish records metrics and returns fe as an error, or nil when fe is nil.
func (f *Fetcher) finish(kind Kind, start time.Time, doc *Document, fe *FetchError) error {
	if fe == nil {
		metrics.RecordFetch(kind.String(), "ok", time.Since(start), len(doc.Body))
		return nil
	}
	metrics.RecordFetch(kind.String(), string(fe.Kind), time.Since(start), 0)
	return fe
}

func parseTarget(target string) (*url.URL, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

// attempt performs one request. The returned error is marked retryable for
// transient failures only.
func (f *Fetcher) attempt(ctx context.Context, u *url.URL, kind Kind, ua string) (*Document, *FetchError) {
	target := u.String()

	if err := f.cfg.Limiter.Wait(ctx, u.Host); err != nil {
		return nil, &FetchError{Kind: contextKind(err), URL: target, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	var activeProxy *url.URL
	if f.cfg.ProxyPool != nil {
		activeProxy = f.cfg.ProxyPool.Next()
	}

	reqCtx := ctx
	if activeProxy != nil {
		reqCtx = context.WithValue(ctx, proxyKey, activeProxy)
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{Kind: ErrMalformed, URL: target, Err: err}
	}
	req.Header.Set("User-Agent", ua)

	start := time.Now()
	resp, err := f.clients[kind].Do(reqCtx, req)
	if err != nil {
		if activeProxy != nil {
			f.cfg.ProxyPool.Report(activeProxy, false)
			metrics.ProxyFailures.WithLabelValues(activeProxy.Redacted()).Inc()
		}
		return nil, classifyTransport(ctx, target, err)
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		f.cfg.ProxyPool.Report(activeProxy, true)
	}

	body, truncated, err := httpclient.ReadBody(resp.Body, f.cfg.MaxBodyBytes)
	if err != nil {
		fe := classifyTransport(ctx, target, err)
		if fe.Kind == ErrUnreachable {
			// The server answered but the body is broken.
			fe.Kind, fe.retryable = ErrMalformed, false
		}
		fe.StatusCode = resp.StatusCode
		return nil, fe
	}
	elapsed := time.Since(start)

	if det, blocked := bypass.Analyze(&bypass.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, bypass.DefaultDetectors()); blocked {
		return nil, &FetchError{
			Kind:       ErrBlocked,
			URL:        target,
			StatusCode: resp.StatusCode,
			Source:     det.Source,
			Err:        fmt.Errorf("%w: %s (%s)", ErrChallenged, det.Source, det.Reason),
		}
	}

	if fe := classifyStatus(target, resp.StatusCode); fe != nil {
		return nil, fe
	}

	return &Document{
		URL:        target,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		Truncated:  truncated,
		Duration:   elapsed,
		FetchedAt:  start.UTC(),
	}, nil
}

func classifyStatus(target string, status int) *FetchError {
	switch {
	case status == http.StatusTooManyRequests:
		return &FetchError{Kind: ErrBlocked, URL: target, StatusCode: status, Err: ErrStatus}
	case status >= 500:
		return &FetchError{Kind: ErrUnreachable, URL: target, StatusCode: status, Err: ErrStatus, retryable: true}
	case status >= 400:
		return &FetchError{Kind: ErrMalformed, URL: target, StatusCode: status, Err: ErrStatus}
	}
	return nil
}

// classifyTransport maps a client error to a FetchError. ctx is the caller's
// context: its cancellation is final, while a per-attempt timeout is retried.
func classifyTransport(ctx context.Context, target string, err error) *FetchError {
	fe := &FetchError{URL: target, Err: err}

	if errors.Is(err, httpclient.ErrRedirectLimit) {
		fe.Kind = ErrMalformed
		return fe
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		fe.Kind = contextKind(ctxErr)
		return fe
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		fe.Kind = ErrTimeout
		fe.retryable = true
		return fe
	}

	fe.Kind = ErrUnreachable
	fe.retryable = true
	return fe
}
