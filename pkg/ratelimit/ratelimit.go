package ratelimit

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter spaces requests to the same host by a minimum delay, with optional
// jitter. Callers targeting the same host serialize through that host's limiter;
// different hosts proceed independently. It is safe for concurrent use.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	delay    time.Duration
	jitter   float64 // 0.0 to 1.0
}

// NewHostLimiter creates a limiter enforcing delay between requests per host.
// If delay is <= 0, Wait never blocks.
func NewHostLimiter(delay time.Duration, jitter float64) *HostLimiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		delay:    delay,
		jitter:   jitter,
	}
}

// Unlimited returns a HostLimiter that never blocks, for tests and local tools.
func Unlimited() *HostLimiter {
	return NewHostLimiter(0, 0)
}

// Delay reports the configured minimum spacing between requests to one host.
func (l *HostLimiter) Delay() time.Duration {
	return l.delay
}

func (l *HostLimiter) limiterFor(host string) *rate.Limiter {
	key := strings.ToLower(host)

	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		// Burst of one: the first request goes immediately, every later one
		// reserves the next slot delay after the previous.
		lim = rate.NewLimiter(rate.Every(l.delay), 1)
		l.limiters[key] = lim
	}
	return lim
}

// Wait blocks until a request to host may proceed, or until ctx is done.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil || l.delay <= 0 {
		return ctx.Err()
	}

	if err := l.limiterFor(host).Wait(ctx); err != nil {
		return err
	}

	if l.jitter > 0 {
		// Only positive jitter is applied; the limiter already enforces the floor.
		extra := time.Duration(float64(l.delay) * l.jitter * rand.Float64())
		if extra > 0 {
			select {
			case <-time.After(extra):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Hosts returns the number of hosts the limiter is currently tracking.
func (l *HostLimiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
