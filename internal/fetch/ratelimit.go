package fetch

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimitedReader spaces out reads to the same host.
type RateLimitedReader struct {
	next  Reader
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimitedReader allows rps reads per second per host with the given
// burst. A burst below 1 is raised to 1.
func NewRateLimitedReader(next Reader, rps float64, burst int) *RateLimitedReader {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedReader{
		next:     next,
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Read implements Reader.
func (r *RateLimitedReader) Read(ctx context.Context, rawURL string, loadScripts bool) ([]byte, error) {
	if err := r.wait(ctx, rawURL); err != nil {
		return nil, err
	}
	return r.next.Read(ctx, rawURL, loadScripts)
}

// Probe implements Prober.
func (r *RateLimitedReader) Probe(ctx context.Context, rawURL string) error {
	if err := r.wait(ctx, rawURL); err != nil {
		return err
	}
	return Probe(ctx, r.next, rawURL)
}

func (r *RateLimitedReader) wait(ctx context.Context, rawURL string) error {
	if err := r.limiter(hostOf(rawURL)).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit %s: %w", rawURL, err)
	}
	return nil
}

func (r *RateLimitedReader) limiter(host string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[host]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[host] = l
	}
	return l
}
