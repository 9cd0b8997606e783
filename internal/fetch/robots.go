package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const (
	defaultRobotsCacheTTL = 24 * time.Hour
	robotsTxtPath         = "/robots.txt"
)

// RobotsReader refuses URLs that the host's robots.txt disallows for the
// configured user agent. robots.txt itself is read through the wrapped reader.
// A missing or unreadable robots.txt allows everything.
type RobotsReader struct {
	next      Reader
	userAgent string
	cacheTTL  time.Duration

	mu    sync.RWMutex
	hosts map[string]*robotsEntry
}

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// NewRobotsReader wraps next with robots.txt enforcement.
func NewRobotsReader(next Reader, userAgent string, cacheTTL time.Duration) *RobotsReader {
	if cacheTTL <= 0 {
		cacheTTL = defaultRobotsCacheTTL
	}
	return &RobotsReader{
		next:      next,
		userAgent: userAgent,
		cacheTTL:  cacheTTL,
		hosts:     make(map[string]*robotsEntry),
	}
}

// Read implements Reader.
func (r *RobotsReader) Read(ctx context.Context, rawURL string, loadScripts bool) ([]byte, error) {
	allowed, err := r.IsAllowed(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
	}
	return r.next.Read(ctx, rawURL, loadScripts)
}

// Probe implements Prober. Disallowed URLs still count as reachable.
func (r *RobotsReader) Probe(ctx context.Context, rawURL string) error {
	return Probe(ctx, r.next, rawURL)
}

// IsAllowed reports whether rawURL may be fetched.
func (r *RobotsReader) IsAllowed(ctx context.Context, rawURL string) (bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("robots: parse url: %w", err)
	}

	host := strings.ToLower(parsed.Host)
	if host == "" {
		return false, fmt.Errorf("robots: empty host in url %q", rawURL)
	}

	entry := r.entry(ctx, parsed.Scheme, host)
	if entry.data == nil {
		return true, nil
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	return entry.data.TestAgent(path, r.userAgent), nil
}

func (r *RobotsReader) entry(ctx context.Context, scheme, host string) *robotsEntry {
	r.mu.RLock()
	entry, ok := r.hosts[host]
	r.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) <= r.cacheTTL {
		return entry
	}

	if scheme == "" {
		scheme = "https"
	}

	entry = &robotsEntry{fetchedAt: time.Now()}
	if body, err := r.next.Read(ctx, scheme+"://"+host+robotsTxtPath, false); err == nil {
		if data, parseErr := robotstxt.FromBytes(body); parseErr == nil {
			entry.data = data
		}
	}

	r.mu.Lock()
	r.hosts[host] = entry
	r.mu.Unlock()

	return entry
}
