package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// ErrHostUnavailable is returned while a host's circuit is open.
var ErrHostUnavailable = errors.New("fetch: host unavailable")

// BreakerState is the state of one host's circuit.
type BreakerState int

const (
	// BreakerClosed lets reads through.
	BreakerClosed BreakerState = iota
	// BreakerOpen refuses reads until the cooldown has passed.
	BreakerOpen
	// BreakerHalfOpen lets reads through; one failure reopens the circuit.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultFailureThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
)

// BreakerConfig configures a BreakerReader.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive host failures that opens
	// the circuit.
	FailureThreshold int `yaml:"failure_threshold"`
	// Cooldown is how long a circuit stays open before a trial read.
	Cooldown time.Duration `yaml:"cooldown"`
	// OnStateChange is called with the host lock held; it must not block.
	OnStateChange func(host string, from, to BreakerState) `yaml:"-"`
}

// BreakerReader stops reading from hosts that keep failing, so a dead host
// referenced by many nodes costs one timeout per cooldown instead of one per
// node. Only transport errors and retryable statuses count as failures; a 404
// proves the host is alive.
type BreakerReader struct {
	next Reader
	cfg  BreakerConfig
	now  func() time.Time

	mu    sync.Mutex
	hosts map[string]*hostCircuit
}

type hostCircuit struct {
	state    BreakerState
	failures int
	openedAt time.Time
}

// NewBreakerReader wraps next with per-host circuit breaking.
func NewBreakerReader(next Reader, cfg BreakerConfig) *BreakerReader {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultBreakerCooldown
	}
	return &BreakerReader{
		next:  next,
		cfg:   cfg,
		now:   time.Now,
		hosts: make(map[string]*hostCircuit),
	}
}

// Read implements Reader.
func (b *BreakerReader) Read(ctx context.Context, rawURL string, loadScripts bool) ([]byte, error) {
	host := hostOf(rawURL)
	if err := b.before(host); err != nil {
		return nil, err
	}

	body, err := b.next.Read(ctx, rawURL, loadScripts)
	b.after(ctx, host, err)
	return body, err
}

// Probe implements Prober. An open circuit reports the host as unreachable.
func (b *BreakerReader) Probe(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	if err := b.before(host); err != nil {
		return err
	}

	err := Probe(ctx, b.next, rawURL)
	b.after(ctx, host, err)
	return err
}

// State returns the circuit state for host.
func (b *BreakerReader) State(host string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.hosts[host]; ok {
		return c.state
	}
	return BreakerClosed
}

func (b *BreakerReader) before(host string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(host)
	if c.state != BreakerOpen {
		return nil
	}
	if wait := b.cfg.Cooldown - b.now().Sub(c.openedAt); wait > 0 {
		return fmt.Errorf("%w: %s (retry in %v)", ErrHostUnavailable, host, wait.Round(time.Second))
	}
	b.transition(host, c, BreakerHalfOpen)
	return nil
}

func (b *BreakerReader) after(ctx context.Context, host string, err error) {
	// A cancelled run says nothing about the host.
	if ctx.Err() != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(host)
	if !hostFailure(err) {
		c.failures = 0
		if c.state == BreakerHalfOpen {
			b.transition(host, c, BreakerClosed)
		}
		return
	}

	c.failures++
	if c.state == BreakerHalfOpen || c.failures >= b.cfg.FailureThreshold {
		c.openedAt = b.now()
		b.transition(host, c, BreakerOpen)
	}
}

func (b *BreakerReader) circuit(host string) *hostCircuit {
	c, ok := b.hosts[host]
	if !ok {
		c = &hostCircuit{}
		b.hosts[host] = c
	}
	return c
}

func (b *BreakerReader) transition(host string, c *hostCircuit, to BreakerState) {
	if c.state == to {
		return
	}
	from := c.state
	c.state = to
	c.failures = 0
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(host, from, to)
	}
}

func hostFailure(err error) bool {
	if err == nil || errors.Is(err, ErrDisallowed) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Temporary()
	}
	return true
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
