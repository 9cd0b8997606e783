// Package triage memoizes the outcome of every URL processed during one
// mirroring run so that each distinct URL is fetched and written at most once.
package triage

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownURL is returned when settling a URL that was never created.
	ErrUnknownURL = errors.New("triage: unknown url")
	// ErrAlreadySettled is returned when a Done or Failed entry is settled again.
	ErrAlreadySettled = errors.New("triage: entry already settled")
)

// State is the lifecycle position of an Entry.
type State int

const (
	// Pending means the URL is being processed by the caller that created it.
	Pending State = iota
	// Done means the URL was written and Ref points at the archive entry.
	Done
	// Failed means processing failed and Err explains why.
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Entry is a snapshot of one URL's triage state.
type Entry struct {
	URL   string
	State State
	// Ref is the archive reference. While Pending it holds the reference the
	// creator reserved, so a re-entrant encounter can link to it.
	Ref string
	Err error
}

// Cache maps absolute URLs to entries. It is safe for concurrent use; a URL
// is handed to exactly one creator, which must settle it with Complete or Fail.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Entry
	hits    int
}

// New returns an empty cache. Create one per top-level mirroring run.
func New() *Cache {
	return &Cache{entries: make(map[string]*Entry)}
}

// GetOrCreate returns the entry for url. When none exists a Pending entry is
// created with the reserved reference and created is true: the caller now owns
// the fetch. Otherwise the existing entry is returned untouched.
func (c *Cache) GetOrCreate(url, reserved string) (entry Entry, created bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[url]; ok {
		c.hits++
		return *e, false
	}

	e := &Entry{URL: url, State: Pending, Ref: reserved}
	c.entries[url] = e
	return *e, true
}

// Complete settles a Pending entry as Done with ref.
func (c *Cache) Complete(url, ref string) error {
	return c.settle(url, func(e *Entry) {
		e.State = Done
		e.Ref = ref
	})
}

// Fail settles a Pending entry as Failed with reason.
func (c *Cache) Fail(url string, reason error) error {
	return c.settle(url, func(e *Entry) {
		e.State = Failed
		e.Err = reason
	})
}

func (c *Cache) settle(url string, apply func(*Entry)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownURL, url)
	}
	if e.State != Pending {
		return fmt.Errorf("%w: %s is %s", ErrAlreadySettled, url, e.State)
	}

	apply(e)
	return nil
}

// Lookup returns the entry for url without creating one.
func (c *Cache) Lookup(url string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries int
	Done    int
	Failed  int
	Pending int
	Hits    int
}

// Stats counts entries by state.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Entries: len(c.entries), Hits: c.hits}
	for _, e := range c.entries {
		switch e.State {
		case Done:
			s.Done++
		case Failed:
			s.Failed++
		case Pending:
			s.Pending++
		}
	}
	return s
}
