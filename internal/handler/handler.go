// Package handler holds the ordered handler registry and the dispatcher that
// turns a resolved URL into a rewritten reference, a replacement node, or a
// typed failure.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/internal/archive"
	"github.com/jonesrussell/north-cloud/mirror/internal/fetch"
	"github.com/jonesrussell/north-cloud/mirror/internal/urlresolve"
)

// ErrInvalidDescriptor is returned when registering an incomplete descriptor.
var ErrInvalidDescriptor = errors.New("handler: invalid descriptor")

// Kind is the processing strategy of a descriptor.
type Kind int

const (
	// Leaf fetches raw bytes and writes them to the archive.
	Leaf Kind = iota
	// SubDocument mirrors another document recursively.
	SubDocument
	// Standalone builds a replacement node.
	Standalone
)

func (k Kind) String() string {
	switch k {
	case Leaf:
		return "leaf"
	case SubDocument:
		return "subdocument"
	case Standalone:
		return "standalone"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FailureKind classifies why a resource could not be mirrored.
type FailureKind int

const (
	// Broken means the resource should exist but could not be fetched or understood.
	Broken FailureKind = iota + 1
	// Unscrapable means the resource is reachable but cannot be embedded.
	Unscrapable
	// Unrecognized means no handler claims the URL.
	Unrecognized
)

func (k FailureKind) String() string {
	switch k {
	case Broken:
		return "broken"
	case Unscrapable:
		return "unscrapable"
	case Unrecognized:
		return "unrecognized"
	default:
		return "none"
	}
}

// SourceError is a failure tagged with its kind.
type SourceError struct {
	Kind FailureKind
	URL  string
	Err  error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s source %s", e.Kind, e.URL)
	}
	return fmt.Sprintf("%s source %s: %v", e.Kind, e.URL, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// BrokenSource wraps err as a Broken failure.
func BrokenSource(url string, err error) error {
	return &SourceError{Kind: Broken, URL: url, Err: err}
}

// UnscrapableSource wraps err as an Unscrapable failure.
func UnscrapableSource(url string, err error) error {
	return &SourceError{Kind: Unscrapable, URL: url, Err: err}
}

// Classify returns the failure kind carried by err. Robots exclusions are
// Unscrapable; every other error is Broken.
func Classify(err error) FailureKind {
	var srcErr *SourceError
	if errors.As(err, &srcErr) {
		return srcErr.Kind
	}
	if errors.Is(err, fetch.ErrDisallowed) {
		return Unscrapable
	}
	return Broken
}

// Messages supplies localized labels for generated pages.
type Messages interface {
	Message(key string) string
	SlideLabel(n int) string
}

// Env carries the collaborators a handler may use.
type Env struct {
	Reader      fetch.Reader
	Writer      archive.Writer
	Messages    Messages
	Logger      logger.Logger
	LoadScripts bool
}

// Descriptor pairs a URL predicate with a strategy. Registration order is
// priority.
type Descriptor struct {
	Name string
	Kind Kind
	Test func(url string) bool
	// Directory and DefaultExt name leaf artifacts.
	Directory  string
	DefaultExt string
	// NonEmbeddable marks formats that can never be archived. Dispatch probes
	// them and fails Unscrapable or Broken.
	NonEmbeddable bool
	// Fetch replaces the default leaf write. It returns the archive reference.
	Fetch func(ctx context.Context, env *Env, url string) (string, error)
	// Node builds the replacement node. Required for Standalone descriptors;
	// for Leaf descriptors it is used when the URL is embedded in a frame.
	Node func(ref, url string) *html.Node
}

func (d Descriptor) validate() error {
	switch {
	case d.Name == "":
		return fmt.Errorf("%w: missing name", ErrInvalidDescriptor)
	case d.Test == nil:
		return fmt.Errorf("%w: %s has no test", ErrInvalidDescriptor, d.Name)
	case d.Kind == Standalone && d.Node == nil && !d.NonEmbeddable:
		return fmt.Errorf("%w: standalone %s has no node builder", ErrInvalidDescriptor, d.Name)
	}
	return nil
}

// Registry is an ordered descriptor list. The first match wins.
type Registry struct {
	mu          sync.RWMutex
	descriptors []Descriptor
}

// NewRegistry registers descriptors in order.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{}
	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends d at the lowest priority.
func (r *Registry) Register(d Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors = append(r.descriptors, d)
	return nil
}

// Match returns the first descriptor whose test accepts url.
func (r *Registry) Match(url string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.descriptors {
		if d.Test(url) {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Names lists registered descriptor names in priority order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.descriptors))
	for i, d := range r.descriptors {
		names[i] = d.Name
	}
	return names
}

// HasExt matches URLs whose path extension is one of exts.
func HasExt(exts ...string) func(string) bool {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[strings.ToLower(e)] = struct{}{}
	}
	return func(raw string) bool {
		_, ok := set[urlresolve.Ext(raw)]
		return ok
	}
}

// HostIn matches URLs on any of hosts or their subdomains.
func HostIn(hosts ...string) func(string) bool {
	return func(raw string) bool {
		host := Host(raw)
		if host == "" {
			return false
		}
		for _, h := range hosts {
			h = strings.ToLower(h)
			if host == h || strings.HasSuffix(host, "."+h) {
				return true
			}
		}
		return false
	}
}

// Host returns the lower-cased host of raw without port, or "".
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
