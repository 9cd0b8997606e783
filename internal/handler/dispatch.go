package handler

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/net/html"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/internal/archive"
	"github.com/jonesrussell/north-cloud/mirror/internal/fetch"
	"github.com/jonesrussell/north-cloud/mirror/internal/urlresolve"
)

// SubDocumentExt is the extension given to mirrored sub-documents.
const SubDocumentExt = ".html"

var errNonEmbeddable = errors.New("format cannot be embedded")

// Outcome is the shape of a dispatch result.
type Outcome int

const (
	// Rewritten means the node's attribute should point at Ref.
	Rewritten Outcome = iota
	// Replaced means the node should be replaced by Node.
	Replaced
	// Failed means a fallback should be substituted per Failure.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Rewritten:
		return "rewritten"
	case Replaced:
		return "replaced"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Mode tells the dispatcher how the URL is referenced.
type Mode int

const (
	// Link references the URL through an attribute that can be rewritten.
	Link Mode = iota
	// Embed references the URL from a frame that may be replaced by a node.
	Embed
)

// Result is the three-way outcome of dispatching one URL.
type Result struct {
	Outcome Outcome
	Ref     string
	Node    *html.Node
	Failure FailureKind
	Err     error
	Handler string
}

// SubDocumentFunc mirrors the document at url into the archive entry name and
// returns its reference.
type SubDocumentFunc func(ctx context.Context, url, name string) (string, error)

// ObserveFunc is notified of every dispatch.
type ObserveFunc func(handler string, outcome Outcome, failure FailureKind)

// Dispatcher executes the strategy of the descriptor matching a URL.
type Dispatcher struct {
	registry    *Registry
	env         *Env
	subDocument SubDocumentFunc
	observe     ObserveFunc
	log         logger.Logger
}

// NewDispatcher creates a Dispatcher. subDocument performs recursion for
// SubDocument descriptors.
func NewDispatcher(registry *Registry, env *Env, subDocument SubDocumentFunc, observe ObserveFunc) *Dispatcher {
	log := env.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Dispatcher{
		registry:    registry,
		env:         env,
		subDocument: subDocument,
		observe:     observe,
		log:         log,
	}
}

// Reserve returns the reference a SubDocument URL will be written to, so a
// re-entrant encounter can link to it before it is complete. Other kinds
// reserve nothing.
func (d *Dispatcher) Reserve(url string) string {
	desc, ok := d.registry.Match(url)
	if !ok || desc.Kind != SubDocument {
		return ""
	}
	return archive.Ref(archive.DirRoot, urlresolve.Filename(url, SubDocumentExt))
}

// Dispatch processes url with the first matching descriptor.
func (d *Dispatcher) Dispatch(ctx context.Context, url string, mode Mode) Result {
	desc, ok := d.registry.Match(url)
	if !ok {
		return d.finish(Result{
			Outcome: Failed,
			Failure: Unrecognized,
			Err:     &SourceError{Kind: Unrecognized, URL: url},
		}, url)
	}

	ref, err := d.process(ctx, desc, url)
	if err != nil {
		return d.finish(Result{
			Outcome: Failed,
			Failure: Classify(err),
			Err:     err,
			Handler: desc.Name,
		}, url)
	}

	return d.finish(d.build(desc, url, ref, mode), url)
}

// Replay rebuilds the result of a URL that was already processed, without I/O.
func (d *Dispatcher) Replay(url, ref string, mode Mode) Result {
	desc, ok := d.registry.Match(url)
	if !ok {
		return Result{Outcome: Rewritten, Ref: ref}
	}
	return d.build(desc, url, ref, mode)
}

func (d *Dispatcher) build(desc Descriptor, url, ref string, mode Mode) Result {
	res := Result{Outcome: Rewritten, Ref: ref, Handler: desc.Name}
	if desc.Node == nil {
		return res
	}
	if desc.Kind == Standalone || (desc.Kind == Leaf && mode == Embed) {
		res.Outcome = Replaced
		res.Node = desc.Node(ref, url)
	}
	return res
}

func (d *Dispatcher) process(ctx context.Context, desc Descriptor, url string) (string, error) {
	if desc.NonEmbeddable {
		if err := fetch.Probe(ctx, d.env.Reader, url); err != nil {
			return "", BrokenSource(url, err)
		}
		return "", UnscrapableSource(url, errNonEmbeddable)
	}

	switch {
	case desc.Fetch != nil:
		return desc.Fetch(ctx, d.env, url)
	case desc.Kind == SubDocument:
		if d.subDocument == nil {
			return "", UnscrapableSource(url, errors.New("sub-document recursion disabled"))
		}
		return d.subDocument(ctx, url, urlresolve.Filename(url, SubDocumentExt))
	default:
		return WriteLeaf(ctx, d.env, url, desc.Directory, desc.DefaultExt)
	}
}

func (d *Dispatcher) finish(res Result, url string) Result {
	if res.Outcome == Failed {
		d.log.Debug("Dispatch failed",
			logger.String("url", url),
			logger.String("handler", res.Handler),
			logger.String("failure", res.Failure.String()),
			logger.Error(res.Err))
	}
	if d.observe != nil {
		name := res.Handler
		if name == "" {
			name = "none"
		}
		d.observe(name, res.Outcome, res.Failure)
	}
	return res
}

// WriteLeaf fetches url and writes it to dir under its content-addressed
// name. A name that is already in the archive is not fetched again.
func WriteLeaf(ctx context.Context, env *Env, url, dir, defaultExt string) (string, error) {
	name := urlresolve.Filename(url, defaultExt)
	if ref := archive.Ref(dir, name); env.Writer.Contains(ref) {
		return ref, nil
	}

	body, err := env.Reader.Read(ctx, url, false)
	if err != nil {
		return "", ReadFailure(url, err)
	}

	ref, err := env.Writer.WriteBytes(ctx, dir, name, body)
	if err != nil {
		return "", BrokenSource(url, fmt.Errorf("write archive entry: %w", err))
	}
	return ref, nil
}

// ReadFailure tags a read error. Robots exclusions are Unscrapable since the
// resource exists; everything else is Broken.
func ReadFailure(url string, err error) error {
	if errors.Is(err, fetch.ErrDisallowed) {
		return UnscrapableSource(url, err)
	}
	return BrokenSource(url, err)
}
