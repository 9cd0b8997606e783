// Package rewriter walks a parsed document, mirrors every external resource
// it references through the handler registry and the triage cache, and
// rewrites the document to point at the archived copies.
package rewriter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/internal/archive"
	"github.com/jonesrussell/north-cloud/mirror/internal/config/sites"
	"github.com/jonesrussell/north-cloud/mirror/internal/fetch"
	"github.com/jonesrussell/north-cloud/mirror/internal/handler"
	"github.com/jonesrussell/north-cloud/mirror/internal/triage"
	"github.com/jonesrussell/north-cloud/mirror/internal/urlresolve"
)

// RootName is the archive entry of the top-level document.
const RootName = "index.html"

var (
	// ErrMissingDependency is returned by New when a required collaborator is nil.
	ErrMissingDependency = errors.New("rewriter: missing dependency")
	// ErrRootSettled is returned when the root URL was already processed in
	// this run's triage cache.
	ErrRootSettled = errors.New("rewriter: root already processed")

	errInFlight = errors.New("resource is still being processed")
)

// Fallbacks renders the replacement nodes shown for resources that could not
// be mirrored. It also supplies localized labels for generated pages.
type Fallbacks interface {
	handler.Messages
	Broken(url string) *html.Node
	Unscrapable(url string) *html.Node
	Partial(url string) *html.Node
	InlineLink(label, url string) *html.Node
	Unrecognized(ctx context.Context, url string) (node *html.Node, reachable bool)
}

// Options controls how documents are normalized and which resources are followed.
type Options struct {
	// Omit lists selectors removed before the walk, in addition to DefaultOmit.
	Omit []string
	// MainArea restricts the body to the first element it matches.
	MainArea string
	// Readability extracts the main content when MainArea is empty or misses.
	Readability bool
	// FollowLinks mirrors linked sub-documents. When false, links to them are
	// rendered as bold labels.
	FollowLinks bool
	LoadScripts bool
	// PartialNotice prepends a notice to sub-documents that needed a fallback.
	PartialNotice bool
	// LeafConcurrency bounds parallel leaf prefetching. Values below 2 keep
	// the walk strictly sequential.
	LeafConcurrency int
	// Sites overrides options per host.
	Sites *sites.Rules
}

// Deps are the collaborators of a Rewriter.
type Deps struct {
	Reader    fetch.Reader
	Writer    archive.Writer
	Triage    *triage.Cache
	Registry  *handler.Registry
	Fallbacks Fallbacks
	Logger    logger.Logger

	// Observe is notified of every dispatch, including generic leaf writes.
	Observe handler.ObserveFunc
	// OnFallback is notified of every fallback substituted into a document.
	OnFallback func(kind handler.FailureKind)
	// OnTriageHit is notified when a URL is served from the triage cache.
	OnTriageHit func()
}

// Stats counts what the rewriter did over its lifetime.
type Stats struct {
	Documents int
	Nodes     int
	Skipped   int
	Rewritten int
	Replaced  int
	Removed   int
	Fallbacks map[handler.FailureKind]int
}

// Page summarizes the rewrite of one document.
type Page struct {
	URL       string
	Nodes     int
	Fallbacks int
}

// Rewriter mirrors documents. One Rewriter serves one run; its triage cache
// is shared by every document it visits.
type Rewriter struct {
	opts       Options
	deps       Deps
	env        *handler.Env
	dispatcher *handler.Dispatcher
	log        logger.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a Rewriter.
func New(opts Options, deps Deps) (*Rewriter, error) {
	switch {
	case deps.Reader == nil:
		return nil, fmt.Errorf("%w: reader", ErrMissingDependency)
	case deps.Writer == nil:
		return nil, fmt.Errorf("%w: writer", ErrMissingDependency)
	case deps.Triage == nil:
		return nil, fmt.Errorf("%w: triage cache", ErrMissingDependency)
	case deps.Registry == nil:
		return nil, fmt.Errorf("%w: handler registry", ErrMissingDependency)
	case deps.Fallbacks == nil:
		return nil, fmt.Errorf("%w: fallbacks", ErrMissingDependency)
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}

	r := &Rewriter{
		opts:  opts,
		deps:  deps,
		log:   deps.Logger,
		stats: Stats{Fallbacks: make(map[handler.FailureKind]int)},
	}
	r.env = &handler.Env{
		Reader:      deps.Reader,
		Writer:      deps.Writer,
		Messages:    deps.Fallbacks,
		Logger:      deps.Logger,
		LoadScripts: opts.LoadScripts,
	}
	r.dispatcher = handler.NewDispatcher(deps.Registry, r.env, r.Mirror, deps.Observe)
	return r, nil
}

// MirrorRoot mirrors rootURL into RootName. The root is reserved in the triage
// cache before the walk so a self-reference links back to RootName.
func (r *Rewriter) MirrorRoot(ctx context.Context, rootURL string) (string, error) {
	key := urlresolve.StripFragment(rootURL)

	entry, created := r.deps.Triage.GetOrCreate(key, RootName)
	if !created {
		if entry.State == triage.Done {
			return entry.Ref, nil
		}
		return "", fmt.Errorf("%w: %s is %s", ErrRootSettled, key, entry.State)
	}

	ref, err := r.Mirror(ctx, key, RootName)
	if err != nil {
		r.settle(key, "", err)
		return "", err
	}
	r.settle(key, ref, nil)
	return ref, nil
}

// Mirror fetches the document at pageURL, rewrites it, and writes it to the
// archive root as name. It is the recursion used for sub-documents; callers
// own the triage entry for pageURL.
func (r *Rewriter) Mirror(ctx context.Context, pageURL, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	settings := r.settingsFor(pageURL)
	body, err := r.deps.Reader.Read(ctx, pageURL, settings.loadScripts)
	if err != nil {
		return "", handler.ReadFailure(pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", handler.BrokenSource(pageURL, fmt.Errorf("parse document: %w", err))
	}

	page, err := r.Rewrite(ctx, doc, pageURL)
	if err != nil {
		return "", err
	}

	if page.Fallbacks > 0 && r.opts.PartialNotice && name != RootName {
		doc.Find("body").First().PrependNodes(r.deps.Fallbacks.Partial(pageURL))
	}

	out, err := doc.Html()
	if err != nil {
		return "", handler.BrokenSource(pageURL, fmt.Errorf("serialize document: %w", err))
	}

	ref, err := r.deps.Writer.WriteText(ctx, archive.DirRoot, name, out)
	if err != nil {
		return "", handler.BrokenSource(pageURL, fmt.Errorf("write document: %w", err))
	}

	r.log.Info("Mirrored document",
		logger.String("url", pageURL),
		logger.String("ref", ref),
		logger.Int("nodes", page.Nodes),
		logger.Int("fallbacks", page.Fallbacks))
	return ref, nil
}

// Rewrite normalizes doc and rewrites every resource node in it. pageURL is
// the base for relative references. It fails only when ctx is cancelled.
func (r *Rewriter) Rewrite(ctx context.Context, doc *goquery.Document, pageURL string) (Page, error) {
	settings := r.settingsFor(pageURL)
	r.normalize(doc, pageURL, settings)

	p := &pageState{url: pageURL, settings: settings}
	nodes := collect(doc)

	if r.opts.LeafConcurrency > 1 {
		if err := r.prefetch(ctx, p, nodes); err != nil {
			return Page{}, err
		}
	}

	for _, s := range nodes {
		if err := ctx.Err(); err != nil {
			return Page{}, err
		}
		if !attached(s.Nodes[0]) {
			continue
		}
		p.nodes++
		r.rewriteNode(ctx, p, s)
	}

	r.mu.Lock()
	r.stats.Documents++
	r.stats.Nodes += p.nodes
	r.mu.Unlock()

	return Page{URL: pageURL, Nodes: p.nodes, Fallbacks: p.fallbacks}, nil
}

// Stats returns a snapshot of the rewriter's counters.
func (r *Rewriter) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.stats
	s.Fallbacks = make(map[handler.FailureKind]int, len(r.stats.Fallbacks))
	for k, v := range r.stats.Fallbacks {
		s.Fallbacks[k] = v
	}
	return s
}

type pageState struct {
	url       string
	settings  pageSettings
	nodes     int
	fallbacks int
}

type pageSettings struct {
	omit        []string
	mainArea    string
	readability bool
	followLinks bool
	loadScripts bool
}

func (r *Rewriter) settingsFor(pageURL string) pageSettings {
	s := pageSettings{
		omit:        append(append([]string{}, DefaultOmit...), r.opts.Omit...),
		mainArea:    r.opts.MainArea,
		readability: r.opts.Readability,
		followLinks: r.opts.FollowLinks,
		loadScripts: r.opts.LoadScripts,
	}

	rule, ok := r.opts.Sites.For(handler.Host(pageURL))
	if !ok {
		return s
	}
	s.omit = append(s.omit, rule.Omit...)
	if rule.MainArea != "" {
		s.mainArea = rule.MainArea
	}
	s.readability = s.readability || rule.Readability
	s.loadScripts = s.loadScripts || rule.LoadScripts
	if rule.FollowLinks != nil {
		s.followLinks = *rule.FollowLinks
	}
	return s
}

// once runs write for key unless the triage cache already knows it.
func (r *Rewriter) once(key, observeName string, write func() (string, error)) (string, error) {
	entry, created := r.deps.Triage.GetOrCreate(key, "")
	if !created {
		r.triageHit()
		switch entry.State {
		case triage.Done:
			return entry.Ref, nil
		case triage.Failed:
			return "", entry.Err
		default:
			return "", fmt.Errorf("%w: %s", errInFlight, key)
		}
	}

	ref, err := write()
	r.settle(key, ref, err)
	if r.deps.Observe != nil {
		if err != nil {
			r.deps.Observe(observeName, handler.Failed, handler.Classify(err))
		} else {
			r.deps.Observe(observeName, handler.Rewritten, 0)
		}
	}
	return ref, err
}

func (r *Rewriter) settle(key, ref string, err error) {
	var settleErr error
	if err != nil {
		settleErr = r.deps.Triage.Fail(key, err)
	} else {
		settleErr = r.deps.Triage.Complete(key, ref)
	}
	if settleErr != nil {
		r.log.Warn("Failed to settle triage entry",
			logger.String("url", key),
			logger.Error(settleErr))
	}
}

func (r *Rewriter) triageHit() {
	if r.deps.OnTriageHit != nil {
		r.deps.OnTriageHit()
	}
}

func (r *Rewriter) count(field *int) {
	r.mu.Lock()
	*field++
	r.mu.Unlock()
}

func (r *Rewriter) noteFallback(p *pageState, kind handler.FailureKind) {
	p.fallbacks++
	r.mu.Lock()
	r.stats.Fallbacks[kind]++
	r.mu.Unlock()
	if r.deps.OnFallback != nil {
		r.deps.OnFallback(kind)
	}
}

// attached reports whether n is still reachable from its document root. Nodes
// inside a subtree removed earlier in the walk are not.
func attached(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n.Type == html.DocumentNode {
			return true
		}
	}
	return false
}
