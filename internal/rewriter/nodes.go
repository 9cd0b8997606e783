package rewriter

import (
	"context"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/internal/archive"
	"github.com/jonesrussell/north-cloud/mirror/internal/degrade"
	"github.com/jonesrussell/north-cloud/mirror/internal/handler"
	"github.com/jonesrussell/north-cloud/mirror/internal/triage"
	"github.com/jonesrussell/north-cloud/mirror/internal/urlresolve"
)

const resourceSelector = "img, link, script, video, audio, embed, a, iframe"

var (
	trackingFrameHosts = []string{"googletagmanager.com", "googleads", "doubleclick.net"}
	licenseHosts       = []string{"creativecommons.org"}
)

// collect lists resource nodes in document order. Collection finishes before
// any mutation.
func collect(doc *goquery.Document) []*goquery.Selection {
	var nodes []*goquery.Selection
	doc.Find(resourceSelector).Each(func(_ int, s *goquery.Selection) {
		if s.HasClass(degrade.SkipClass) {
			return
		}
		if goquery.NodeName(s) == "link" && !isStylesheet(s) {
			return
		}
		nodes = append(nodes, s)
	})
	return nodes
}

func isStylesheet(s *goquery.Selection) bool {
	for _, rel := range strings.Fields(strings.ToLower(s.AttrOr("rel", ""))) {
		if rel == "stylesheet" {
			return true
		}
	}
	return false
}

func (r *Rewriter) rewriteNode(ctx context.Context, p *pageState, s *goquery.Selection) {
	switch goquery.NodeName(s) {
	case "img":
		r.rewriteImage(ctx, p, s)
	case "link":
		r.rewriteStylesheet(ctx, p, s)
	case "script":
		r.rewriteScript(ctx, p, s)
	case "video":
		r.rewriteMedia(ctx, p, s, archive.DirVideos, ".mp4")
	case "audio":
		r.rewriteMedia(ctx, p, s, archive.DirAudio, ".mp3")
	case "embed":
		r.rewriteEmbed(ctx, p, s)
	case "a":
		r.rewriteAnchor(ctx, p, s)
	case "iframe":
		r.rewriteFrame(ctx, p, s)
	}
}

// reference returns the resolved URL of attr, or false when the node should be
// skipped.
func (r *Rewriter) reference(p *pageState, s *goquery.Selection, attr string) (string, bool) {
	raw, ok := s.Attr(attr)
	if !ok || urlresolve.IsSkippable(raw) {
		r.count(&r.stats.Skipped)
		return "", false
	}
	return urlresolve.Resolve(p.url, raw), true
}

func (r *Rewriter) leaf(ctx context.Context, rawURL, dir, ext string) (string, error) {
	key := urlresolve.StripFragment(rawURL)
	return r.once(key, "leaf_"+dir, func() (string, error) {
		return handler.WriteLeaf(ctx, r.env, key, dir, ext)
	})
}

func (r *Rewriter) rewriteImage(ctx context.Context, p *pageState, s *goquery.Selection) {
	if urlresolve.IsData(s.AttrOr("src", "")) {
		r.count(&r.stats.Skipped)
		return
	}
	abs, ok := r.reference(p, s, "src")
	if !ok {
		return
	}

	ref, err := r.leaf(ctx, abs, archive.DirImages, ".png")
	if err != nil {
		r.replaceWithFallback(p, s, abs, err)
		return
	}
	s.SetAttr("src", ref)
	s.RemoveAttr("srcset")
	r.count(&r.stats.Rewritten)
}

// Stylesheets and scripts live in the head where a visible fallback has no
// place, so failing ones are removed.
func (r *Rewriter) rewriteStylesheet(ctx context.Context, p *pageState, s *goquery.Selection) {
	abs, ok := r.reference(p, s, "href")
	if !ok {
		return
	}
	if strings.Contains(abs, "fonts") {
		r.remove(s)
		return
	}

	key := urlresolve.StripFragment(abs)
	ref, err := r.once(key, "leaf_"+archive.DirCSS, func() (string, error) {
		return r.writeStylesheet(ctx, key)
	})
	if err != nil {
		r.log.Debug("Removing stylesheet",
			logger.String("url", abs),
			logger.Error(err))
		r.remove(s)
		return
	}
	s.SetAttr("href", ref)
	r.count(&r.stats.Rewritten)
}

func (r *Rewriter) rewriteScript(ctx context.Context, p *pageState, s *goquery.Selection) {
	if _, ok := s.Attr("src"); !ok {
		if strings.Contains(s.Text(), "google") {
			r.remove(s)
			return
		}
		r.count(&r.stats.Skipped)
		return
	}

	abs, ok := r.reference(p, s, "src")
	if !ok {
		return
	}
	if strings.Contains(abs, "google") {
		r.remove(s)
		return
	}

	ref, err := r.leaf(ctx, abs, archive.DirJS, ".js")
	if err != nil {
		r.log.Debug("Removing script",
			logger.String("url", abs),
			logger.Error(err))
		r.remove(s)
		return
	}
	s.SetAttr("src", ref)
	r.count(&r.stats.Rewritten)
}

func (r *Rewriter) rewriteMedia(ctx context.Context, p *pageState, s *goquery.Selection, dir, ext string) {
	s.SetAttr("controls", "controls")
	s.SetAttr("preload", "auto")

	var attempted, failedURL string
	var lastErr error

	if raw, ok := s.Attr("src"); ok && !urlresolve.IsSkippable(raw) {
		abs := urlresolve.Resolve(p.url, raw)
		attempted = abs
		if ref, err := r.leaf(ctx, abs, dir, ext); err != nil {
			s.RemoveAttr("src")
			failedURL, lastErr = abs, err
		} else {
			s.SetAttr("src", ref)
		}
	}

	s.Find("source").Each(func(_ int, source *goquery.Selection) {
		raw, ok := source.Attr("src")
		if !ok || urlresolve.IsSkippable(raw) {
			return
		}
		abs := urlresolve.Resolve(p.url, raw)
		attempted = abs
		ref, err := r.leaf(ctx, abs, dir, ext)
		if err != nil {
			source.Remove()
			failedURL, lastErr = abs, err
			return
		}
		source.SetAttr("src", ref)
	})

	switch {
	case attempted == "":
		r.count(&r.stats.Skipped)
	case !s.Is("[src]") && s.Find("source[src]").Length() == 0:
		r.replaceWithFallback(p, s, failedURL, lastErr)
	default:
		r.count(&r.stats.Rewritten)
	}
}

func (r *Rewriter) rewriteEmbed(ctx context.Context, p *pageState, s *goquery.Selection) {
	abs, ok := r.reference(p, s, "src")
	if !ok {
		return
	}
	s.SetAttr("style", "width:100%;height:100vh")

	res := r.dispatch(ctx, abs, handler.Link, archive.DirFiles)
	r.apply(p, s, "src", abs, res)
}

func (r *Rewriter) rewriteFrame(ctx context.Context, p *pageState, s *goquery.Selection) {
	abs, ok := r.reference(p, s, "src")
	if !ok {
		return
	}
	if host := handler.Host(abs); containsAny(host, trackingFrameHosts) {
		r.remove(s)
		return
	}
	s.SetAttr("style", "resize: both;")

	res := r.dispatch(ctx, abs, handler.Embed, "")
	r.apply(p, s, "src", abs, res)
}

func (r *Rewriter) rewriteAnchor(ctx context.Context, p *pageState, s *goquery.Selection) {
	raw := s.AttrOr("href", "")
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(raw)), "mailto:") {
		r.replace(s, &html.Node{Type: html.TextNode, Data: s.Text()})
		return
	}

	abs, ok := r.reference(p, s, "href")
	if !ok {
		return
	}

	label := strings.TrimSpace(s.Text())
	if label == "" {
		label = abs
	}

	if containsAny(handler.Host(abs), licenseHosts) {
		r.replace(s, bold(label))
		return
	}

	if !p.settings.followLinks {
		if desc, matched := r.deps.Registry.Match(urlresolve.StripFragment(abs)); matched && desc.Kind == handler.SubDocument {
			r.unfollow(s, label)
			return
		}
	}

	res := r.dispatch(ctx, abs, handler.Link, "")
	if res.Outcome == handler.Failed && res.Failure == handler.Unscrapable {
		r.replace(s, r.deps.Fallbacks.InlineLink(label, abs))
		r.noteFallback(p, handler.Unscrapable)
		return
	}
	r.apply(p, s, "href", abs, res)
	if res.Outcome == handler.Rewritten {
		s.RemoveAttr("target")
	}
}

// unfollow renders a link that is not followed as its label in bold. A link
// around a lone image keeps the image instead.
func (r *Rewriter) unfollow(s *goquery.Selection, label string) {
	if children := s.Children(); children.Length() == 1 && goquery.NodeName(children) == "img" &&
		strings.TrimSpace(s.Text()) == "" {
		s.ReplaceWithSelection(s.Contents())
		r.count(&r.stats.Replaced)
		return
	}
	r.replace(s, bold(label))
}

// dispatch resolves abs through the triage cache and the registry. leafDir,
// when set, stores unrecognized URLs as generic leaves.
func (r *Rewriter) dispatch(ctx context.Context, abs string, mode handler.Mode, leafDir string) handler.Result {
	key := urlresolve.StripFragment(abs)

	entry, created := r.deps.Triage.GetOrCreate(key, r.dispatcher.Reserve(key))
	if !created {
		r.triageHit()
		switch entry.State {
		case triage.Done:
			return r.dispatcher.Replay(key, entry.Ref, mode)
		case triage.Failed:
			return handler.Result{Outcome: handler.Failed, Failure: handler.Classify(entry.Err), Err: entry.Err}
		default:
			if entry.Ref == "" {
				r.log.Debug("Resource is still in flight",
					logger.String("url", key))
				err := handler.BrokenSource(key, errInFlight)
				return handler.Result{Outcome: handler.Failed, Failure: handler.Broken, Err: err}
			}
			// A document reached again while it is being mirrored.
			return handler.Result{Outcome: handler.Rewritten, Ref: entry.Ref}
		}
	}

	res := r.dispatcher.Dispatch(ctx, key, mode)
	if res.Outcome == handler.Failed && res.Failure == handler.Unrecognized && leafDir != "" {
		ref, err := handler.WriteLeaf(ctx, r.env, key, leafDir, "")
		if err == nil {
			res = handler.Result{Outcome: handler.Rewritten, Ref: ref, Handler: "leaf_" + leafDir}
		} else {
			res.Err = err
			res.Failure = handler.Classify(err)
		}
	}
	if res.Outcome == handler.Failed && res.Failure == handler.Unrecognized {
		node, reachable := r.deps.Fallbacks.Unrecognized(ctx, key)
		res.Node = node
		res.Failure = handler.Broken
		if reachable {
			res.Failure = handler.Unscrapable
		}
		res.Err = &handler.SourceError{Kind: res.Failure, URL: key, Err: res.Err}
	}

	if res.Outcome == handler.Failed {
		r.settle(key, "", res.Err)
	} else {
		r.settle(key, res.Ref, nil)
	}
	return res
}

// apply writes a dispatch result onto the node that referenced abs.
func (r *Rewriter) apply(p *pageState, s *goquery.Selection, attr, abs string, res handler.Result) {
	switch res.Outcome {
	case handler.Rewritten:
		s.SetAttr(attr, res.Ref+urlresolve.Fragment(abs))
		r.count(&r.stats.Rewritten)
	case handler.Replaced:
		r.replace(s, res.Node)
	case handler.Failed:
		node := res.Node
		if node == nil {
			node = r.fallbackNode(res.Failure, abs)
		}
		s.ReplaceWithNodes(node)
		r.noteFallback(p, res.Failure)
	}
}

func (r *Rewriter) replaceWithFallback(p *pageState, s *goquery.Selection, abs string, err error) {
	if errors.Is(err, errInFlight) {
		r.log.Debug("Resource is still in flight",
			logger.String("url", abs))
	}
	kind := handler.Classify(err)
	s.ReplaceWithNodes(r.fallbackNode(kind, abs))
	r.noteFallback(p, kind)
}

func (r *Rewriter) fallbackNode(kind handler.FailureKind, abs string) *html.Node {
	if kind == handler.Unscrapable {
		return r.deps.Fallbacks.Unscrapable(abs)
	}
	return r.deps.Fallbacks.Broken(abs)
}

func (r *Rewriter) replace(s *goquery.Selection, n *html.Node) {
	s.ReplaceWithNodes(n)
	r.count(&r.stats.Replaced)
}

func (r *Rewriter) remove(s *goquery.Selection) {
	s.Remove()
	r.count(&r.stats.Removed)
}

func bold(label string) *html.Node {
	b := handler.NewElement(atom.B)
	b.AppendChild(&html.Node{Type: html.TextNode, Data: label})
	return b
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
