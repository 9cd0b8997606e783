package rewriter_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/mirror/internal/archive"
	"github.com/jonesrussell/north-cloud/mirror/internal/config/sites"
	"github.com/jonesrussell/north-cloud/mirror/internal/degrade"
	"github.com/jonesrussell/north-cloud/mirror/internal/fetch"
	"github.com/jonesrussell/north-cloud/mirror/internal/handler"
	"github.com/jonesrussell/north-cloud/mirror/internal/rewriter"
	"github.com/jonesrussell/north-cloud/mirror/internal/triage"
	"github.com/jonesrussell/north-cloud/mirror/internal/urlresolve"
)

// site serves canned bodies and counts reads and probes per URL.
type site struct {
	mu     sync.Mutex
	pages  map[string]string
	reads  map[string]int
	probes map[string]int
}

func newSite(pages map[string]string) *site {
	return &site{pages: pages, reads: make(map[string]int), probes: make(map[string]int)}
}

func (s *site) Probe(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.probes[url]++
	if _, ok := s.pages[url]; !ok {
		return &fetch.HTTPError{URL: url, StatusCode: 404}
	}
	return nil
}

func (s *site) probeCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probes[url]
}

func (s *site) Read(_ context.Context, url string, _ bool) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads[url]++
	body, ok := s.pages[url]
	if !ok {
		return nil, &fetch.HTTPError{URL: url, StatusCode: 404}
	}
	return []byte(body), nil
}

func (s *site) readCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[url]
}

type harness struct {
	rw     *rewriter.Rewriter
	writer *archive.DirWriter
	cache  *triage.Cache
	root   string
}

func newHarness(t *testing.T, s *site, opts rewriter.Options) *harness {
	t.Helper()

	root := t.TempDir()
	writer, err := archive.NewDirWriter(root)
	require.NoError(t, err)

	registry, err := handler.NewRegistry(handler.Defaults(handler.DefaultsOptions{
		PageHosts: []string{"site.example", "x.example"},
	})...)
	require.NoError(t, err)

	cache := triage.New()
	gen := degrade.NewGenerator(degrade.Options{
		Probe: func(ctx context.Context, url string) error {
			return fetch.Probe(ctx, s, url)
		},
	})

	rw, err := rewriter.New(opts, rewriter.Deps{
		Reader:    s,
		Writer:    writer,
		Triage:    cache,
		Registry:  registry,
		Fallbacks: gen,
	})
	require.NoError(t, err)

	return &harness{rw: rw, writer: writer, cache: cache, root: root}
}

func (h *harness) document(t *testing.T, ref string) *goquery.Document {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(h.root, filepath.FromSlash(ref)))
	require.NoError(t, err)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(data)))
	require.NoError(t, err)
	return doc
}

func page(body string) string {
	return "<html><head><title>t</title></head><body>" + body + "</body></html>"
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := rewriter.New(rewriter.Options{}, rewriter.Deps{})
	require.ErrorIs(t, err, rewriter.ErrMissingDependency)
}

func TestMirrorRoot_ResolvesParentReference(t *testing.T) {
	t.Parallel()

	const base = "https://site.example/a/b/index.html"
	const img = "https://site.example/a/img/x.png"
	s := newSite(map[string]string{
		base: page(`<img src="../img/x.png">`),
		img:  "png",
	})
	h := newHarness(t, s, rewriter.Options{})

	ref, err := h.rw.MirrorRoot(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, rewriter.RootName, ref)

	want := archive.Ref(archive.DirImages, urlresolve.Filename(img, ".png"))
	assert.Equal(t, want, h.document(t, ref).Find("img").AttrOr("src", ""))
	assert.True(t, h.writer.Contains(want))
}

func TestMirrorRoot_DeduplicatesEquivalentReferences(t *testing.T) {
	t.Parallel()

	const base = "https://x.example/index.html"
	const img = "https://x.example/a.png"
	s := newSite(map[string]string{
		base: page(`<img src="https://x.example/a.png"><p>text</p><img src="./a.png">`),
		img:  "png",
	})
	h := newHarness(t, s, rewriter.Options{})

	_, err := h.rw.MirrorRoot(context.Background(), base)
	require.NoError(t, err)

	want := archive.Ref(archive.DirImages, urlresolve.Filename(img, ".png"))
	doc := h.document(t, rewriter.RootName)
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		assert.Equal(t, want, sel.AttrOr("src", ""))
	})
	assert.Equal(t, 2, doc.Find("img").Length())
	assert.Equal(t, 1, s.readCount(img))
	assert.Equal(t, []string{want, rewriter.RootName}, h.writer.Entries())
}

func TestMirrorRoot_SkipsJavascriptLinks(t *testing.T) {
	t.Parallel()

	const base = "https://site.example/"
	s := newSite(map[string]string{
		base: page(`<a href="javascript:void(0)" target="_blank">menu</a><a href="#top">top</a>`),
	})
	h := newHarness(t, s, rewriter.Options{FollowLinks: true})

	_, err := h.rw.MirrorRoot(context.Background(), base)
	require.NoError(t, err)

	links := h.document(t, rewriter.RootName).Find("a")
	require.Equal(t, 2, links.Length())
	assert.Equal(t, "javascript:void(0)", links.First().AttrOr("href", ""))
	assert.Equal(t, "_blank", links.First().AttrOr("target", ""))
	assert.Equal(t, "#top", links.Last().AttrOr("href", ""))
	assert.Equal(t, 2, h.rw.Stats().Skipped)
}

func TestMirrorRoot_BrokenLinkBecomesFallback(t *testing.T) {
	t.Parallel()

	const base = "https://site.example/"
	const missing = "https://site.example/missing"
	s := newSite(map[string]string{
		base: page(`<a href="/missing">gone</a>`),
	})
	h := newHarness(t, s, rewriter.Options{FollowLinks: true})

	_, err := h.rw.MirrorRoot(context.Background(), base)
	require.NoError(t, err)

	doc := h.document(t, rewriter.RootName)
	assert.Equal(t, 0, doc.Find("a").Length())
	broken := doc.Find("b.mirror-broken")
	require.Equal(t, 1, broken.Length())
	assert.Contains(t, broken.Text(), missing)
	assert.Equal(t, 1, h.rw.Stats().Fallbacks[handler.Broken])

	entry, ok := h.cache.Lookup(missing)
	require.True(t, ok)
	assert.Equal(t, triage.Failed, entry.State)
}

func TestMirrorRoot_FrameToVideoIsReplacedByMedia(t *testing.T) {
	t.Parallel()

	const base = "https://site.example/"
	const clip = "https://site.example/clip.mp4"
	s := newSite(map[string]string{
		base: page(`<iframe src="clip.mp4"></iframe>`),
		clip: "mp4",
	})
	h := newHarness(t, s, rewriter.Options{})

	_, err := h.rw.MirrorRoot(context.Background(), base)
	require.NoError(t, err)

	doc := h.document(t, rewriter.RootName)
	assert.Equal(t, 0, doc.Find("iframe").Length())
	assert.Equal(t, 0, doc.Find(".mirror-fallback").Length())
	want := archive.Ref(archive.DirVideos, urlresolve.Filename(clip, ".mp4"))
	assert.Equal(t, want, doc.Find("video > source").AttrOr("src", ""))
	assert.True(t, h.writer.Contains(want))
}

func TestMirrorRoot_SelfLinkReusesRootEntry(t *testing.T) {
	t.Parallel()

	const base = "https://site.example/home"
	s := newSite(map[string]string{
		base: page(`<a href="https://site.example/home">home</a><a href="https://site.example/home#news">news</a>`),
	})
	h := newHarness(t, s, rewriter.Options{FollowLinks: true})

	ref, err := h.rw.MirrorRoot(context.Background(), base)
	require.NoError(t, err)

	links := h.document(t, ref).Find("a")
	assert.Equal(t, rewriter.RootName, links.First().AttrOr("href", ""))
	assert.Equal(t, rewriter.RootName+"#news", links.Last().AttrOr("href", ""))
	assert.Equal(t, []string{rewriter.RootName}, h.writer.Entries())
	assert.Equal(t, 1, s.readCount(base))

	again, err := h.rw.MirrorRoot(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, rewriter.RootName, again)
	assert.Equal(t, 1, s.readCount(base))
}

func TestMirrorRoot_CycleTerminates(t *testing.T) {
	t.Parallel()

	const root = "https://site.example/a"
	const other = "https://site.example/b"
	s := newSite(map[string]string{
		root:  page(`<a href="/b">to b</a>`),
		other: page(`<a href="/a">to a</a><a href="/b">self</a>`),
	})
	h := newHarness(t, s, rewriter.Options{FollowLinks: true})

	_, err := h.rw.MirrorRoot(context.Background(), root)
	require.NoError(t, err)

	otherRef := urlresolve.Filename(other, handler.SubDocumentExt)
	assert.ElementsMatch(t, []string{rewriter.RootName, otherRef}, h.writer.Entries())
	assert.Equal(t, otherRef, h.document(t, rewriter.RootName).Find("a").AttrOr("href", ""))

	links := h.document(t, otherRef).Find("a")
	assert.Equal(t, rewriter.RootName, links.First().AttrOr("href", ""))
	assert.Equal(t, otherRef, links.Last().AttrOr("href", ""))
	assert.Equal(t, 1, s.readCount(root))
	assert.Equal(t, 1, s.readCount(other))
}

func TestMirrorRoot_FallbackTotality(t *testing.T) {
	t.Parallel()

	const base = "https://site.example/"
	s := newSite(map[string]string{
		base: page(`<img src="/missing.png">` +
			`<embed src="/movie.swf">` +
			`<iframe src="/gone"></iframe>` +
			`<a href="https://www.youtube.com/watch?v=1">Watch</a>` +
			`<video src="/missing.mp4"></video>`),
		"https://site.example/movie.swf":    "swf",
		"https://www.youtube.com/watch?v=1": "player",
	})
	h := newHarness(t, s, rewriter.Options{FollowLinks: true})

	_, err := h.rw.MirrorRoot(context.Background(), base)
	require.NoError(t, err)

	doc := h.document(t, rewriter.RootName)
	for _, sel := range []string{"img", "embed", "iframe", "a", "video"} {
		assert.Equal(t, 0, doc.Find(sel).Length(), sel)
	}
	assert.Equal(t, 3, doc.Find("b.mirror-broken").Length())
	assert.Equal(t, 1, doc.Find(".mirror-fallback").Length())
	assert.Equal(t, 1, doc.Find("span.mirror-link").Length())

	stats := h.rw.Stats()
	assert.Equal(t, 3, stats.Fallbacks[handler.Broken])
	assert.Equal(t, 2, stats.Fallbacks[handler.Unscrapable])
}

func TestMirrorRoot_LinksNotFollowed(t *testing.T) {
	t.Parallel()

	const base = "https://site.example/"
	s := newSite(map[string]string{
		base: page(`<a href="/about">About us</a><a href="/team"><img src="/t.png"></a>`),
		"https://site.example/t.png": "png",
	})
	h := newHarness(t, s, rewriter.Options{FollowLinks: false})

	_, err := h.rw.MirrorRoot(context.Background(), base)
	require.NoError(t, err)

	doc := h.document(t, rewriter.RootName)
	assert.Equal(t, 0, doc.Find("a").Length())
	assert.Equal(t, "About us", doc.Find("b").First().Text())
	assert.Equal(t, 1, doc.Find("img").Length())
	assert.Equal(t, 0, s.readCount("https://site.example/about"))
}

func TestMirrorRoot_MailtoAndLicenseLinks(t *testing.T) {
	t.Parallel()

	const base = "https://site.example/"
	s := newSite(map[string]string{
		base: page(`<p><a href="mailto:a@site.example">Write us</a></p>` +
			`<p><a href="https://creativecommons.org/licenses/by/4.0/">CC BY</a></p>`),
	})
	h := newHarness(t, s, rewriter.Options{FollowLinks: true})

	_, err := h.rw.MirrorRoot(context.Background(), base)
	require.NoError(t, err)

	doc := h.document(t, rewriter.RootName)
	assert.Equal(t, 0, doc.Find("a").Length())
	assert.Equal(t, "Write us", doc.Find("p").First().Text())
	assert.Equal(t, "CC BY", doc.Find("p b").Text())
}

func TestMirrorRoot_RewritesStylesheets(t *testing.T) {
	t.Parallel()

	const base = "https://site.example/"
	const css = "https://site.example/static/site.css"
	const bg = "https://site.example/static/bg.png"
	s := newSite(map[string]string{
		base: `<html><head><link rel="stylesheet" href="/static/site.css">` +
			`<link rel="stylesheet" href="https://fonts.example/css">` +
			`<link rel="icon" href="/favicon.ico"></head><body></body></html>`,
		css: `body { background: url("bg.png"); } .x { background: url(data:image/png;base64,AAAA); }`,
		bg:  "png",
	})
	h := newHarness(t, s, rewriter.Options{})

	_, err := h.rw.MirrorRoot(context.Background(), base)
	require.NoError(t, err)

	links := h.document(t, rewriter.RootName).Find("link")
	require.Equal(t, 1, links.Length())
	cssRef := archive.Ref(archive.DirCSS, urlresolve.Filename(css, ".css"))
	assert.Equal(t, cssRef, links.AttrOr("href", ""))

	data, err := os.ReadFile(filepath.Join(h.root, filepath.FromSlash(cssRef)))
	require.NoError(t, err)
	assert.Contains(t, string(data), "url('"+urlresolve.Filename(bg, "")+"')")
	assert.Contains(t, string(data), "data:image/png;base64,AAAA")
	assert.True(t, h.writer.Contains(archive.Ref(archive.DirCSS, urlresolve.Filename(bg, ""))))
}

func TestRewriteCSS_PointsAtExistingArchiveEntries(t *testing.T) {
	t.Parallel()

	const img = "https://site.example/img/logo.png"
	s := newSite(map[string]string{img: "png"})
	h := newHarness(t, s, rewriter.Options{})

	// The image was already archived by an <img> elsewhere in the run.
	_, created := h.cache.GetOrCreate(img, "")
	require.True(t, created)
	require.NoError(t, h.cache.Complete(img, "img/logo.png"))

	out := h.rw.RewriteCSS(context.Background(), "https://site.example/css/a.css", `h1 { background: url('../img/logo.png'); }`)
	assert.Equal(t, `h1 { background: url('../img/logo.png'); }`, out)
	assert.Equal(t, 0, s.readCount(img))
}

func TestMirrorRoot_ScriptsAndMedia(t *testing.T) {
	t.Parallel()

	const base = "https://site.example/"
	const app = "https://site.example/app.js"
	const song = "https://site.example/song.mp3"
	s := newSite(map[string]string{
		base: `<html><head><script src="/app.js"></script>` +
			`<script src="https://www.googletagmanager.com/gtag/js"></script>` +
			`<script src="/missing.js"></script></head><body>` +
			`<audio><source src="/song.mp3"><source src="/song-missing.ogg"></audio>` +
			`</body></html>`,
		app:  "console.log(1)",
		song: "mp3",
	})
	h := newHarness(t, s, rewriter.Options{})

	_, err := h.rw.MirrorRoot(context.Background(), base)
	require.NoError(t, err)

	doc := h.document(t, rewriter.RootName)
	scripts := doc.Find("script")
	require.Equal(t, 1, scripts.Length())
	assert.Equal(t, archive.Ref(archive.DirJS, urlresolve.Filename(app, ".js")), scripts.AttrOr("src", ""))

	audio := doc.Find("audio")
	assert.Equal(t, "controls", audio.AttrOr("controls", ""))
	assert.Equal(t, "auto", audio.AttrOr("preload", ""))
	sources := audio.Find("source")
	require.Equal(t, 1, sources.Length())
	assert.Equal(t, archive.Ref(archive.DirAudio, urlresolve.Filename(song, ".mp3")), sources.AttrOr("src", ""))
}

func TestMirrorRoot_MainArea(t *testing.T) {
	t.Parallel()

	const base = "https://site.example/"
	s := newSite(map[string]string{
		base: page(`<nav><a href="/x">nav</a></nav><div id="content"><p>keep</p></div><footer>drop</footer>`),
	})
	h := newHarness(t, s, rewriter.Options{MainArea: "#content"})

	_, err := h.rw.MirrorRoot(context.Background(), base)
	require.NoError(t, err)

	body := h.document(t, rewriter.RootName).Find("body")
	assert.Equal(t, 1, body.Children().Length())
	assert.Equal(t, "keep", strings.TrimSpace(body.Text()))
	assert.Equal(t, 0, s.readCount("https://site.example/x"))
}

func TestMirrorRoot_SiteRulesOmitElements(t *testing.T) {
	t.Parallel()

	const base = "https://www.site.example/"
	s := newSite(map[string]string{
		base: page(`<div class="ad"><img src="/ad.png"></div><p>text</p>`),
	})
	rules := sites.NewRules(sites.Rule{Host: "site.example", Omit: []string{".ad"}})
	h := newHarness(t, s, rewriter.Options{Sites: rules})

	_, err := h.rw.MirrorRoot(context.Background(), base)
	require.NoError(t, err)

	assert.Equal(t, 0, h.document(t, rewriter.RootName).Find(".ad").Length())
	assert.Equal(t, 0, s.readCount("https://www.site.example/ad.png"))
}

func TestMirrorRoot_PartialNoticeOnSubDocuments(t *testing.T) {
	t.Parallel()

	const root = "https://site.example/"
	const sub = "https://site.example/sub"
	s := newSite(map[string]string{
		root: page(`<a href="/sub">sub</a><img src="/missing.png">`),
		sub:  page(`<img src="/missing.png">`),
	})
	h := newHarness(t, s, rewriter.Options{FollowLinks: true, PartialNotice: true})

	_, err := h.rw.MirrorRoot(context.Background(), root)
	require.NoError(t, err)

	subDoc := h.document(t, urlresolve.Filename(sub, handler.SubDocumentExt))
	assert.Equal(t, 1, subDoc.Find(".mirror-fallback").Length())
	assert.Equal(t, 0, h.document(t, rewriter.RootName).Find(".mirror-fallback").Length())
	assert.Equal(t, 1, s.readCount("https://site.example/missing.png"))
}

func TestMirrorRoot_PrefetchesLeavesOnce(t *testing.T) {
	t.Parallel()

	const base = "https://site.example/"
	pages := map[string]string{}
	var body strings.Builder
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		url := "https://site.example/" + name + ".png"
		pages[url] = name
		body.WriteString(`<img src="/` + name + `.png"><img src="` + url + `">`)
	}
	pages[base] = page(body.String())
	s := newSite(pages)
	h := newHarness(t, s, rewriter.Options{LeafConcurrency: 4})

	_, err := h.rw.MirrorRoot(context.Background(), base)
	require.NoError(t, err)

	for url := range pages {
		assert.Equal(t, 1, s.readCount(url), url)
	}
	doc := h.document(t, rewriter.RootName)
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		assert.True(t, strings.HasPrefix(sel.AttrOr("src", ""), archive.DirImages+"/"))
	})
	assert.Len(t, h.writer.Entries(), 7)
}

func TestMirrorRoot_CancelledContext(t *testing.T) {
	t.Parallel()

	s := newSite(map[string]string{"https://site.example/": page("")})
	h := newHarness(t, s, rewriter.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.rw.MirrorRoot(ctx, "https://site.example/")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.writer.Entries())
}

func TestMirrorRoot_UnreachableRoot(t *testing.T) {
	t.Parallel()

	h := newHarness(t, newSite(map[string]string{}), rewriter.Options{})

	_, err := h.rw.MirrorRoot(context.Background(), "https://site.example/")
	require.Error(t, err)
	assert.Equal(t, handler.Broken, handler.Classify(err))
	assert.Equal(t, 404, fetch.StatusCode(err))
}

func TestMirrorRoot_ForeignPagesAreNotMirrored(t *testing.T) {
	t.Parallel()

	const base = "https://site.example/"
	const other = "https://other.example/"
	s := newSite(map[string]string{
		base:  page(`<a href="https://other.example/">Partner</a>`),
		other: page(`<a href="https://third.example/">onwards</a>`),
	})
	h := newHarness(t, s, rewriter.Options{FollowLinks: true})

	_, err := h.rw.MirrorRoot(context.Background(), base)
	require.NoError(t, err)

	assert.Equal(t, 0, s.readCount(other))
	assert.Equal(t, 1, s.probeCount(other))
	assert.Equal(t, 0, s.readCount("https://third.example/"))
	assert.Equal(t, []string{rewriter.RootName}, h.writer.Entries())

	link := h.document(t, rewriter.RootName).Find("span.mirror-link")
	require.Equal(t, 1, link.Length())
	assert.Equal(t, "Partner", link.Find("b").Text())
	assert.Contains(t, link.Text(), other)
}

func TestMirrorRoot_NonWebSchemesAreLeftAlone(t *testing.T) {
	t.Parallel()

	const base = "https://site.example/a/"
	s := newSite(map[string]string{
		base: page(`<a href="tel:+15551234">Call us</a>` +
			`<a href="sms:+15551234">Text us</a>` +
			`<iframe src="about:blank"></iframe>` +
			`<a href="data:text/plain,hi">inline</a>`),
	})
	h := newHarness(t, s, rewriter.Options{FollowLinks: true})

	_, err := h.rw.MirrorRoot(context.Background(), base)
	require.NoError(t, err)

	doc := h.document(t, rewriter.RootName)
	assert.Equal(t, "tel:+15551234", doc.Find("a").First().AttrOr("href", ""))
	assert.Equal(t, "about:blank", doc.Find("iframe").AttrOr("src", ""))
	assert.Equal(t, 4, doc.Find("a, iframe").Length())
	assert.Equal(t, 0, doc.Find("b.mirror-broken").Length())
	assert.Equal(t, 1, s.readCount(base))
	assert.Equal(t, 0, s.readCount("https://site.example/a/tel:+15551234"))
}

func TestMirrorRoot_UnfollowedLinkKeepsLabel(t *testing.T) {
	t.Parallel()

	const base = "https://site.example/"
	s := newSite(map[string]string{
		base: page(`<p><a href="/docs"><span class="icon"></span><span>Docs</span></a></p>`),
	})
	h := newHarness(t, s, rewriter.Options{FollowLinks: false})

	_, err := h.rw.MirrorRoot(context.Background(), base)
	require.NoError(t, err)

	doc := h.document(t, rewriter.RootName)
	assert.Equal(t, 0, doc.Find("a").Length())
	assert.Equal(t, "Docs", doc.Find("p > b").Text())
	assert.Equal(t, 0, s.readCount("https://site.example/docs"))
}

func TestMirrorRoot_ReferenceToDocumentInProgressFallsBack(t *testing.T) {
	t.Parallel()

	const base = "https://site.example/a"
	s := newSite(map[string]string{
		base: page(`<img src="/a">`),
	})
	h := newHarness(t, s, rewriter.Options{})

	_, err := h.rw.MirrorRoot(context.Background(), base)
	require.NoError(t, err)

	doc := h.document(t, rewriter.RootName)
	assert.Equal(t, 0, doc.Find("img").Length())
	assert.Equal(t, 1, doc.Find("b.mirror-broken").Length())
	assert.Equal(t, 1, s.readCount(base))
}
