// Package degrade renders the fallback fragments substituted for resources
// that cannot be mirrored.
package degrade

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/language"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
)

// DefaultColor is used for fallback headers and copy buttons.
const DefaultColor = "rgb(153, 97, 137)"

// SkipClass marks generated nodes the rewriter must not process.
const SkipClass = "skip-scrape"

const funcNameLen = 15

var letters = regexp.MustCompile(`[a-zA-Z]+`)

// ProbeFunc reports whether a URL answers.
type ProbeFunc func(ctx context.Context, url string) error

// Options configures a Generator.
type Options struct {
	Locale  string
	Color   string
	Locales Locales
	Probe   ProbeFunc
	Logger  logger.Logger
}

// Generator renders fallback fragments for one locale.
type Generator struct {
	locale   string
	messages Messages
	fallback Messages
	color    string
	probe    ProbeFunc
	log      logger.Logger
}

// NewGenerator creates a Generator. The requested locale is matched against
// the available tables, so "es-UY" selects "es".
func NewGenerator(opts Options) *Generator {
	if opts.Locales == nil {
		opts.Locales = DefaultLocales()
	}
	if opts.Color == "" {
		opts.Color = DefaultColor
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}

	locale := MatchLocale(opts.Locales, opts.Locale)

	return &Generator{
		locale:   locale,
		messages: opts.Locales[locale],
		fallback: DefaultLocales()[DefaultLocale],
		color:    opts.Color,
		probe:    opts.Probe,
		log:      opts.Logger,
	}
}

// MatchLocale picks the best available locale for requested.
func MatchLocale(locales Locales, requested string) string {
	if _, ok := locales[requested]; ok {
		return requested
	}

	available := make([]string, 0, len(locales))
	for tag := range locales {
		available = append(available, tag)
	}
	sort.Strings(available)

	// The default locale goes first so the matcher falls back to it.
	tags := []language.Tag{language.Make(DefaultLocale)}
	names := []string{DefaultLocale}
	for _, name := range available {
		if name == DefaultLocale {
			continue
		}
		tags = append(tags, language.Make(name))
		names = append(names, name)
	}

	desired, _, err := language.ParseAcceptLanguage(requested)
	if err != nil || len(desired) == 0 {
		return DefaultLocale
	}

	_, index, _ := language.NewMatcher(tags).Match(desired...)
	return names[index]
}

// Locale returns the selected locale.
func (g *Generator) Locale() string { return g.locale }

// Color returns the configured accent color.
func (g *Generator) Color() string { return g.color }

// Message returns the text for key, falling back to English.
func (g *Generator) Message(key string) string {
	if msg, ok := g.messages[key]; ok {
		return msg
	}
	return g.fallback[key]
}

// SlideLabel returns the label for the one-based slide number n.
func (g *Generator) SlideLabel(n int) string {
	return fmt.Sprintf(g.Message(KeySlide), n)
}

var brokenTmpl = template.Must(template.New("broken").Parse(
	`<b class="mirror-broken" style="{{.Style}}">{{.Message}} ({{.URL}})</b>`))

var copyTmpl = template.Must(template.New("copy").Parse(
	`<div class="mirror-fallback" style="text-align: center;">` +
		`{{if .Header}}<p style="{{.HeaderStyle}}">{{.Header}}</p>{{end}}` +
		`<p style="font-weight: bold;margin-bottom: 10px;color: #555;margin-top:5px;">{{.Subheader}}</p>` +
		`<p><input type="text" value="{{.URL}}" readonly="readonly" id="{{.ID}}" ` +
		`style="width: 250px; max-width: 100vw;text-align: center;font-size: 12pt;background-color: #EDEDED;` +
		`border: none;padding: 10px;color: #555;outline:none;"/>` +
		`<button id="btn-{{.ID}}" onclick="{{.Func}}()" style="{{.ButtonStyle}}">{{.Button}}</button></p>` +
		`<script class="` + SkipClass + `">function {{.Func}}(){` +
		` let text = document.getElementById({{.ID}});` +
		` let button = document.getElementById({{.ButtonID}});` +
		` text.select();` +
		` try { document.execCommand('copy'); button.innerHTML = {{.Success}}; }` +
		` catch (e) { button.innerHTML = {{.Failed}}; }` +
		` if (window.getSelection) { window.getSelection().removeAllRanges(); }` +
		` setTimeout(() => { button.innerHTML = {{.Button}}; }, 2500);` +
		`}</script></div>`))

var linkTmpl = template.Must(template.New("link").Parse(
	`<span class="mirror-link"><b>{{.Label}}</b> ({{.URL}})</span>`))

type copyData struct {
	Header      string
	HeaderStyle template.CSS
	Subheader   string
	URL         string
	ID          string
	ButtonID    string
	Func        template.JS
	ButtonStyle template.CSS
	Button      string
	Success     string
	Failed      string
}

// Broken renders a bold colored inline message naming url.
func (g *Generator) Broken(url string) *html.Node {
	return g.render(brokenTmpl, struct {
		Style   template.CSS
		Message string
		URL     string
	}{
		Style:   template.CSS("color: " + g.color + ";"),
		Message: g.Message(KeyBrokenLink),
		URL:     url,
	})
}

// Unscrapable renders a block with a read-only, copyable textbox holding url.
func (g *Generator) Unscrapable(url string) *html.Node {
	return g.copyBlock(url, g.Message(KeyNotSupported), g.Message(KeyCopyText))
}

// Partial renders the notice prepended to documents that mirrored with at
// least one fallback.
func (g *Generator) Partial(url string) *html.Node {
	return g.copyBlock(url, g.Message(KeyPartiallySupported), g.Message(KeyPartiallySupportedCopyText))
}

// InlineLink renders a link that cannot be followed as its label plus the
// original URL.
func (g *Generator) InlineLink(label, url string) *html.Node {
	return g.render(linkTmpl, struct{ Label, URL string }{Label: label, URL: url})
}

// Unrecognized probes url. A reachable URL renders as Unscrapable and an
// unreachable one as Broken. reachable reports which was chosen. Without a
// probe the URL is assumed reachable.
func (g *Generator) Unrecognized(ctx context.Context, url string) (node *html.Node, reachable bool) {
	if g.probe != nil {
		if err := g.probe(ctx, url); err != nil {
			g.log.Debug("Unrecognized resource is unreachable",
				logger.String("url", url),
				logger.Error(err))
			return g.Broken(url), false
		}
	}
	return g.Unscrapable(url), true
}

// ElementID returns the textbox id used for url: its ASCII letters.
func ElementID(url string) string {
	return strings.Join(letters.FindAllString(url, -1), "")
}

func (g *Generator) copyBlock(url, header, subheader string) *html.Node {
	id := ElementID(url)
	fn := id
	if len(fn) > funcNameLen {
		fn = fn[len(fn)-funcNameLen:]
	}
	if fn == "" {
		fn = "copyLink"
	}

	return g.render(copyTmpl, copyData{
		Header:      header,
		HeaderStyle: template.CSS("font-size: 12pt;margin-bottom: 0px;color: " + g.color + ";font-weight: bold;"),
		Subheader:   subheader,
		URL:         url,
		ID:          id,
		ButtonID:    "btn-" + id,
		Func:        template.JS(fn),
		ButtonStyle: template.CSS("display: inline-block;cursor: pointer;min-width: 64px;max-width: 100%;" +
			"min-height: 36px;padding: 0 16px;margin: 8px;overflow: hidden;font-size: 14px;font-weight: bold;" +
			"line-height: 36px;text-align: center;text-decoration: none;text-transform: uppercase;" +
			"white-space: nowrap;user-select: none;border: 0;border-radius: 2px;outline: none;" +
			"background-color:" + g.color + ";color:white;"),
		Button:  g.Message(KeyCopyButton),
		Success: g.Message(KeyCopySuccess),
		Failed:  g.Message(KeyCopyError),
	})
}

var bodyContext = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

// render executes tmpl and parses the result into a detached element.
func (g *Generator) render(tmpl *template.Template, data any) *html.Node {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		g.log.Error("Failed to render fallback", logger.String("template", tmpl.Name()), logger.Error(err))
		return textNode(fmt.Sprint(data))
	}

	nodes, err := html.ParseFragment(&buf, bodyContext)
	if err != nil || len(nodes) == 0 {
		g.log.Error("Failed to parse fallback", logger.String("template", tmpl.Name()))
		return textNode(buf.String())
	}

	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return n
		}
	}
	return nodes[0]
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}
