package rewriter

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
)

// DefaultOmit lists elements removed from every document before the walk.
var DefaultOmit = []string{
	"link[type='image/x-icon']",
	"link[rel='apple-touch-icon']",
	"span.external-iframe-src",
	"link[rel='icon']",
}

func (r *Rewriter) normalize(doc *goquery.Document, pageURL string, s pageSettings) {
	for _, sel := range s.omit {
		if sel == "" {
			continue
		}
		doc.Find(sel).Remove()
	}

	if s.mainArea != "" {
		main := doc.Find(s.mainArea).First()
		if main.Length() > 0 {
			isolate(doc, main)
			return
		}
		r.log.Debug("Main area selector did not match",
			logger.String("url", pageURL),
			logger.String("selector", s.mainArea))
	}

	if s.readability {
		r.extractReadable(doc, pageURL)
	}
}

// isolate replaces the body's content with main.
func isolate(doc *goquery.Document, main *goquery.Selection) {
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return
	}
	main.Remove()
	body.Empty()
	body.AppendSelection(main)
}

func (r *Rewriter) extractReadable(doc *goquery.Document, pageURL string) {
	documentHTML, err := doc.Html()
	if err != nil {
		return
	}

	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return
	}

	article, err := readability.FromReader(strings.NewReader(documentHTML), parsedURL)
	if err != nil {
		r.log.Debug("Readability extraction failed",
			logger.String("url", pageURL),
			logger.Error(err))
		return
	}

	content := strings.TrimSpace(article.Content)
	if content == "" {
		return
	}

	body := doc.Find("body").First()
	body.Empty()
	body.AppendHtml(content)
}
