package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	colly "github.com/gocolly/colly/v2"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
)

// CollyOptions configures a CollyReader.
type CollyOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
	// CacheDir enables colly's on-disk response cache.
	CacheDir  string
	Transport http.RoundTripper
	Logger    logger.Logger
}

// CollyReader reads URLs through a synchronous colly collector. Each read
// gets a fresh collector so revisits are always allowed.
type CollyReader struct {
	opts CollyOptions
	log  logger.Logger
}

// NewCollyReader creates a CollyReader.
func NewCollyReader(opts CollyOptions) *CollyReader {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &CollyReader{opts: opts, log: opts.Logger}
}

func (r *CollyReader) collector(ctx context.Context) *colly.Collector {
	options := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	}
	if r.opts.UserAgent != "" {
		options = append(options, colly.UserAgent(r.opts.UserAgent))
	}
	if r.opts.MaxBodyBytes > 0 {
		options = append(options, colly.MaxBodySize(r.opts.MaxBodyBytes))
	}
	if r.opts.CacheDir != "" {
		options = append(options, colly.CacheDir(r.opts.CacheDir))
	}

	c := colly.NewCollector(options...)
	if r.opts.Timeout > 0 {
		c.SetRequestTimeout(r.opts.Timeout)
	}
	if r.opts.Transport != nil {
		c.WithTransport(r.opts.Transport)
	}
	return c
}

// Read implements Reader.
func (r *CollyReader) Read(ctx context.Context, url string, loadScripts bool) ([]byte, error) {
	if loadScripts {
		r.log.Debug("Colly cannot execute scripts, reading static markup", logger.String("url", url))
	}

	c := r.collector(ctx)

	var (
		body    []byte
		status  int
		failure error
	)
	c.OnResponse(func(resp *colly.Response) {
		body = resp.Body
		status = resp.StatusCode
	})
	c.OnError(func(resp *colly.Response, err error) {
		failure = err
		if resp != nil {
			status = resp.StatusCode
		}
	})

	visitErr := c.Visit(url)

	if status != 0 && (status < http.StatusOK || status >= http.StatusMultipleChoices) {
		return nil, &HTTPError{URL: url, StatusCode: status}
	}
	if failure != nil {
		return nil, fmt.Errorf("colly fetch %s: %w", url, failure)
	}
	if visitErr != nil {
		return nil, fmt.Errorf("colly visit %s: %w", url, visitErr)
	}

	return body, nil
}
