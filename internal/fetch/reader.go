// Package fetch provides the blocking read primitive used by the mirroring
// engine, along with decorators for caching, robots.txt policy and metrics.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrDisallowed is returned when robots.txt forbids fetching a URL.
var ErrDisallowed = errors.New("fetch: disallowed by robots.txt")

// Reader fetches the body behind a URL. loadScripts asks the implementation to
// let client-side scripts run before the body is captured; readers without a
// script engine ignore it.
//
//go:generate mockgen -destination=mocks/mock_reader.go -package=mocks . Reader
type Reader interface {
	Read(ctx context.Context, url string, loadScripts bool) ([]byte, error)
}

// Prober is implemented by readers that can check reachability without
// downloading the body.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context, url string, loadScripts bool) ([]byte, error)

// Read implements Reader.
func (f ReaderFunc) Read(ctx context.Context, url string, loadScripts bool) ([]byte, error) {
	return f(ctx, url, loadScripts)
}

// HTTPError reports a non-2xx response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Temporary reports whether the status is worth retrying.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// Probe checks that url answers. It uses r's Prober implementation when
// available and otherwise performs a full read.
func Probe(ctx context.Context, r Reader, url string) error {
	if p, ok := r.(Prober); ok {
		return p.Probe(ctx, url)
	}
	_, err := r.Read(ctx, url, false)
	return err
}

// InstrumentedReader reports the duration and outcome of every read.
type InstrumentedReader struct {
	next    Reader
	observe func(d time.Duration, err error)
}

// Instrument wraps next so observe is called after each read.
func Instrument(next Reader, observe func(d time.Duration, err error)) *InstrumentedReader {
	return &InstrumentedReader{next: next, observe: observe}
}

// Read implements Reader.
func (r *InstrumentedReader) Read(ctx context.Context, url string, loadScripts bool) ([]byte, error) {
	start := time.Now()
	body, err := r.next.Read(ctx, url, loadScripts)
	if r.observe != nil {
		r.observe(time.Since(start), err)
	}
	return body, err
}

// Probe implements Prober when the wrapped reader does.
func (r *InstrumentedReader) Probe(ctx context.Context, url string) error {
	return Probe(ctx, r.next, url)
}
