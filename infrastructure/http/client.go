// Package http builds the shared outbound HTTP client.
package http

import (
	"crypto/tls"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a whole request including the body read.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxIdleConnsPerHost keeps a few warm connections per mirrored host.
	DefaultMaxIdleConnsPerHost = 10
	// DefaultUserAgent identifies the mirror to remote servers.
	DefaultUserAgent = "NorthCloud-Mirror/1.0"

	defaultMaxIdleConns          = 100
	defaultIdleConnTimeout       = 90 * time.Second
	defaultTLSHandshakeTimeout   = 10 * time.Second
	defaultResponseHeaderTimeout = 20 * time.Second
)

// ClientConfig configures an HTTP client.
type ClientConfig struct {
	Timeout             time.Duration
	MaxIdleConnsPerHost int
	UserAgent           string
	InsecureSkipVerify  bool
}

// NewClient creates an HTTP client with the house transport settings.
// A nil cfg uses the defaults.
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	perHost := cfg.MaxIdleConnsPerHost
	if perHost == 0 {
		perHost = DefaultMaxIdleConnsPerHost
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   perHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed mirrors
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{base: transport, userAgent: userAgent},
	}
}

// userAgentTransport sets a User-Agent on requests that do not carry one.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(clone)
}
