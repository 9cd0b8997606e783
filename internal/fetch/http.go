package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/infrastructure/retry"
)

const defaultMaxBodyBytes = 200 << 20

// ErrBodyTooLarge is returned when a response exceeds the configured limit.
var ErrBodyTooLarge = errors.New("fetch: response body too large")

// HTTPOptions configures an HTTPReader.
type HTTPOptions struct {
	Client       *http.Client
	Retry        retry.Config
	MaxBodyBytes int64
	Logger       logger.Logger
}

// HTTPReader reads URLs with a plain HTTP client, retrying transient failures.
type HTTPReader struct {
	client  *http.Client
	retry   retry.Config
	maxBody int64
	log     logger.Logger
}

// NewHTTPReader creates an HTTPReader. Zero options use defaults.
func NewHTTPReader(opts HTTPOptions) *HTTPReader {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}

	cfg := opts.Retry
	if cfg.IsRetryable == nil {
		cfg.IsRetryable = isRetryable
	}

	return &HTTPReader{
		client:  opts.Client,
		retry:   cfg.WithDefaults(),
		maxBody: opts.MaxBodyBytes,
		log:     opts.Logger,
	}
}

func isRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Temporary()
	}
	return retry.DefaultIsRetryable(err)
}

// Read implements Reader.
func (r *HTTPReader) Read(ctx context.Context, url string, loadScripts bool) ([]byte, error) {
	if loadScripts {
		r.log.Debug("Script execution not available, reading static markup", logger.String("url", url))
	}

	var body []byte
	err := retry.Retry(ctx, r.retry, func() error {
		var getErr error
		body, getErr = r.get(ctx, url)
		return getErr
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (r *HTTPReader) get(ctx context.Context, url string) ([]byte, error) {
	resp, err := r.do(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}
	if int64(len(body)) > r.maxBody {
		return nil, fmt.Errorf("%w: %s", ErrBodyTooLarge, url)
	}

	return body, nil
}

// Probe implements Prober with a HEAD request, falling back to GET when the
// server rejects HEAD.
func (r *HTTPReader) Probe(ctx context.Context, url string) error {
	resp, err := r.do(ctx, http.MethodHead, url)
	if err == nil {
		_ = resp.Body.Close()
		return nil
	}

	status := StatusCode(err)
	if status != http.StatusMethodNotAllowed && status != http.StatusNotImplemented {
		return err
	}

	resp, err = r.do(ctx, http.MethodGet, url)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (r *HTTPReader) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", url, err)
	}

	resp, err := r.client.Do(req) //nolint:gosec // G107: URL comes from the mirrored document
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode}
	}

	return resp, nil
}
