package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/wildfire-exposure/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// RatePerSec limits requests per host; <= 0 disables limiting.
	RatePerSec float64
	Retry      resilience.Policy
}

// HTTPFetcher downloads over HTTP(S) with per-host rate limiting and
// retries on transient failures.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "wildfire-exposure/1.0"
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: opts.Timeout, Transport: transport},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (f *HTTPFetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		limit := rate.Inf
		if f.opts.RatePerSec > 0 {
			limit = rate.Limit(f.opts.RatePerSec)
		}
		lim = rate.NewLimiter(limit, 1)
		f.limiters[host] = lim
	}
	return lim
}

// StatusError is a non-200 reply. Busy and overloaded replies are retried.
type StatusError struct {
	Code int
	Host string
}

func (e *StatusError) Error() string { return fmt.Sprintf("http %d from %s", e.Code, e.Host) }

// Retryable implements resilience.Classifier.
func (e *StatusError) Retryable() bool { return resilience.RetryableHTTPStatus(e.Code) }

// DownloadToFile implements Fetcher.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL, path string) (int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, eris.Wrapf(err, "fetch: parse url %q", rawURL)
	}
	policy := f.opts.Retry
	policy.Label = rawURL
	n, err := resilience.Retry(ctx, policy, func(ctx context.Context) (int64, error) {
		return f.fetchOnce(ctx, u, path)
	})
	if err != nil {
		return 0, eris.Wrapf(err, "fetch: download %s", rawURL)
	}
	return n, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, u *url.URL, path string) (int64, error) {
	if err := f.limiterFor(u.Host).Wait(ctx); err != nil {
		return 0, eris.Wrap(err, "rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{Code: resp.StatusCode, Host: u.Host}
	}

	zap.L().Debug("fetch: downloading",
		zap.String("url", u.String()),
		zap.Int64("content_length", resp.ContentLength),
	)
	return writeAtomic(path, resp.Body, nil)
}
