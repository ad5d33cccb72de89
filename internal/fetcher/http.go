package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/digest-cli/internal/resilience"
)

// maxBodyBytes caps a downloaded document.
const maxBodyBytes = 10 << 20

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	Retry     resilience.RetryConfig
	// Limiters maps hosts to adaptive limiters. Unknown hosts get a fresh
	// limiter at DefaultRate on first use.
	Limiters    map[string]*AdaptiveLimiter
	DefaultRate rate.Limit
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("adaptive rate limit: reducing rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher using net/http with retry and rate limiting.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "digest-cli/1.0"
	}
	if opts.DefaultRate == 0 {
		opts.DefaultRate = 5
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	limiters := make(map[string]*AdaptiveLimiter, len(opts.Limiters))
	for k, v := range opts.Limiters {
		limiters[k] = v
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: limiters,
	}
}

// limiterFor returns the limiter for the URL's host, creating one on first
// use.
func (f *HTTPFetcher) limiterFor(rawURL string) *AdaptiveLimiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = NewAdaptiveLimiter(f.opts.DefaultRate, max(1, int(f.opts.DefaultRate)))
		f.limiters[host] = lim
	}
	return lim
}

type fetched struct {
	body   []byte
	etag   string
	status int
}

// get performs one rate-limited GET with retries. 304 is returned as a
// status, not an error.
func (f *HTTPFetcher) get(ctx context.Context, rawURL, etag string) (fetched, error) {
	lim := f.limiterFor(rawURL)

	cfg := f.opts.Retry
	cfg.OnRetry = resilience.LogRetry("fetcher", "download")
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (fetched, error) {
		if err := lim.Wait(ctx); err != nil {
			return fetched{}, eris.Wrap(err, "rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fetched{}, eris.Wrap(err, "create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return fetched{}, eris.Wrap(err, "fetch")
		}
		defer resp.Body.Close() //nolint:errcheck

		switch {
		case resp.StatusCode == http.StatusNotModified:
			lim.OnSuccess()
			return fetched{etag: etag, status: resp.StatusCode}, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lim.OnRateLimit()
			return fetched{}, &resilience.StatusError{Service: "fetcher", Code: resp.StatusCode}
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fetched{}, &resilience.StatusError{Service: "fetcher", Code: resp.StatusCode, Body: string(body)}
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fetched{}, eris.Wrap(err, "read body")
		}
		lim.OnSuccess()
		return fetched{body: body, etag: resp.Header.Get("ETag"), status: resp.StatusCode}, nil
	})
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) ([]byte, error) {
	res, err := f.get(ctx, rawURL, "")
	if err != nil {
		return nil, eris.Wrapf(err, "download %s", rawURL)
	}
	return res.body, nil
}

// DownloadIfChanged fetches the URL only if the ETag has changed.
func (f *HTTPFetcher) DownloadIfChanged(ctx context.Context, rawURL, etag string) ([]byte, string, bool, error) {
	res, err := f.get(ctx, rawURL, etag)
	if err != nil {
		return nil, "", false, eris.Wrapf(err, "download if changed %s", rawURL)
	}
	if res.status == http.StatusNotModified {
		return nil, etag, false, nil
	}
	return res.body, res.etag, true, nil
}
