package feed

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

	"github.com/sells-group/radar-cli/internal/resilience"
)

// maxBodyBytes caps a single feed download.
const maxBodyBytes = 10 << 20

// HTTPOptions configures the feed HTTP client.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	Rate      rate.Limit // initial per-host requests per second
	Burst     int
	Backoff   resilience.Backoff
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
	zap.L().Warn("feed: reducing host rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPClient downloads feeds with per-host adaptive rate limiting and retry.
type HTTPClient struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewHTTPClient creates an HTTPClient. Zero options take defaults: 20s
// timeout, 2 requests/second per host, and 3 attempts with 1s..8s backoff.
func NewHTTPClient(opts HTTPOptions) *HTTPClient {
	if opts.Timeout == 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "radar-cli/1.0"
	}
	if opts.Rate <= 0 {
		opts.Rate = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 2
	}
	if opts.Backoff.Attempts == 0 {
		opts.Backoff = resilience.Backoff{
			Attempts: 3,
			Initial:  time.Second,
			Max:      8 * time.Second,
			Factor:   2,
			Jitter:   0.25,
		}
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 4,
		MaxConnsPerHost:     8,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPClient{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

// limiterFor returns the adaptive limiter for the host of rawURL, creating
// it on first use.
func (c *HTTPClient) limiterFor(rawURL string) *AdaptiveLimiter {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = NewAdaptiveLimiter(c.opts.Rate, c.opts.Burst)
		c.limiters[host] = lim
	}
	return lim
}

// Get fetches rawURL and returns the response body. 429 and 5xx responses
// and network errors are retried.
func (c *HTTPClient) Get(ctx context.Context, rawURL string) ([]byte, error) {
	lim := c.limiterFor(rawURL)
	backoff := c.opts.Backoff
	if backoff.OnRetry == nil {
		backoff.OnRetry = func(attempt int, err error) {
			zap.L().Warn("feed: request failed, retrying",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
	}

	return resilience.DoVal(ctx, backoff, func(ctx context.Context) ([]byte, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "feed: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "feed: create request")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(err, "feed: request")
			}
			return nil, resilience.NewTransientError(eris.Wrap(err, "feed: request"), 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "feed: read body"), resp.StatusCode)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lim.OnRateLimit()
		}
		if resp.StatusCode != http.StatusOK {
			return nil, resilience.StatusError("feed", resp.StatusCode, string(body))
		}

		lim.OnSuccess()
		return body, nil
	})
}
