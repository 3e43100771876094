package sources

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ppiankov/painpoint/internal/logging"
	"github.com/ppiankov/painpoint/internal/model"
	"github.com/ppiankov/painpoint/internal/worker"
)

const baseBackoff = 500 * time.Millisecond

// Fetcher performs provider calls for every adapter: one token from the
// provider's limiter per attempt, retries on 429 and 5xx, bounded bodies.
type Fetcher struct {
	httpClient *http.Client
	limiter    *worker.Limiter
	logger     *slog.Logger
	userAgent  string
	maxBytes   int64
	maxRetries int

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a Fetcher with the given HTTP settings. A nil limiter
// disables rate limiting.
func NewFetcher(cfg model.HTTPConfig, limiter *worker.Limiter, logger *slog.Logger) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy)

	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		limiter:    limiter,
		logger:     logging.OrDefault(logger),
		userAgent:  cfg.UserAgent,
		maxBytes:   maxBytes,
		maxRetries: maxRetries,
		sleep:      sleepContext,
	}
}

// proxyFunc routes requests through the configured proxies, falling back to
// the environment when neither is set.
func proxyFunc(httpProxy, httpsProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}
	return func(req *http.Request) (*url.URL, error) {
		switch {
		case req.URL.Scheme == "https" && httpsProxy != "":
			return url.Parse(httpsProxy)
		case httpProxy != "":
			return url.Parse(httpProxy)
		default:
			return http.ProxyFromEnvironment(req)
		}
	}
}

// Client returns the underlying HTTP client.
func (f *Fetcher) Client() *http.Client {
	return f.httpClient
}

// UserAgent returns the configured user agent.
func (f *Fetcher) UserAgent() string {
	return f.userAgent
}

// Get fetches rawURL on behalf of source. Failures are *SourceError.
func (f *Fetcher) Get(ctx context.Context, source, rawURL string, header http.Header) ([]byte, error) {
	var lastErr *SourceError

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoff(attempt, lastErr)
			f.logger.Warn("retrying provider call",
				logging.Source(source),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				logging.Error(lastErr))
			if err := f.sleep(ctx, delay); err != nil {
				return nil, newError(source, KindNetwork, err)
			}
		}

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, source); err != nil {
				return nil, newError(source, KindRateLimit, err)
			}
		}

		body, retry, err := f.do(ctx, source, rawURL, header)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry {
			return nil, err
		}
	}

	return nil, lastErr
}

// do performs one attempt and reports whether a failure is worth retrying.
func (f *Fetcher) do(ctx context.Context, source, rawURL string, header http.Header) ([]byte, bool, *SourceError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, newError(source, KindNetwork, fmt.Errorf("create request: %w", err))
	}

	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", f.userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		// Cancellation is not retried.
		return nil, ctx.Err() == nil, newError(source, KindNetwork, fmt.Errorf("fetch: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		se := &SourceError{Source: source, Kind: KindRateLimit, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("rate limited")}
		return nil, true, withRetryAfter(se, resp.Header.Get("Retry-After"))
	case resp.StatusCode >= 500:
		return nil, true, &SourceError{Source: source, Kind: KindStatus, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("unexpected status: %s", resp.Status)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, false, &SourceError{Source: source, Kind: KindStatus, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("unexpected status: %s", resp.Status)}
	}

	// Read one byte past the limit to detect truncation
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, true, newError(source, KindNetwork, fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > f.maxBytes {
		return nil, false, payloadError(source, "response exceeds %d bytes", f.maxBytes)
	}

	return body, false, nil
}

// retryAfterError carries a provider-requested delay.
type retryAfterError struct {
	error
	after time.Duration
}

func (e retryAfterError) Unwrap() error { return e.error }

func withRetryAfter(se *SourceError, header string) *SourceError {
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return se
	}
	se.Err = retryAfterError{error: se.Err, after: time.Duration(secs) * time.Second}
	return se
}

func backoff(attempt int, last *SourceError) time.Duration {
	if last != nil {
		if ra, ok := last.Err.(retryAfterError); ok {
			return ra.after
		}
	}
	return baseBackoff << (attempt - 1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
