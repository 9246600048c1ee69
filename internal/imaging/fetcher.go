// Package imaging fetches note images and turns them into text with OCR.
package imaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/law-makers/rednote/internal/ratelimit"
	"github.com/law-makers/rednote/internal/retry"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
)

const maxImageBytes = 20 << 20

// FetcherOptions configures the HTTP image fetcher
type FetcherOptions struct {
	Timeout   time.Duration
	UserAgent string
	Referer   string
	Limiter   ratelimit.RateLimiter
	Retry     retry.Config
	// Headers are added to every request and override the defaults
	Headers   map[string]string
}

// Fetcher downloads images over HTTP
type Fetcher struct {
	client *http.Client
	opts   FetcherOptions
}

// NewFetcher creates a fetcher with a cookie jar scoped by public suffix
func NewFetcher(opts FetcherOptions) (*Fetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	client := &http.Client{
		Timeout: opts.Timeout,
		Jar:     jar,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Fetcher{client: client, opts: opts}, nil
}

// Get downloads url and returns the body with the final status code. A
// non-200 status is returned without error so callers can decide.
func (f *Fetcher) Get(ctx context.Context, imageURL string) ([]byte, int, error) {
	if _, err := url.ParseRequestURI(imageURL); err != nil {
		return nil, 0, fmt.Errorf("invalid image URL: %w", err)
	}

	var body []byte
	var status int
	err := retry.WithRetry(ctx, f.opts.Retry, func(ctx context.Context) error {
		status = 0
		if f.opts.Limiter != nil {
			if err := f.opts.Limiter.Wait(ctx, imageURL); err != nil {
				return err
			}
		}

		b, code, err := f.do(ctx, imageURL)
		if err != nil {
			return err
		}
		status = code
		if code >= 500 || code == http.StatusTooManyRequests {
			return retry.NewHTTPError(code, http.StatusText(code), imageURL)
		}
		body = b
		return nil
	})
	if err != nil {
		if status != 0 {
			// retries exhausted on a server error: report the status, not a failure
			log.Debug().Err(err).Str("url", imageURL).Int("status", status).Msg("Image fetch gave up")
			return nil, status, nil
		}
		return nil, 0, err
	}
	return body, status, nil
}

func (f *Fetcher) do(ctx context.Context, imageURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}
	if f.opts.Referer != "" {
		req.Header.Set("Referer", f.opts.Referer)
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/png,image/jpeg,*/*;q=0.8")
	for k, v := range f.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, resp.StatusCode, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read body: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, resp.StatusCode, fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}
	return data, resp.StatusCode, nil
}
