package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 2
	MaxResponseSize   = 10 * 1024 * 1024 // 10MB

	feedAcceptHeader = "application/atom+xml, application/rss+xml, application/rdf+xml, application/feed+json, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"
)

var ErrResponseTooLarge = fmt.Errorf("response too large (exceeds %d bytes)", MaxResponseSize)

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.Code, e.Status)
}

func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// HTTPTransport fetches raw feed documents. Server errors and network
// failures are retried a bounded number of times.
type HTTPTransport struct {
	client     *http.Client
	userAgent  string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	maxBytes   int64
}

type Option func(*HTTPTransport)

func WithTimeout(timeout time.Duration) Option {
	return func(t *HTTPTransport) { t.timeout = timeout }
}

func WithRetries(maxRetries int, delay time.Duration) Option {
	return func(t *HTTPTransport) {
		t.maxRetries = maxRetries
		t.retryDelay = delay
	}
}

func WithMaxBytes(n int64) Option {
	return func(t *HTTPTransport) { t.maxBytes = n }
}

func NewHTTPTransport(userAgent string, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		client:     &http.Client{},
		userAgent:  userAgent,
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		retryDelay: time.Second,
		maxBytes:   MaxResponseSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Fetch returns the body of a successful GET of url.
func (t *HTTPTransport) Fetch(ctx context.Context, url string) ([]byte, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("feed url is empty")
	}

	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			delay := t.retryDelay * time.Duration(1<<uint(attempt-1))
			slog.Debug("Retrying feed fetch", "url", url, "attempt", attempt, "delay", delay.String(), "error", lastErr)

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("failed to fetch feed: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		data, err := t.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if !t.shouldRetry(ctx, err) {
			break
		}
	}

	return nil, lastErr
}

func (t *HTTPTransport) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrResponseTooLarge) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.retryable()
	}
	return true
}

func (t *HTTPTransport) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		timeoutCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", feedAcceptHeader)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > t.maxBytes {
		return nil, ErrResponseTooLarge
	}

	return data, nil
}
