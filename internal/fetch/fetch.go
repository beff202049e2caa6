// Package fetch downloads remote documents (requirement files, package
// metadata) with bounded retries.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 10
)

// StatusError reports a non-200 HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Client performs GET requests, retrying transient failures with backoff.
type Client struct {
	HTTP    *http.Client
	Backoff wait.Backoff
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.HTTP.Timeout = d
	}
}

// WithRetries sets how many times a failed request is retried; 0 disables retries.
func WithRetries(n int) Option {
	return func(c *Client) {
		c.Backoff.Steps = n + 1
	}
}

func WithBackoff(b wait.Backoff) Option {
	return func(c *Client) {
		c.Backoff = b
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.HTTP = h
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		HTTP: &http.Client{Timeout: defaultTimeout},
		Backoff: wait.Backoff{
			Steps:    defaultRetries + 1,
			Duration: 500 * time.Millisecond,
			Factor:   2.0,
			Jitter:   0.1,
			Cap:      10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the body of url.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	logger := log.FromContext(ctx).WithValues("url", url)
	var body []byte
	attempt := 0
	err := retry.OnError(c.Backoff, func(err error) bool {
		return ctx.Err() == nil && retriable(err)
	}, func() error {
		attempt++
		b, err := c.get(ctx, url)
		if err != nil {
			logger.V(1).Info("fetch failed", "attempt", attempt, "error", err.Error())
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}
	return body, nil
}

func retriable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
