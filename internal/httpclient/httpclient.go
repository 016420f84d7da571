// Package httpclient is the JSON over HTTP transport shared by the backend
// and CSP clients.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"

	"go.vocdoni.io/vaas/log"
	"go.vocdoni.io/vaas/retry"
)

const (
	// DefaultRetries is the number of attempts of an idempotent request on
	// transport failures.
	DefaultRetries = 3
	// DefaultTimeout is the default timeout of a single request.
	DefaultTimeout = 10 * time.Second

	retryWait = 500 * time.Millisecond
	userAgent = "Vocdoni VaaS voter / 1.0"
)

// Client performs JSON requests against a base URL with an optional bearer token.
// It is safe for concurrent use once configured.
type Client struct {
	c       *http.Client
	host    *url.URL
	token   *uuid.UUID
	retries int
}

// New returns a client for the given base URL. The URL path is used as prefix.
func New(host *url.URL, bearerToken *uuid.UUID) *Client {
	tr := &http.Transport{
		IdleConnTimeout:    DefaultTimeout,
		DisableCompression: false,
		WriteBufferSize:    1 * 1024 * 1024, // 1 MiB
		ReadBufferSize:     1 * 1024 * 1024, // 1 MiB
	}
	return &Client{
		c:       &http.Client{Transport: tr, Timeout: DefaultTimeout},
		host:    host,
		token:   bearerToken,
		retries: DefaultRetries,
	}
}

// Host returns the base URL.
func (c *Client) Host() *url.URL { return c.host }

// SetAuthToken configures the bearer authentication token.
func (c *Client) SetAuthToken(token *uuid.UUID) {
	c.token = token
}

// SetRetries configures the number of attempts of GET requests. Other
// methods are never retried.
func (c *Client) SetRetries(n int) {
	c.retries = n
}

// SetTimeout configures the timeout of a single request.
func (c *Client) SetTimeout(d time.Duration) {
	c.c.Timeout = d
	if tr, ok := c.c.Transport.(*http.Transport); ok {
		tr.ResponseHeaderTimeout = d
	}
}

// Request performs a `method` type raw request to the endpoint specified in
// urlPath. If jsonBody is not nil it is sent JSON encoded. Returns the
// response body, the status code and an error.
func (c *Client) Request(ctx context.Context, method string, jsonBody any, urlPath ...string) ([]byte, int, error) {
	attempts := 1
	if method == http.MethodGet {
		attempts = c.retries
	}
	return c.request(ctx, attempts, method, jsonBody, urlPath...)
}

// RequestOnce is Request without transport retries, for callers that run
// their own polling loop.
func (c *Client) RequestOnce(ctx context.Context, method string, jsonBody any, urlPath ...string) ([]byte, int, error) {
	return c.request(ctx, 1, method, jsonBody, urlPath...)
}

func (c *Client) request(ctx context.Context, attempts int, method string, jsonBody any, urlPath ...string) ([]byte, int, error) {
	var body []byte
	if jsonBody != nil {
		var err error
		if body, err = json.Marshal(jsonBody); err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}
	u := *c.host
	u.Path = path.Join(u.Path, path.Join(urlPath...))

	headers := http.Header{}
	headers.Set("User-Agent", userAgent)
	if c.token != nil {
		headers.Set("Authorization", "Bearer "+c.token.String())
	}
	if jsonBody != nil {
		headers.Set("Content-Type", "application/json")
		headers.Set("Accept", "application/json")
	}
	log.Debugf("%s %s", method, &u)

	var (
		data   []byte
		status int
	)
	err := retry.Do(ctx, retry.Constant(retryWait, attempts), func(ctx context.Context, attempt int) error {
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header = headers.Clone()
		resp, err := c.c.Do(req)
		if err != nil {
			log.Warnw("http request failed", "error", err.Error(), "attempt", attempt, "retries", attempts)
			return err
		}
		defer resp.Body.Close()
		if data, err = io.ReadAll(resp.Body); err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		status = resp.StatusCode
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return data, status, nil
}
