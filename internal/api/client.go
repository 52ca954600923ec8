// Package api implements a client for the repository registry exposed by
// Review Board-compatible review servers. The server speaks a JSON envelope
// format: every payload carries a "stat" field, failures carry an "err"
// object, and collection resources paginate through "links.next" hrefs.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/reviewtools/postreview/internal/cache"
	"github.com/reviewtools/postreview/internal/errors"
)

// RepositoryFieldProjection restricts repository listings to the fields the
// matcher needs, keeping page payloads small.
const RepositoryFieldProjection = "id,name,mirror_path,path"

// Client talks to a single review server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	rootCache  *cache.Cache
	logger     hclog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient replaces the default http.Client. Timeout policy lives on
// the injected client; the api package performs no retries of its own.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithRootCache caches the server's root resource on disk, avoiding a
// round-trip per invocation for the rarely-changing capability/link data.
func WithRootCache(rc *cache.Cache) Option {
	return func(c *Client) error {
		c.rootCache = rc
		return nil
	}
}

// NewClient creates a Client for the review server at baseURL.
func NewClient(logger hclog.Logger, baseURL string, opt ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("empty review server URL is invalid")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid review server URL '%s': %w", baseURL, err)
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		logger:     logger.Named("api"),
	}

	for _, o := range opt {
		if o == nil {
			continue
		}
		if err := o(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// BaseURL returns the normalized server URL the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// apiError is the "err" object inside a failed envelope.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// envelope holds the fields common to every server payload.
type envelope struct {
	Stat string    `json:"stat"`
	Err  *apiError `json:"err"`
}

// get performs a GET against href and decodes the payload into out, which
// must embed the envelope fields. Transport failures, non-2xx statuses and
// stat=fail envelopes all wrap errors.ErrRegistry.
func (c *Client) get(ctx context.Context, href string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return fmt.Errorf("%w: building request for '%s': %w", errors.ErrRegistry, href, err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("GET", "url", href)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrRegistry, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response from '%s': %w", errors.ErrRegistry, href, err)
	}

	return c.decode(href, resp.StatusCode, body, out)
}

// decode unmarshals an envelope payload, surfacing stat=fail or non-2xx
// responses as registry errors.
func (c *Client) decode(href string, status int, body []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if status < 200 || status >= 300 {
			return fmt.Errorf("%w: received HTTP %d from '%s'", errors.ErrRegistry, status, href)
		}

		return fmt.Errorf("%w: unmarshaling response from '%s': %w", errors.ErrRegistry, href, err)
	}

	if env.Stat == "fail" {
		msg := "unknown error"
		code := 0
		if env.Err != nil {
			msg = env.Err.Msg
			code = env.Err.Code
		}

		return fmt.Errorf("%w: API error %d from '%s': %s", errors.ErrRegistry, code, href, msg)
	}

	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: received HTTP %d from '%s'", errors.ErrRegistry, status, href)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: unmarshaling response from '%s': %w", errors.ErrRegistry, href, err)
	}

	return nil
}

// postForm performs a URL-encoded POST against href and decodes the payload
// into out with the same envelope handling as get.
func (c *Client) postForm(ctx context.Context, href string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, href, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: building request for '%s': %w", errors.ErrRegistry, href, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("POST", "url", href)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrRegistry, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response from '%s': %w", errors.ErrRegistry, href, err)
	}

	return c.decode(href, resp.StatusCode, body, out)
}
