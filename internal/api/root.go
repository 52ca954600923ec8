package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/reviewtools/postreview/internal/errors"
)

// Link is a hyperlink from one server resource to another.
type Link struct {
	Href   string `json:"href"`
	Method string `json:"method"`
}

// Capabilities exposes the server's capability flags as a nested map.
type Capabilities map[string]any

// Has reports whether the capability at the given key path is explicitly
// true. A partially present path does not count as a capability.
func (c Capabilities) Has(path ...string) bool {
	var cur any = map[string]any(c)

	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return false
		}
		cur, ok = m[key]
		if !ok {
			return false
		}
	}

	enabled, ok := cur.(bool)

	return ok && enabled
}

// Root is the server's root resource: the entry point carrying links to
// every other resource plus the capability flags.
type Root struct {
	Links        map[string]Link `json:"links"`
	Capabilities Capabilities    `json:"capabilities"`
	URITemplates map[string]any  `json:"uri_templates"`
}

// RepositoriesHref returns the link to the repository registry listing.
func (r *Root) RepositoriesHref() (string, error) {
	link, ok := r.Links["repositories"]
	if !ok || link.Href == "" {
		return "", fmt.Errorf("%w: root resource has no repositories link", errors.ErrMalformedRecord)
	}

	return link.Href, nil
}

// ReviewRequestsHref returns the link for creating review requests.
func (r *Root) ReviewRequestsHref() (string, error) {
	link, ok := r.Links["review_requests"]
	if !ok || link.Href == "" {
		return "", fmt.Errorf("%w: root resource has no review_requests link", errors.ErrMalformedRecord)
	}

	return link.Href, nil
}

// Root fetches the server's root resource. When a root cache is configured
// the cached payload is used while fresh; a fetch that succeeds replaces
// the cached entry.
func (c *Client) Root(ctx context.Context) (*Root, error) {
	href := c.baseURL + "api/"

	if c.rootCache != nil {
		if data, ok := c.rootCache.Get(href); ok {
			var root Root
			if err := json.Unmarshal(data, &root); err == nil {
				return &root, nil
			}

			c.logger.Warn("Discarding undecodable cached root resource", "url", href)
		}
	}

	var root Root
	if err := c.get(ctx, href, &root); err != nil {
		return nil, err
	}

	if c.rootCache != nil {
		if data, err := json.Marshal(root); err == nil {
			if err := c.rootCache.Store(href, data); err != nil {
				c.logger.Warn("Failed to cache root resource", "url", href, "error", err)
			}
		}
	}

	return &root, nil
}
