package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/reviewtools/postreview/internal/errors"
)

// ReviewRequest is a newly created (draft) review request on the server.
type ReviewRequest struct {
	ID          int             `json:"id"`
	AbsoluteURL string          `json:"absolute_url"`
	Links       map[string]Link `json:"links"`
}

// DiffsHref returns the link for uploading diffs to this review request.
func (rr *ReviewRequest) DiffsHref() (string, error) {
	link, ok := rr.Links["diffs"]
	if !ok || link.Href == "" {
		return "", fmt.Errorf("%w: review request %d has no diffs link", errors.ErrMalformedRecord, rr.ID)
	}

	return link.Href, nil
}

// CreateReviewRequest creates a draft review request bound to the given
// registry repository.
func (c *Client) CreateReviewRequest(ctx context.Context, repositoryID int) (*ReviewRequest, error) {
	root, err := c.Root(ctx)
	if err != nil {
		return nil, err
	}

	href, err := root.ReviewRequestsHref()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrRegistry, err)
	}

	form := url.Values{}
	form.Set("repository", strconv.Itoa(repositoryID))

	var payload struct {
		ReviewRequest ReviewRequest `json:"review_request"`
	}
	if err := c.postForm(ctx, href, form, &payload); err != nil {
		return nil, err
	}

	c.logger.Debug("Created review request",
		"id", payload.ReviewRequest.ID,
		"url", payload.ReviewRequest.AbsoluteURL,
	)

	return &payload.ReviewRequest, nil
}

// UploadDiff attaches diff content to a review request. baseDir is the
// checkout path relative to the repository root, required by Subversion
// repositories and ignored elsewhere.
func (c *Client) UploadDiff(ctx context.Context, rr *ReviewRequest, diff []byte, baseDir string) error {
	href, err := rr.DiffsHref()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("path", "diff")
	if err != nil {
		return fmt.Errorf("%w: building diff upload: %w", errors.ErrRegistry, err)
	}
	if _, err := part.Write(diff); err != nil {
		return fmt.Errorf("%w: building diff upload: %w", errors.ErrRegistry, err)
	}
	if baseDir != "" {
		if err := writer.WriteField("basedir", baseDir); err != nil {
			return fmt.Errorf("%w: building diff upload: %w", errors.ErrRegistry, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("%w: building diff upload: %w", errors.ErrRegistry, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, href, &buf)
	if err != nil {
		return fmt.Errorf("%w: building request for '%s': %w", errors.ErrRegistry, href, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("POST", "url", href, "diff_bytes", len(diff))

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

	var payload struct{}

	return c.decode(href, resp.StatusCode, body, &payload)
}
