// Package graph is a thin HTTP client for the Instagram Graph API surface
// this application consumes: comments, replies, and the two-step media
// publish flow (create container, poll status, publish).
//
// Every call requires a per-persona access token. Non-2xx responses are
// returned as *APIError carrying the upstream status, the Graph error code,
// and the raw body, so callers can map specific codes (190 = expired or
// invalid token, 9007 = media not ready) to their own error taxonomy.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/chani337/selfstar/internal/config"
)

// Graph error codes with dedicated handling.
const (
	CodeOAuth         = 190  // token invalid or expired
	CodeMediaNotReady = 9007 // container not finished processing yet
)

// Container status values reported by GetContainerStatus.
const (
	StatusFinished   = "FINISHED"
	StatusError      = "ERROR"
	StatusInProgress = "IN_PROGRESS"
)

// APIError is a non-2xx response from the Graph API.
type APIError struct {
	Status  int    // HTTP status
	Code    int    // Graph error code, 0 when absent
	Message string // Graph error message, "" when absent
	Body    string // raw response body, bounded
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("graph api: status=%d code=%d %s", e.Status, e.Code, e.Message)
}

// IsOAuthError reports whether err is a Graph failure with code 190.
func IsOAuthError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == CodeOAuth
}

// IsMediaNotReady reports whether err is the transient "media not ready"
// publish failure (code 9007) that warrants a single retry.
func IsMediaNotReady(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == CodeMediaNotReady
}

// IsAPIError reports whether err carries a Graph API error response.
func IsAPIError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae)
}

// Media is one recent post with its top-level comments.
type Media struct {
	ID       string    `json:"id"`
	Caption  string    `json:"caption"`
	MediaURL string    `json:"media_url"`
	Comments []Comment `json:"comments"`
}

// Comment is one top-level comment on a media object.
type Comment struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Client calls the Graph API. The zero value is not usable; construct with New.
type Client struct {
	base string
	hc   *http.Client
}

// New builds a Client from configuration.
func New(cfg config.GraphConfig) *Client {
	return &Client{
		base: strings.TrimRight(cfg.BaseURL, "/"),
		hc:   &http.Client{Timeout: cfg.Timeout},
	}
}

// CreateComment posts a new top-level comment on mediaID and returns the
// created comment id.
func (c *Client) CreateComment(ctx context.Context, token, mediaID, message string) (string, error) {
	form := url.Values{"message": {message}}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.postForm(ctx, token, "/"+mediaID+"/comments", form, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CreateReply posts a reply under commentID and returns the reply id.
func (c *Client) CreateReply(ctx context.Context, token, commentID, message string) (string, error) {
	form := url.Values{"message": {message}}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.postForm(ctx, token, "/"+commentID+"/replies", form, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CreateMedia creates an unpublished media container for igUserID from a
// public image URL and caption, returning the creation id.
func (c *Client) CreateMedia(ctx context.Context, token, igUserID, imageURL, caption string) (string, error) {
	form := url.Values{
		"image_url": {imageURL},
		"caption":   {caption},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.postForm(ctx, token, "/"+igUserID+"/media", form, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// GetContainerStatus returns the processing status of a media container
// (FINISHED, ERROR, IN_PROGRESS, ...).
func (c *Client) GetContainerStatus(ctx context.Context, token, creationID string) (string, error) {
	u := c.base + "/" + creationID + "?fields=status_code&access_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		StatusCode string `json:"status_code"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.StatusCode, nil
}

// PublishMedia publishes a finished container for igUserID and returns the
// published media id.
func (c *Client) PublishMedia(ctx context.Context, token, igUserID, creationID string) (string, error) {
	form := url.Values{"creation_id": {creationID}}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.postForm(ctx, token, "/"+igUserID+"/media_publish", form, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// RecentMedia fetches up to mediaLimit recent posts for igUserID, each with
// up to commentsLimit top-level comments.
func (c *Client) RecentMedia(ctx context.Context, token, igUserID string, mediaLimit, commentsLimit int) ([]Media, error) {
	fields := fmt.Sprintf("id,caption,media_url,comments.limit(%d){id,text}", commentsLimit)
	u := c.base + "/" + igUserID + "/media?fields=" + url.QueryEscape(fields) +
		"&limit=" + strconv.Itoa(mediaLimit) +
		"&access_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Data []struct {
			ID       string `json:"id"`
			Caption  string `json:"caption"`
			MediaURL string `json:"media_url"`
			Comments struct {
				Data []Comment `json:"data"`
			} `json:"comments"`
		} `json:"data"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	media := make([]Media, 0, len(out.Data))
	for _, m := range out.Data {
		media = append(media, Media{
			ID:       m.ID,
			Caption:  m.Caption,
			MediaURL: m.MediaURL,
			Comments: m.Comments.Data,
		})
	}
	return media, nil
}

func (c *Client) postForm(ctx context.Context, token, path string, form url.Values, out any) error {
	form.Set("access_token", token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

// do executes the request, maps non-2xx to *APIError, and decodes the body
// into out when provided.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, body)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func newAPIError(status int, body []byte) *APIError {
	ae := &APIError{Status: status, Body: string(body)}
	var wrapped struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil {
		ae.Code = wrapped.Error.Code
		ae.Message = wrapped.Error.Message
	}
	return ae
}
