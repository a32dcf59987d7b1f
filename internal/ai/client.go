// Package ai is a thin HTTP client for the internal AI generation service.
// It exposes the three endpoints the engagement pipeline consumes: comment
// reply generation, chat image generation, and caption generation.
//
// Image generation gets a longer timeout than the text endpoints. Non-2xx
// responses are returned as *GenerationError with the upstream status and a
// bounded copy of the body.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/chani337/selfstar/internal/config"
)

// GenerationError is a non-2xx response from the AI service.
type GenerationError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("ai service: status=%d", e.Status)
}

// IsGenerationError reports whether err carries a *GenerationError.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}

// ReplyRequest is the payload for comment reply generation.
type ReplyRequest struct {
	PostImg     string `json:"post_img,omitempty"`
	Post        string `json:"post,omitempty"`
	Personality string `json:"personality,omitempty"`
	Text        string `json:"text"`
	PersonaImg  string `json:"persona_img,omitempty"`
}

// ImageRequest is the payload for chat image generation. Persona carries the
// raw persona profile JSON when available.
type ImageRequest struct {
	UserText   string          `json:"user_text"`
	PersonaImg string          `json:"persona_img,omitempty"`
	Persona    json.RawMessage `json:"persona,omitempty"`
}

// Client calls the AI service. Construct with New.
type Client struct {
	base    string
	hc      *http.Client
	imageHC *http.Client
}

// New builds a Client from configuration.
func New(cfg config.AIConfig) *Client {
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		hc:      &http.Client{Timeout: cfg.Timeout},
		imageHC: &http.Client{Timeout: cfg.ImageTimeout},
	}
}

// CommentReply generates a persona-voiced reply to a comment. The result may
// be empty; the caller decides whether that is an error.
func (c *Client) CommentReply(ctx context.Context, req ReplyRequest) (string, error) {
	var out struct {
		Reply string `json:"reply"`
	}
	if err := c.postJSON(ctx, c.hc, "/comment/reply", req, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Reply), nil
}

// ChatImage generates an image for the comment text and returns it as an
// embedded data URI (data:image/...;base64,...).
func (c *Client) ChatImage(ctx context.Context, req ImageRequest) (string, error) {
	var out struct {
		Image string `json:"image"`
	}
	if err := c.postJSON(ctx, c.imageHC, "/chat/image", req, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Image), nil
}

// Caption generates a post caption for the given source text.
func (c *Client) Caption(ctx context.Context, text, personality string) (string, error) {
	req := map[string]string{"text": text}
	if personality != "" {
		req["personality"] = personality
	}
	var out struct {
		Caption string `json:"caption"`
	}
	if err := c.postJSON(ctx, c.hc, "/caption/generate", req, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Caption), nil
}

func (c *Client) postJSON(ctx context.Context, hc *http.Client, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &GenerationError{Status: resp.StatusCode, Body: string(body)}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}
