// Instagram engagement HTTP handlers.
//
// This file exposes REST endpoints driving the persona's engagement actions:
//   - POST /instagram/media/{id}/comment       (new top-level comment)
//   - POST /instagram/comments/reply           (manual reply)
//   - POST /instagram/comments/auto_reply      (AI reply, pre-claimed)
//   - POST /instagram/comments/auto_draft      (AI reply text only)
//   - POST /instagram/comments/auto_image      (classify + generate + store)
//   - POST /instagram/comments/reply_bulk      (batched manual replies)
//
// Collaborator failures keep their provenance: AI-service errors surface as
// 502 generation_failed, Graph token expiry as 401 oauth_required, and other
// Graph errors as 500 upstream_failed.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chani337/selfstar/internal/ai"
	"github.com/chani337/selfstar/internal/graph"
	"github.com/chani337/selfstar/internal/services"
)

//
// DTOs
//

// PostCommentRequest is the JSON payload for a new top-level comment.
type PostCommentRequest struct {
	PersonaNum int    `json:"persona_num" binding:"required" example:"1"`
	Message    string `json:"message" binding:"required" example:"감사합니다!"`
}

// ReplyRequest is the JSON payload for a manual comment reply.
type ReplyRequest struct {
	PersonaNum int    `json:"persona_num" binding:"required" example:"1"`
	CommentID  string `json:"comment_id" binding:"required" example:"1784xxxx"`
	Message    string `json:"message" binding:"required" example:"고마워요 :)"`
}

// AutoReplyRequest is the JSON payload for an AI-generated, posted reply.
type AutoReplyRequest struct {
	PersonaNum int    `json:"persona_num" binding:"required" example:"1"`
	CommentID  string `json:"comment_id" binding:"required" example:"1784xxxx"`
	Text       string `json:"text" binding:"required" example:"오늘 뭐해요?"`
	PostImg    string `json:"post_img" example:"https://cdn/post.jpg"`
	Post       string `json:"post" example:"주말 브이로그"`
}

// AutoDraftRequest is the JSON payload for a generated-but-unposted reply.
type AutoDraftRequest struct {
	PersonaNum int    `json:"persona_num" binding:"required" example:"1"`
	Text       string `json:"text" binding:"required" example:"오늘 뭐해요?"`
	PostImg    string `json:"post_img" example:"https://cdn/post.jpg"`
	Post       string `json:"post" example:"주말 브이로그"`
}

// AutoImageRequest is the JSON payload for the auto-image action.
type AutoImageRequest struct {
	PersonaNum int    `json:"persona_num" binding:"required" example:"1"`
	CommentID  string `json:"comment_id" example:"1784xxxx"`
	Text       string `json:"text" binding:"required" example:"고양이 그려줘"`
}

// ReplyBulkRequest is the JSON payload for a batch of manual replies.
type ReplyBulkRequest struct {
	PersonaNum int                      `json:"persona_num" binding:"required" example:"1"`
	Items      []services.BulkReplyItem `json:"items" binding:"required"`
}

//
// Helpers
//

// failEngage maps an engagement error onto the HTTP error taxonomy.
// Ordering matters: specific sentinels first, then collaborator error types,
// then the 500 fallback.
func failEngage(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrPersonaNotFound):
		fail(c, http.StatusNotFound, ErrCodePersonaNotFound, "persona not found")
	case errors.Is(err, services.ErrPersonaNotLinked):
		fail(c, http.StatusBadRequest, ErrCodePersonaNotLinked, "persona has no linked Instagram account")
	case errors.Is(err, services.ErrOAuthRequired):
		fail(c, http.StatusUnauthorized, ErrCodeOAuthRequired, "Instagram token missing or expired; re-authorize")
	case errors.Is(err, services.ErrAIEmptyReply), ai.IsGenerationError(err):
		fail(c, http.StatusBadGateway, ErrCodeGenerationFailed, "AI generation failed")
	case errors.Is(err, services.ErrStorageUnavailable):
		fail(c, http.StatusBadGateway, ErrCodeStorageUnavailable, "image storage is not configured")
	case graph.IsAPIError(err):
		fail(c, http.StatusInternalServerError, ErrCodeUpstreamFailed, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

//
// Handlers
//

// PostMediaComment posts a new top-level comment on a media object.
func (h *Handlers) PostMediaComment(c *gin.Context) {
	uid, okAuth := currentUser(c)
	if !okAuth {
		return
	}
	mediaID := strings.TrimSpace(c.Param("id"))
	if mediaID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "media id required")
		return
	}
	var req PostCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "persona_num and message required")
		return
	}
	id, err := h.engage.PostComment(c.Request.Context(), uid, req.PersonaNum, mediaID, req.Message)
	if err != nil {
		failEngage(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"comment_id": id})
}

// ReplyToComment posts a user-authored reply under a comment.
func (h *Handlers) ReplyToComment(c *gin.Context) {
	uid, okAuth := currentUser(c)
	if !okAuth {
		return
	}
	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "persona_num, comment_id and message required")
		return
	}
	id, err := h.engage.ManualReply(c.Request.Context(), uid, req.PersonaNum, req.CommentID, req.Message)
	if err != nil {
		failEngage(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"result": id})
}

// AutoReplyToComment generates a persona-voiced reply and posts it. The
// comment is claimed before any external call; an already-claimed comment
// answers skipped=true without side effects.
func (h *Handlers) AutoReplyToComment(c *gin.Context) {
	uid, okAuth := currentUser(c)
	if !okAuth {
		return
	}
	var req AutoReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "persona_num, comment_id and text required")
		return
	}
	res, err := h.engage.AutoReply(c.Request.Context(), uid, req.PersonaNum, req.CommentID, req.Text, req.PostImg, req.Post)
	if err != nil {
		failEngage(c, err)
		return
	}
	if res.Skipped {
		ok(c, http.StatusOK, gin.H{"skipped": true})
		return
	}
	ok(c, http.StatusOK, gin.H{"reply": res.Reply, "result": res.ReplyID})
}

// DraftReply generates a reply without posting it and without recording the
// comment as handled.
func (h *Handlers) DraftReply(c *gin.Context) {
	uid, okAuth := currentUser(c)
	if !okAuth {
		return
	}
	var req AutoDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "persona_num and text required")
		return
	}
	reply, err := h.engage.AutoDraft(c.Request.Context(), uid, req.PersonaNum, req.Text, req.PostImg, req.Post)
	if err != nil {
		failEngage(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"reply": reply})
}

// AutoImageFromComment classifies the comment text and, when it asks for an
// image, generates and stores one; business-tier owners may get it
// auto-published as well.
func (h *Handlers) AutoImageFromComment(c *gin.Context) {
	uid, okAuth := currentUser(c)
	if !okAuth {
		return
	}
	var req AutoImageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "persona_num and text required")
		return
	}
	res, err := h.engage.AutoImage(c.Request.Context(), uid, req.PersonaNum, req.CommentID, req.Text)
	if err != nil {
		failEngage(c, err)
		return
	}
	if res.Skipped {
		ok(c, http.StatusOK, gin.H{"skipped": true, "reason": res.Reason})
		return
	}
	body := gin.H{"img_key": res.ImgKey, "image_url": res.ImageURL}
	if res.Published {
		body["published"] = true
		body["media_id"] = res.MediaID
	}
	ok(c, http.StatusOK, body)
}

// ReplyBulk posts a batch of manual replies. Per-item results are returned
// in order; one item's failure never aborts the batch.
func (h *Handlers) ReplyBulk(c *gin.Context) {
	uid, okAuth := currentUser(c)
	if !okAuth {
		return
	}
	var req ReplyBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Items) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "persona_num and items required")
		return
	}
	results := h.engage.ReplyBulk(c.Request.Context(), uid, req.PersonaNum, req.Items)
	ok(c, http.StatusOK, gin.H{"results": results})
}
