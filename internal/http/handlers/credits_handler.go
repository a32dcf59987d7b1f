// Credits HTTP handlers.
//
// This file exposes REST endpoints for the prepaid credit account:
//   - GET  /credits/me       (balance + plan)
//   - GET  /credits/ledger   (recent ledger entries)
//   - POST /credits/grant    (self-grant, policy-gated)
//   - POST /credits/consume  (self-consume)
//   - POST /credits/upgrade  (plan change)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/chani337/selfstar/internal/domain"
	"github.com/chani337/selfstar/internal/repo"
	"github.com/chani337/selfstar/internal/services"
	"github.com/chani337/selfstar/internal/utils"
)

//
// Service contracts (context-aware)
//

// CreditService defines credit account operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type CreditService interface {
	// Me returns the current balance and plan, creating both lazily.
	Me(ctx context.Context, userID uint) (*services.AccountStatus, error)
	// Grant adds credits; gated by the self-grant policy.
	Grant(ctx context.Context, userID uint, amount int, reason, refType, refID string) (int, error)
	// Consume subtracts credits; insufficient balance leaves state unchanged.
	Consume(ctx context.Context, userID uint, amount int, reason, refType, refID string) (int, error)
	// Ledger returns recent entries, most recent first.
	Ledger(ctx context.Context, userID uint, limit int) ([]domain.CreditLedgerEntry, error)
	// Upgrade switches the plan tier, optionally granting a bonus.
	Upgrade(ctx context.Context, userID uint, plan string) (*services.AccountStatus, error)
}

// EngageService defines engagement operations consumed by HTTP handlers.
// See instagram_handler.go for the endpoints built on it.
type EngageService interface {
	PostComment(ctx context.Context, userID uint, personaNum int, mediaID, message string) (string, error)
	ManualReply(ctx context.Context, userID uint, personaNum int, commentID, message string) (string, error)
	AutoReply(ctx context.Context, userID uint, personaNum int, commentID, text, postImg, postCaption string) (*services.AutoReplyResult, error)
	AutoDraft(ctx context.Context, userID uint, personaNum int, text, postImg, postCaption string) (string, error)
	AutoImage(ctx context.Context, userID uint, personaNum int, commentID, text string) (*services.AutoImageResult, error)
	ReplyBulk(ctx context.Context, userID uint, personaNum int, items []services.BulkReplyItem) []services.BulkReplyResult
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for credits and Instagram engagement.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	credits CreditService
	engage  EngageService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(credits CreditService, engage EngageService) *Handlers {
	return &Handlers{credits: credits, engage: engage}
}

// currentUser resolves the authenticated numeric user id. An upstream session
// proxy sets "userID" on the Gin context; tests and direct calls use the
// X-User-ID header. Missing or non-numeric ids abort with 401; callers must
// return immediately when ok is false.
func currentUser(c *gin.Context) (uint, bool) {
	raw := ""
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok {
			raw = s
		}
	}
	if raw == "" && c.Request != nil {
		raw = strings.TrimSpace(c.GetHeader("X-User-ID"))
	}
	if raw == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing X-User-ID")
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid X-User-ID")
		return 0, false
	}
	return uint(id), true
}

//
// DTOs
//

// CreditMutationRequest is the JSON payload for grant and consume.
type CreditMutationRequest struct {
	// Amount is the credit delta; must be positive.
	Amount int `json:"amount" binding:"required" example:"10"`
	// Reason labels the ledger entry; a default is used when empty.
	Reason string `json:"reason" example:"auto_image"`
	// RefType/RefID optionally link the entry to a domain object.
	RefType string `json:"ref_type" example:"comment"`
	RefID   string `json:"ref_id" example:"1784xxxx"`
}

// UpgradePlanRequest is the JSON payload for a plan change.
type UpgradePlanRequest struct {
	// Plan is the target tier (free, basic, standard, pro, business, biz).
	Plan string `json:"plan" binding:"required" example:"pro"`
}

//
// Handlers
//

// GetCreditsMe returns the caller's balance and plan tier.
func (h *Handlers) GetCreditsMe(c *gin.Context) {
	uid, okAuth := currentUser(c)
	if !okAuth {
		return
	}
	st, err := h.credits.Me(c.Request.Context(), uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"balance": st.Balance, "plan": st.Plan})
}

// GetCreditsLedger returns recent ledger entries, most recent first.
// The ?limit= query is clamped by the service (default 50, max 200).
// Supports weak ETag via If-None-Match and may return 304.
func (h *Handlers) GetCreditsLedger(c *gin.Context) {
	uid, okAuth := currentUser(c)
	if !okAuth {
		return
	}
	ctx := c.Request.Context()
	limit := utils.AtoiDefault(c.Query("limit"), 0)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, isSvc := h.credits.(*services.CreditService); isSvc {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.LedgerStats(ctx, db, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"ledger:%d:%d:%d:%d"`, uid, count, ts, limit)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	entries, err := h.credits.Ledger(ctx, uid, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"entries": entries})
}

// GrantCredits adds credits to the caller's balance (self-grant).
// Disabled deployments answer 403.
func (h *Handlers) GrantCredits(c *gin.Context) {
	uid, okAuth := currentUser(c)
	if !okAuth {
		return
	}
	var req CreditMutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	bal, err := h.credits.Grant(c.Request.Context(), uid, req.Amount, req.Reason, req.RefType, req.RefID)
	switch {
	case errors.Is(err, services.ErrSelfGrantDisabled):
		fail(c, http.StatusForbidden, ErrCodeSelfGrantDisabled, "self grant is disabled")
		return
	case errors.Is(err, services.ErrInvalidAmount):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "amount must be positive")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"balance": bal})
}

// ConsumeCredits subtracts credits from the caller's balance.
// An insufficient balance answers 402 and leaves state unchanged.
func (h *Handlers) ConsumeCredits(c *gin.Context) {
	uid, okAuth := currentUser(c)
	if !okAuth {
		return
	}
	var req CreditMutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	bal, err := h.credits.Consume(c.Request.Context(), uid, req.Amount, req.Reason, req.RefType, req.RefID)
	switch {
	case errors.Is(err, services.ErrInvalidAmount):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "amount must be positive")
		return
	case errors.Is(err, services.ErrInsufficientCredits):
		fail(c, http.StatusPaymentRequired, ErrCodeInsufficientCredits, "not enough credits")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"balance": bal})
}

// UpgradePlan switches the caller's plan tier and reports the new account
// status. Upgrading to "pro" may carry a configured credit bonus.
func (h *Handlers) UpgradePlan(c *gin.Context) {
	uid, okAuth := currentUser(c)
	if !okAuth {
		return
	}
	var req UpgradePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Plan) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "plan required")
		return
	}
	st, err := h.credits.Upgrade(c.Request.Context(), uid, req.Plan)
	switch {
	case errors.Is(err, services.ErrInvalidPlan):
		fail(c, http.StatusBadRequest, ErrCodeInvalidPlan, "unknown plan tier")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"balance": st.Balance, "plan": st.Plan})
}
