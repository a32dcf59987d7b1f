// Package services – CreditService
//
// This file implements CreditService, the application-level component that
// owns the prepaid credit balance and its append-only ledger. It validates
// amounts and plan names, applies the self-grant policy, and delegates the
// atomic balance arithmetic to the repository layer.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// the user id and amounts.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chani337/selfstar/internal/domain"
	"github.com/chani337/selfstar/internal/repo"
	"github.com/chani337/selfstar/internal/utils"
)

// CreditService coordinates balance reads, grants, consumes, ledger listing,
// and plan upgrades.
type CreditService struct {
	DB *gorm.DB

	// AllowSelfGrant gates POST /credits/grant. Off in production;
	// on by default for development.
	AllowSelfGrant bool

	// UpgradeGrantPro is a one-time credit bonus applied when a user
	// upgrades to the "pro" plan. Zero disables the bonus.
	UpgradeGrantPro int
}

// AccountStatus is the payload of /credits/me.
type AccountStatus struct {
	Balance int    `json:"balance"`
	Plan    string `json:"plan"`
}

// Me returns the current balance and plan, lazily creating both rows.
func (s *CreditService) Me(ctx context.Context, userID uint) (*AccountStatus, error) {
	tr := otel.Tracer("services/CreditService")
	ctx, span := tr.Start(ctx, "Me",
		trace.WithAttributes(attribute.Int64("user.id", int64(userID))))
	defer span.End()

	u, err := repo.EnsureUser(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	bal, err := repo.GetBalance(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	return &AccountStatus{Balance: bal, Plan: u.Plan}, nil
}

// Grant adds amount credits to the user. Rejects non-positive amounts and
// honors the self-grant policy flag.
func (s *CreditService) Grant(ctx context.Context, userID uint, amount int, reason, refType, refID string) (int, error) {
	tr := otel.Tracer("services/CreditService")
	ctx, span := tr.Start(ctx, "Grant",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.Int("amount", amount),
		))
	defer span.End()

	if !s.AllowSelfGrant {
		return 0, ErrSelfGrantDisabled
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if reason == "" {
		reason = "self_grant"
	}
	return repo.GrantCredits(ctx, s.DB, userID, amount, reason, refType, refID)
}

// Consume subtracts amount credits. Rejects non-positive amounts; a balance
// smaller than amount yields ErrInsufficientCredits with state unchanged.
func (s *CreditService) Consume(ctx context.Context, userID uint, amount int, reason, refType, refID string) (int, error) {
	tr := otel.Tracer("services/CreditService")
	ctx, span := tr.Start(ctx, "Consume",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.Int("amount", amount),
		))
	defer span.End()

	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if reason == "" {
		reason = "consume"
	}
	newBal, err := repo.ConsumeCredits(ctx, s.DB, userID, amount, reason, refType, refID)
	if errors.Is(err, repo.ErrInsufficientBalance) {
		return 0, ErrInsufficientCredits
	}
	return newBal, err
}

// Ledger returns recent entries, most recent first. The limit is clamped to
// [1,200] with a default of 50.
func (s *CreditService) Ledger(ctx context.Context, userID uint, limit int) ([]domain.CreditLedgerEntry, error) {
	tr := otel.Tracer("services/CreditService")
	ctx, span := tr.Start(ctx, "Ledger",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.Int("limit", limit),
		))
	defer span.End()

	limit = utils.ClampLimit(limit, 50, 200)
	return repo.ListLedger(ctx, s.DB, userID, limit)
}

// Upgrade switches the user's plan. On upgrade to "pro" an optional credit
// bonus is granted best-effort: a failed bonus never rolls back the plan
// change.
func (s *CreditService) Upgrade(ctx context.Context, userID uint, plan string) (*AccountStatus, error) {
	tr := otel.Tracer("services/CreditService")
	ctx, span := tr.Start(ctx, "Upgrade",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.String("plan", plan),
		))
	defer span.End()

	plan = strings.ToLower(strings.TrimSpace(plan))
	if !domain.ValidPlan(plan) {
		return nil, ErrInvalidPlan
	}
	if err := repo.UpdateUserPlan(ctx, s.DB, userID, plan); err != nil {
		return nil, err
	}
	if plan == "pro" && s.UpgradeGrantPro > 0 {
		// Best effort; the plan change above stands regardless.
		_, _ = repo.GrantCredits(ctx, s.DB, userID, s.UpgradeGrantPro, "upgrade_bonus", "plan", plan)
	}
	return s.Me(ctx, userID)
}
