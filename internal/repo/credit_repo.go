// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the credit
// balance and its append-only ledger.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Concurrency contract: balance mutations never read-modify-write. Grant is
// an insert-or-add upsert and Consume is a conditional UPDATE guarded by
// `balance >= amount`, so concurrent callers serialize at the storage layer
// and the non-negative invariant holds under any interleaving. Each mutation
// appends its ledger entry in the same transaction.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chani337/selfstar/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrInsufficientBalance is returned by ConsumeCredits when the guarded
// update matches no row, i.e. the balance is smaller than the amount.
var ErrInsufficientBalance = errors.New("insufficient balance")

// EnsureBalance makes sure a balance row exists for userID and returns it.
// The insert is idempotent (DO NOTHING on conflict), so concurrent first
// reads are safe.
func EnsureBalance(ctx context.Context, db *gorm.DB, userID uint) (*domain.CreditBalance, error) {
	row := &domain.CreditBalance{UserID: userID, Balance: 0, UpdatedAt: time.Now().UTC()}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(row).Error
	if err != nil {
		return nil, err
	}
	var out domain.CreditBalance
	if err := db.WithContext(ctx).First(&out, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBalance returns the current balance for userID, creating the zero row
// if it does not exist yet.
func GetBalance(ctx context.Context, db *gorm.DB, userID uint) (int, error) {
	row, err := EnsureBalance(ctx, db, userID)
	if err != nil {
		return 0, err
	}
	return row.Balance, nil
}

// GrantCredits atomically adds amount (> 0, validated by the caller) to the
// user's balance and appends a positive ledger entry in the same transaction.
// It returns the post-mutation balance.
func GrantCredits(ctx context.Context, db *gorm.DB, userID uint, amount int, reason, refType, refID string) (int, error) {
	var newBalance int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"balance":    gorm.Expr("balance + ?", amount),
				"updated_at": now,
			}),
		}).Create(&domain.CreditBalance{UserID: userID, Balance: amount, UpdatedAt: now}).Error
		if err != nil {
			return err
		}
		entry := &domain.CreditLedgerEntry{
			UserID:    userID,
			Delta:     amount,
			Reason:    reason,
			RefType:   refType,
			RefID:     refID,
			CreatedAt: now,
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		var row domain.CreditBalance
		if err := tx.First(&row, "user_id = ?", userID).Error; err != nil {
			return err
		}
		newBalance = row.Balance
		return nil
	})
	return newBalance, err
}

// ConsumeCredits atomically subtracts amount (> 0, validated by the caller)
// from the user's balance, guarded by `balance >= amount`. When the guard
// matches no row the transaction is abandoned with ErrInsufficientBalance and
// state is unchanged. On success a negative ledger entry is appended in the
// same transaction and the post-mutation balance returned.
func ConsumeCredits(ctx context.Context, db *gorm.DB, userID uint, amount int, reason, refType, refID string) (int, error) {
	var newBalance int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		// The row may not exist yet; a missing row simply fails the guard.
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true,
		}).Create(&domain.CreditBalance{UserID: userID, Balance: 0, UpdatedAt: now}).Error; err != nil {
			return err
		}
		res := tx.Model(&domain.CreditBalance{}).
			Where("user_id = ? AND balance >= ?", userID, amount).
			Updates(map[string]any{
				"balance":    gorm.Expr("balance - ?", amount),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientBalance
		}
		entry := &domain.CreditLedgerEntry{
			UserID:    userID,
			Delta:     -amount,
			Reason:    reason,
			RefType:   refType,
			RefID:     refID,
			CreatedAt: now,
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		var row domain.CreditBalance
		if err := tx.First(&row, "user_id = ?", userID).Error; err != nil {
			return err
		}
		newBalance = row.Balance
		return nil
	})
	return newBalance, err
}

// ListLedger returns up to limit ledger entries for userID, most recent
// first (descending id). The caller clamps limit.
func ListLedger(ctx context.Context, db *gorm.DB, userID uint, limit int) ([]domain.CreditLedgerEntry, error) {
	var out []domain.CreditLedgerEntry
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
