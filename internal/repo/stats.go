// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/chani337/selfstar/internal/domain"
)

// LedgerStats returns aggregate metadata for a user's credit ledger: the total
// number of entries and the maximum CreatedAt timestamp among those rows.
//
// It executes two lightweight queries against the credit_ledger table scoped
// to the provided userID. When the user has no entries, the returned count is
// 0 and maxCreatedAt is nil.
//
// Return values:
//   - count:        total ledger entries for userID
//   - maxCreatedAt: pointer to the greatest CreatedAt, or nil if no rows
//   - err:          database error, if any
func LedgerStats(ctx context.Context, db *gorm.DB, userID uint) (count int64, maxCreatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.CreditLedgerEntry{}).Where("user_id = ?", userID)

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}

// GalleryStats returns aggregate metadata for a persona's generated-image
// gallery: the total number of rows and the maximum CreatedAt timestamp among
// those rows. When the persona has no images, the returned count is 0 and
// maxCreatedAt is nil.
func GalleryStats(ctx context.Context, db *gorm.DB, userID uint, personaNum int) (count int64, maxCreatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.ChatImage{}).
		Where("user_id = ? AND persona_num = ?", userID, personaNum)

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
