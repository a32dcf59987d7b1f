// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the event dedup store: a unique-keyed
// marker table recording which external comment ids a persona has already
// handled.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/chani337/selfstar/internal/domain"
)

// seenChunkSize bounds the IN (...) list of a single FilterSeen query.
const seenChunkSize = 100

// ClaimOrTouch records externalID as seen by (userID, personaNum).
//
// If the marker did not exist it is inserted and claimed=true is returned:
// the caller won the claim and may proceed with side effects. If it already
// existed only updated_at is bumped and claimed=false is returned. Callers
// using it as a post-ack marker ignore the flag.
func ClaimOrTouch(ctx context.Context, db *gorm.DB, externalID string, userID uint, personaNum int) (bool, error) {
	if strings.TrimSpace(externalID) == "" {
		return false, errors.New("empty external id")
	}
	now := time.Now().UTC()
	rec := &domain.SeenEvent{
		ExternalID: externalID,
		UserID:     userID,
		PersonaNum: personaNum,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := db.WithContext(ctx).Create(rec).Error
	if err == nil {
		return true, nil
	}
	if !isUniqueViolation(err) {
		return false, err
	}
	touch := db.WithContext(ctx).
		Model(&domain.SeenEvent{}).
		Where("external_id = ? AND user_id = ? AND persona_num = ?", externalID, userID, personaNum).
		Update("updated_at", now)
	if touch.Error != nil {
		return false, touch.Error
	}
	return false, nil
}

// FilterSeen returns the subset of ids already marked seen by
// (userID, personaNum). Lookups are chunked to keep the IN list bounded.
func FilterSeen(ctx context.Context, db *gorm.DB, userID uint, personaNum int, ids []string) (map[string]struct{}, error) {
	seen := make(map[string]struct{}, len(ids))
	for start := 0; start < len(ids); start += seenChunkSize {
		end := start + seenChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		var found []string
		err := db.WithContext(ctx).
			Model(&domain.SeenEvent{}).
			Where("user_id = ? AND persona_num = ? AND external_id IN ?", userID, personaNum, ids[start:end]).
			Pluck("external_id", &found).Error
		if err != nil {
			return nil, err
		}
		for _, id := range found {
			seen[id] = struct{}{}
		}
	}
	return seen, nil
}

// isUniqueViolation reports whether err is a unique-constraint failure.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
