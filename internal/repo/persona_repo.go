// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for users,
// personas, their Instagram tokens, and the generated-image gallery.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chani337/selfstar/internal/domain"
)

// EnsureUser makes sure a user row exists for id (plan defaults to "free")
// and returns it. Identity lives upstream; the row only carries the plan.
func EnsureUser(ctx context.Context, db *gorm.DB, id uint) (*domain.User, error) {
	now := time.Now().UTC()
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&domain.User{ID: id, Plan: "free", CreatedAt: now, UpdatedAt: now}).Error
	if err != nil {
		return nil, err
	}
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUserPlan sets the plan for userID, creating the user row if needed.
func UpdateUserPlan(ctx context.Context, db *gorm.DB, userID uint, plan string) error {
	if _, err := EnsureUser(ctx, db, userID); err != nil {
		return err
	}
	return db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"plan": plan, "updated_at": time.Now().UTC()}).Error
}

// GetPersona fetches one persona by owner and per-user ordinal.
// Returns ErrNotFound if missing.
func GetPersona(ctx context.Context, db *gorm.DB, userID uint, personaNum int) (*domain.Persona, error) {
	var p domain.Persona
	err := db.WithContext(ctx).
		Where("user_id = ? AND persona_num = ?", userID, personaNum).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPersonaToken returns the stored Instagram access token for a persona,
// or ErrNotFound when the persona has never been authorized.
func GetPersonaToken(ctx context.Context, db *gorm.DB, userID uint, personaNum int) (string, error) {
	var t domain.PersonaToken
	err := db.WithContext(ctx).
		Where("user_id = ? AND persona_num = ?", userID, personaNum).
		First(&t).Error
	if err != nil {
		return "", err
	}
	return t.AccessToken, nil
}

// UpsertPersonaToken stores or replaces the access token for a persona.
func UpsertPersonaToken(ctx context.Context, db *gorm.DB, userID uint, personaNum int, token string) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "persona_num"}},
			DoUpdates: clause.Assignments(map[string]any{
				"access_token": token,
				"updated_at":   now,
			}),
		}).
		Create(&domain.PersonaToken{
			UserID: userID, PersonaNum: personaNum,
			AccessToken: token, CreatedAt: now, UpdatedAt: now,
		}).Error
}

// EngageTarget is one persona eligible for automated engagement, joined with
// its owner's plan and access token.
type EngageTarget struct {
	UserID      uint   `gorm:"column:user_id"`
	PersonaNum  int    `gorm:"column:persona_num"`
	IGUserID    string `gorm:"column:ig_user_id"`
	AvatarURL   string `gorm:"column:avatar_url"`
	Params      string `gorm:"column:params"`
	Plan        string `gorm:"column:plan"`
	AccessToken string `gorm:"column:access_token"`
}

// ListEngageTargets returns personas that are Instagram-linked, owned by a
// business-tier user, and have a stored token, capped at limit. These are
// the personas the auto-reply scheduler works through each tick.
func ListEngageTargets(ctx context.Context, db *gorm.DB, limit int) ([]EngageTarget, error) {
	var out []EngageTarget
	err := db.WithContext(ctx).
		Table("personas").
		Select("personas.user_id, personas.persona_num, personas.ig_user_id, personas.avatar_url, personas.params, users.plan, persona_tokens.access_token").
		Joins("JOIN users ON users.id = personas.user_id").
		Joins("JOIN persona_tokens ON persona_tokens.user_id = personas.user_id AND persona_tokens.persona_num = personas.persona_num").
		Where("personas.ig_user_id <> '' AND lower(users.plan) IN ?", []string{"business", "biz"}).
		Limit(limit).
		Scan(&out).Error
	return out, err
}

// ListLinkedPersonas returns Instagram-linked personas regardless of plan,
// capped at limit. Used by the daily snapshot loop.
func ListLinkedPersonas(ctx context.Context, db *gorm.DB, limit int) ([]domain.Persona, error) {
	var out []domain.Persona
	err := db.WithContext(ctx).
		Where("ig_user_id <> ''").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// InsertChatImage appends a gallery record for a stored generated image.
func InsertChatImage(ctx context.Context, db *gorm.DB, userID uint, personaNum int, imgKey, prompt string) (*domain.ChatImage, error) {
	rec := &domain.ChatImage{
		UserID:     userID,
		PersonaNum: personaNum,
		ImgKey:     imgKey,
		Prompt:     prompt,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// ListChatImages returns the gallery for a persona, most recent first.
func ListChatImages(ctx context.Context, db *gorm.DB, userID uint, personaNum, limit int) ([]domain.ChatImage, error) {
	var out []domain.ChatImage
	err := db.WithContext(ctx).
		Where("user_id = ? AND persona_num = ?", userID, personaNum).
		Order("id desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
