// Package domain defines the persistence models for users, personas,
// credits, dedup markers, and the generated-image gallery. These types are
// mapped with GORM and form the core data layer of the application.
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Plan identifiers accepted by the upgrade endpoint. "biz" is a legacy alias
// for "business" and both are treated as the business tier.
var Plans = []string{"free", "basic", "standard", "pro", "business", "biz"}

// ValidPlan reports whether p (case-insensitive) is a recognized plan.
func ValidPlan(p string) bool {
	p = strings.ToLower(strings.TrimSpace(p))
	for _, known := range Plans {
		if p == known {
			return true
		}
	}
	return false
}

// IsBusinessPlan reports whether p grants business-tier features
// (auto-reply scheduling, automatic publishing of generated images).
func IsBusinessPlan(p string) bool {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "business", "biz":
		return true
	}
	return false
}

// User is an account known to the upstream session layer. Only the plan is
// owned here; identity and authentication live upstream.
type User struct {
	ID        uint      `json:"id"         gorm:"primaryKey"`
	Plan      string    `json:"plan"       gorm:"type:varchar(32);not null;default:'free'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Persona is one AI character owned by a user. A user can own several,
// addressed by their per-user ordinal PersonaNum. IGUserID is set once the
// persona has been linked to an Instagram account.
//
// Params holds the raw persona profile JSON (personality, tone, style,
// voice, avatar, optional nested "instagram" overrides) as produced by the
// persona editor.
type Persona struct {
	ID         uint      `json:"id"          gorm:"primaryKey"`
	UserID     uint      `json:"user_id"     gorm:"not null;uniqueIndex:ux_persona_user_num,priority:1"`
	PersonaNum int       `json:"persona_num" gorm:"not null;uniqueIndex:ux_persona_user_num,priority:2"`
	Name       string    `json:"name"        gorm:"type:varchar(128);not null"`
	IGUserID   string    `json:"ig_user_id"  gorm:"type:varchar(64);index"`
	AvatarURL  string    `json:"persona_img" gorm:"type:text"`
	Params     string    `json:"-"           gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for Persona.
func (Persona) TableName() string { return "personas" }

// Linked reports whether the persona has an Instagram account attached.
func (p Persona) Linked() bool { return strings.TrimSpace(p.IGUserID) != "" }

// Personality extracts the free-text personality description from Params.
// It checks the keys personality, tone, style, and voice in order, then the
// same keys nested under "instagram". Missing or malformed params yield "".
func (p Persona) Personality() string {
	if strings.TrimSpace(p.Params) == "" {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(p.Params), &m); err != nil {
		return ""
	}
	keys := []string{"personality", "tone", "style", "voice"}
	if s := firstString(m, keys); s != "" {
		return s
	}
	if nested, ok := m["instagram"].(map[string]any); ok {
		return firstString(nested, keys)
	}
	return ""
}

func firstString(m map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok {
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// PersonaToken stores the long-lived Instagram access token for a linked
// persona. Kept separate from Persona so token rotation never touches the
// profile row.
type PersonaToken struct {
	ID          uint      `json:"-"           gorm:"primaryKey"`
	UserID      uint      `json:"user_id"     gorm:"not null;uniqueIndex:ux_token_user_num,priority:1"`
	PersonaNum  int       `json:"persona_num" gorm:"not null;uniqueIndex:ux_token_user_num,priority:2"`
	AccessToken string    `json:"-"           gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for PersonaToken.
func (PersonaToken) TableName() string { return "persona_tokens" }

// ChatImage is a gallery record for an AI-generated image stored in object
// storage under ImgKey.
type ChatImage struct {
	ID         uint      `json:"id"          gorm:"primaryKey"`
	UserID     uint      `json:"user_id"     gorm:"not null;index:idx_chat_images_owner,priority:1"`
	PersonaNum int       `json:"persona_num" gorm:"not null;index:idx_chat_images_owner,priority:2"`
	ImgKey     string    `json:"img_key"     gorm:"type:text;not null"`
	Prompt     string    `json:"prompt"      gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for ChatImage.
func (ChatImage) TableName() string { return "chat_images" }
