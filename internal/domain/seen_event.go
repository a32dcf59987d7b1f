package domain

import "time"

// SeenEvent marks an external event (Instagram comment, webhook delivery) as
// processed by a specific persona. The unique index over
// (external_id, user_id, persona_num) is the single source of truth for
// dedup: a second insert attempt only bumps UpdatedAt.
//
// Rows are written in two modes. Side-effecting actions pre-claim the event
// before calling out, so a crash mid-action errs on the side of not acting
// twice. Image generation instead acks after the image is stored (and again
// after a publish), best effort: a missed ack only risks a repeat attempt.
type SeenEvent struct {
	ID         uint      `gorm:"primaryKey"`
	ExternalID string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_seen_event,priority:1"`
	UserID     uint      `gorm:"not null;uniqueIndex:ux_seen_event,priority:2"`
	PersonaNum int       `gorm:"not null;uniqueIndex:ux_seen_event,priority:3"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// TableName implements the GORM tabler interface.
func (SeenEvent) TableName() string { return "seen_events" }
