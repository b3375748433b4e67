package models

import (
	"time"

	"github.com/google/uuid"
)

// EventInvitation is a pending email invite to an event. Delivery is handled
// out-of-band; the cascade delete processor removes rows when the event goes.
type EventInvitation struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID   uuid.UUID `gorm:"column:event_id;type:uuid;not null;index"`
	Email     string    `gorm:"column:email;not null"`
	InvitedBy uuid.UUID `gorm:"column:invited_by;type:uuid"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
