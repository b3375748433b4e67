package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/danielortuno/splittab-backend/pkg/db/types"
)

// Settlement is the immutable record of one settle operation. Reversal
// deletes the row rather than archiving it.
type Settlement struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	FromUserID uuid.UUID `gorm:"column:from_user_id;type:uuid;not null"`
	ToUserID   uuid.UUID `gorm:"column:to_user_id;type:uuid;not null"`
	Amount     float64   `gorm:"column:amount;not null"`

	SettledBillIDs dbtypes.UUIDArray `gorm:"column:settled_bill_ids;type:uuid[]"`
	EventID        *uuid.UUID        `gorm:"column:event_id;type:uuid"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
