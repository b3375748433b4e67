package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User holds the slice of the user document this engine reads: identity and
// the friend list. Profile storage is owned elsewhere. Friends is stored raw
// because two historical shapes exist; internal/friends normalizes it.
type User struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string          `gorm:"column:name"`
	Friends   json.RawMessage `gorm:"column:friends;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
