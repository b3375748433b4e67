package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	dbtypes "github.com/danielortuno/splittab-backend/pkg/db/types"
)

// EventPairBalance mirrors FriendBalance but is scoped to one event, keyed by
// "<eventID>_<sorted pair>". The sign convention is identical.
type EventPairBalance struct {
	ID               string            `gorm:"column:id;primaryKey"`
	EventID          uuid.UUID         `gorm:"column:event_id;type:uuid;not null;index"`
	Participants     pq.StringArray    `gorm:"column:participants;type:text[];not null"`
	Balance          float64           `gorm:"column:balance;not null;default:0"`
	UnsettledBillIDs dbtypes.UUIDArray `gorm:"column:unsettled_bill_ids;type:uuid[]"`
	LastUpdatedAt    time.Time         `gorm:"column:last_updated_at;autoUpdateTime"`
}
