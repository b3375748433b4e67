package models

import (
	"time"

	"github.com/lib/pq"

	dbtypes "github.com/danielortuno/splittab-backend/pkg/db/types"
)

// FriendBalance is the materialized pairwise balance for one unordered user
// pair, keyed by the sorted pair id. A positive balance means participants[0]
// (the lexicographically smaller id) is owed.
type FriendBalance struct {
	ID               string            `gorm:"column:id;primaryKey"`
	Participants     pq.StringArray    `gorm:"column:participants;type:text[];not null"`
	Balance          float64           `gorm:"column:balance;not null;default:0"`
	UnsettledBillIDs dbtypes.UUIDArray `gorm:"column:unsettled_bill_ids;type:uuid[]"`
	LastUpdatedAt    time.Time         `gorm:"column:last_updated_at;autoUpdateTime"`
}
