package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	dbtypes "github.com/danielortuno/splittab-backend/pkg/db/types"
)

// Bill is one shared expense. The ledger pipeline owns only the applied-
// footprint tokens and the settled/unsettled participant sets; everything
// else is written by the bill editing surface.
type Bill struct {
	ID      uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID uuid.UUID  `gorm:"column:owner_id;type:uuid;not null"`
	EventID *uuid.UUID `gorm:"column:event_id;type:uuid"`
	// PayerID defaults to the owner when the bill is created.
	PayerID uuid.UUID `gorm:"column:payer_id;type:uuid;not null"`
	Title   string    `gorm:"column:title"`

	People dbtypes.People `gorm:"column:people;type:jsonb;not null"`
	Items  dbtypes.Items  `gorm:"column:items;type:jsonb"`
	// PersonTotals is the computed per-person share, keyed by local id.
	PersonTotals dbtypes.BalanceMap `gorm:"column:person_totals;type:jsonb"`

	SettledPersonIDs        pq.StringArray    `gorm:"column:settled_person_ids;type:text[]"`
	UnsettledParticipantIDs dbtypes.UUIDArray `gorm:"column:unsettled_participant_ids;type:uuid[]"`
	// ParticipantUserIDs is derived from People's linked local ids and kept
	// queryable for the friend-link backfill scan.
	ParticipantUserIDs dbtypes.UUIDArray `gorm:"column:participant_user_ids;type:uuid[]"`

	// ProcessedBalances is the footprint last folded into the global friend
	// balances. It is the sole idempotency token for the global scope.
	ProcessedBalances dbtypes.BalanceMap `gorm:"column:processed_balances;type:jsonb"`
	// ProcessedEventBalances is the same token for the event scope.
	ProcessedEventBalances dbtypes.BalanceMap `gorm:"column:processed_event_balances;type:jsonb"`

	// LinkVersion is a monotonic sentinel bumped to force reprocessing after
	// a friendship is established retroactively.
	LinkVersion int64 `gorm:"column:link_version;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// CreditorID returns who fronted the money for this bill.
func (b *Bill) CreditorID() uuid.UUID {
	if b.PayerID != uuid.Nil {
		return b.PayerID
	}
	return b.OwnerID
}

// IsLocalSettled reports whether the given local participant id has been
// marked settled on this bill.
func (b *Bill) IsLocalSettled(localID string) bool {
	for _, settled := range b.SettledPersonIDs {
		if settled == localID {
			return true
		}
	}
	return false
}

// ProcessedFor returns the applied-footprint token for the given scope.
func (b *Bill) ProcessedFor(eventScoped bool) dbtypes.BalanceMap {
	if eventScoped {
		return b.ProcessedEventBalances
	}
	return b.ProcessedBalances
}
