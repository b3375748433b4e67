package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/danielortuno/splittab-backend/pkg/db/types"
)

// EventBalance is the per-event cache of pooled net balances and the
// precomputed minimal payment plan. Rebuilt whenever any event-scoped
// aggregate write happens for the event.
type EventBalance struct {
	EventID        uuid.UUID          `gorm:"column:event_id;type:uuid;primaryKey"`
	NetBalances    dbtypes.BalanceMap `gorm:"column:net_balances;type:jsonb"`
	OptimizedDebts dbtypes.Transfers  `gorm:"column:optimized_debts;type:jsonb"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
