package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/danielortuno/splittab-backend/internal/bills"
	"github.com/danielortuno/splittab-backend/internal/split"
	"github.com/danielortuno/splittab-backend/pkg/db/models"
	dbtypes "github.com/danielortuno/splittab-backend/pkg/db/types"
	"github.com/danielortuno/splittab-backend/pkg/enums"
	pkgerrors "github.com/danielortuno/splittab-backend/pkg/errors"
	"github.com/danielortuno/splittab-backend/pkg/logger"
	"github.com/danielortuno/splittab-backend/pkg/outbox/payloads"
)

// Service is the ledger pipeline core: it folds bill footprints into the
// pairwise and per-event aggregates, idempotently, one transaction per bill
// per trigger.
type Service interface {
	ProcessBillChange(ctx context.Context, billID uuid.UUID) error
	ProcessBillDeletion(ctx context.Context, payload payloads.BillDeletedEvent) error

	FriendBalances(ctx context.Context, userID uuid.UUID) ([]models.FriendBalance, error)
	FriendBalanceWith(ctx context.Context, userID, friendID uuid.UUID) (*models.FriendBalance, error)
	EventBalance(ctx context.Context, eventID uuid.UUID) (*models.EventBalance, error)
	EventPairBalances(ctx context.Context, eventID uuid.UUID) ([]models.EventPairBalance, error)
}

type friendResolver interface {
	LinkedFriendSet(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo    Repository
	bills   bills.Repository
	friends friendResolver
	tx      txRunner
	logg    *logger.Logger
}

// ServiceParams bundles the dependencies required to build the ledger service.
type ServiceParams struct {
	Repo      Repository
	BillsRepo bills.Repository
	Friends   friendResolver
	DB        txRunner
	Logger    *logger.Logger
}

// NewService constructs the ledger service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository is required")
	}
	if params.BillsRepo == nil {
		return nil, fmt.Errorf("bills repository is required")
	}
	if params.Friends == nil {
		return nil, fmt.Errorf("friend resolver is required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client is required")
	}
	return &service{
		repo:    params.Repo,
		bills:   params.BillsRepo,
		friends: params.Friends,
		tx:      params.DB,
		logg:    params.Logger,
	}, nil
}

// ProcessBillChange recomputes the bill's footprints and folds the deltas
// into both aggregate scopes. The friend-list resolution happens before the
// transaction; a failure there aborts without mutating state so redelivery
// can retry.
func (s *service) ProcessBillChange(ctx context.Context, billID uuid.UUID) error {
	if billID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "bill id is required")
	}

	bill, err := s.bills.FindByID(ctx, billID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load bill")
	}
	if bill == nil {
		// Deleted between emission and delivery; the deletion event owns
		// the unwind.
		if s.logg != nil {
			s.logg.Info(s.logg.WithBillID(ctx, billID), "bill gone before processing, skipping")
		}
		return nil
	}

	linked, err := s.friends.LinkedFriendSet(ctx, bill.OwnerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve linked friends")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindBillForUpdate(ctx, billID)
		if err != nil {
			return err
		}
		if locked == nil {
			return nil
		}

		updates := map[string]any{}

		newFootprint := split.Footprint(locked, linked)
		if err := s.applyDeltas(ctx, repo, applyInput{
			Scope:        enums.FootprintScopeGlobal,
			BillID:       locked.ID,
			OwnerID:      locked.OwnerID,
			OldFootprint: locked.ProcessedBalances,
			NewFootprint: newFootprint,
		}); err != nil {
			return err
		}
		updates["processed_balances"] = newFootprint

		if locked.EventID != nil {
			eventFootprint := split.Footprint(locked, linked)
			if err := s.applyDeltas(ctx, repo, applyInput{
				Scope:        enums.FootprintScopeEvent,
				EventID:      locked.EventID,
				BillID:       locked.ID,
				OwnerID:      locked.OwnerID,
				OldFootprint: locked.ProcessedEventBalances,
				NewFootprint: eventFootprint,
			}); err != nil {
				return err
			}
			updates["processed_event_balances"] = eventFootprint

			if err := s.rebuildEventCache(ctx, tx, *locked.EventID); err != nil {
				return err
			}
		}

		return repo.UpdateBillFields(ctx, billID, updates)
	})
}

// ProcessBillDeletion unwinds the deleted bill's last-applied footprints. The
// row is gone, so the amounts come from the deletion event payload and
// duplicate-delivery protection rests on the consumer's idempotency guard.
func (s *service) ProcessBillDeletion(ctx context.Context, payload payloads.BillDeletedEvent) error {
	if payload.BillID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "bill id is required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := s.applyDeltas(ctx, repo, applyInput{
			Scope:        enums.FootprintScopeGlobal,
			BillID:       payload.BillID,
			OwnerID:      payload.OwnerID,
			OldFootprint: dbtypes.BalanceMap(payload.ProcessedBalances),
			NewFootprint: dbtypes.BalanceMap{},
		}); err != nil {
			return err
		}

		if payload.EventID != nil {
			if err := s.applyDeltas(ctx, repo, applyInput{
				Scope:        enums.FootprintScopeEvent,
				EventID:      payload.EventID,
				BillID:       payload.BillID,
				OwnerID:      payload.OwnerID,
				OldFootprint: dbtypes.BalanceMap(payload.ProcessedEventBalances),
				NewFootprint: dbtypes.BalanceMap{},
			}); err != nil {
				return err
			}
			if err := s.rebuildEventCache(ctx, tx, *payload.EventID); err != nil {
				return err
			}
		}

		return nil
	})
}

type applyInput struct {
	Scope        enums.FootprintScope
	EventID      *uuid.UUID
	BillID       uuid.UUID
	OwnerID      uuid.UUID
	OldFootprint dbtypes.BalanceMap
	NewFootprint dbtypes.BalanceMap
}

// applyDeltas folds old→new footprint deltas into the pairwise aggregate for
// the given scope. Both scopes share this one body so the sign convention and
// membership rules cannot drift apart.
func (s *service) applyDeltas(ctx context.Context, repo Repository, in applyInput) error {
	deltas := split.FootprintDelta(in.OldFootprint, in.NewFootprint)
	for rawUID, delta := range deltas {
		counterparty, err := uuid.Parse(rawUID)
		if err != nil {
			return fmt.Errorf("invalid counterparty id %q in footprint: %w", rawUID, err)
		}
		oriented := split.OrientDelta(in.OwnerID, counterparty, delta)
		stillOpen := in.NewFootprint.Get(rawUID) != 0

		switch in.Scope {
		case enums.FootprintScopeGlobal:
			if err := s.applyFriendDelta(ctx, repo, in.OwnerID, counterparty, in.BillID, oriented, stillOpen); err != nil {
				return err
			}
		case enums.FootprintScopeEvent:
			if in.EventID == nil {
				return fmt.Errorf("event id required for event-scoped delta")
			}
			if err := s.applyEventPairDelta(ctx, repo, *in.EventID, in.OwnerID, counterparty, in.BillID, oriented, stillOpen); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown footprint scope %q", in.Scope)
		}
	}
	return nil
}

func (s *service) applyFriendDelta(ctx context.Context, repo Repository, ownerID, counterparty, billID uuid.UUID, oriented float64, stillOpen bool) error {
	id := split.FriendBalanceID(ownerID, counterparty)
	balance, err := repo.FindFriendBalanceForUpdate(ctx, id)
	if err != nil {
		return err
	}
	if balance == nil {
		first, second := split.SortedPair(ownerID, counterparty)
		balance = &models.FriendBalance{
			ID:           id,
			Participants: pq.StringArray{first.String(), second.String()},
		}
	}
	balance.Balance += oriented
	balance.UnsettledBillIDs = updateMembership(balance.UnsettledBillIDs, billID, stillOpen)
	balance.LastUpdatedAt = time.Now()
	return repo.SaveFriendBalance(ctx, balance)
}

func (s *service) applyEventPairDelta(ctx context.Context, repo Repository, eventID, ownerID, counterparty, billID uuid.UUID, oriented float64, stillOpen bool) error {
	id := split.EventPairBalanceID(eventID, ownerID, counterparty)
	balance, err := repo.FindEventPairBalanceForUpdate(ctx, id)
	if err != nil {
		return err
	}
	if balance == nil {
		first, second := split.SortedPair(ownerID, counterparty)
		balance = &models.EventPairBalance{
			ID:           id,
			EventID:      eventID,
			Participants: pq.StringArray{first.String(), second.String()},
		}
	}
	balance.Balance += oriented
	balance.UnsettledBillIDs = updateMembership(balance.UnsettledBillIDs, billID, stillOpen)
	balance.LastUpdatedAt = time.Now()
	return repo.SaveEventPairBalance(ctx, balance)
}

// rebuildEventCache recomputes the event's pooled net balances from every
// bill currently in the event and refreshes the optimized payment plan.
func (s *service) rebuildEventCache(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) error {
	eventBills, err := s.bills.WithTx(tx).ListByEvent(ctx, eventID, 0)
	if err != nil {
		return err
	}

	linkedByOwner := map[uuid.UUID]map[uuid.UUID]bool{}
	net := map[string]float64{}
	for i := range eventBills {
		bill := &eventBills[i]
		linked, ok := linkedByOwner[bill.OwnerID]
		if !ok {
			linked, err = s.friends.LinkedFriendSet(ctx, bill.OwnerID)
			if err != nil {
				return err
			}
			linkedByOwner[bill.OwnerID] = linked
		}
		for uid, amount := range split.EventNetContribution(bill, linked) {
			net[uid] += amount
		}
	}
	for uid, amount := range net {
		if math.Abs(amount) < split.Epsilon {
			delete(net, uid)
		}
	}

	return s.repo.WithTx(tx).UpsertEventBalance(ctx, &models.EventBalance{
		EventID:        eventID,
		NetBalances:    dbtypes.BalanceMap(net),
		OptimizedDebts: split.OptimizeDebts(net),
		UpdatedAt:      time.Now(),
	})
}

func (s *service) FriendBalances(ctx context.Context, userID uuid.UUID) ([]models.FriendBalance, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListFriendBalancesForUser(ctx, userID)
}

func (s *service) FriendBalanceWith(ctx context.Context, userID, friendID uuid.UUID) (*models.FriendBalance, error) {
	if userID == uuid.Nil || friendID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "both user ids are required")
	}
	if userID == friendID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot balance against yourself")
	}
	return s.repo.FindFriendBalance(ctx, split.FriendBalanceID(userID, friendID))
}

// EventBalance reads the cached event summary, rebuilding it from the
// event's bills when the cache row is missing.
func (s *service) EventBalance(ctx context.Context, eventID uuid.UUID) (*models.EventBalance, error) {
	if eventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	balance, err := s.repo.FindEventBalance(ctx, eventID)
	if err != nil || balance != nil {
		return balance, err
	}
	rebuilt := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// Unknown or empty events do not earn a cache row.
		eventBills, err := s.bills.WithTx(tx).ListByEvent(ctx, eventID, 1)
		if err != nil {
			return err
		}
		if len(eventBills) == 0 {
			return nil
		}
		rebuilt = true
		return s.rebuildEventCache(ctx, tx, eventID)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "rebuild event balance")
	}
	if !rebuilt {
		return nil, nil
	}
	return s.repo.FindEventBalance(ctx, eventID)
}

func (s *service) EventPairBalances(ctx context.Context, eventID uuid.UUID) ([]models.EventPairBalance, error) {
	if eventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	return s.repo.ListEventPairBalances(ctx, eventID)
}

func updateMembership(set dbtypes.UUIDArray, billID uuid.UUID, present bool) dbtypes.UUIDArray {
	if present {
		if set.Contains(billID) {
			return set
		}
		return append(set, billID)
	}
	return set.Without(billID)
}
