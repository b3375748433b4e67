package settlement

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/danielortuno/splittab-backend/internal/ledger"
	"github.com/danielortuno/splittab-backend/internal/split"
	"github.com/danielortuno/splittab-backend/pkg/db"
	"github.com/danielortuno/splittab-backend/pkg/db/models"
	dbtypes "github.com/danielortuno/splittab-backend/pkg/db/types"
	"github.com/danielortuno/splittab-backend/pkg/enums"
	pkgerrors "github.com/danielortuno/splittab-backend/pkg/errors"
	"github.com/danielortuno/splittab-backend/pkg/logger"
	"github.com/danielortuno/splittab-backend/pkg/outbox"
	"github.com/danielortuno/splittab-backend/pkg/outbox/payloads"
)

// Service exposes the settle and reversal transactions.
type Service interface {
	Settle(ctx context.Context, callerID, friendID uuid.UUID) (*SettleResult, error)
	SettleForEvent(ctx context.Context, callerID, friendID, eventID uuid.UUID) (*SettleResult, error)
	ReverseSettlement(ctx context.Context, callerID, settlementID uuid.UUID) (*ReverseResult, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Settlement, error)
}

// SettleResult reports what a settle call cleared. A nil settlement id means
// there was nothing to settle.
type SettleResult struct {
	SettlementID  *uuid.UUID `json:"settlementId"`
	BillsSettled  int        `json:"billsSettled"`
	AmountSettled float64    `json:"amountSettled"`
}

// ReverseResult reports what a reversal restored.
type ReverseResult struct {
	Reversed      bool `json:"reversed"`
	BillsReversed int  `json:"billsReversed"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	repo   Repository
	ledger ledger.Repository
	tx     txRunner
	outbox outboxEmitter
	logg   *logger.Logger
}

// ServiceParams bundles the dependencies required to build the settlement service.
type ServiceParams struct {
	Repo       Repository
	LedgerRepo ledger.Repository
	DB         *db.Client
	Outbox     outboxEmitter
	Logger     *logger.Logger
}

// NewService constructs the settlement service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("settlement repository is required")
	}
	if params.LedgerRepo == nil {
		return nil, fmt.Errorf("ledger repository is required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service is required")
	}
	return &service{
		repo:   params.Repo,
		ledger: params.LedgerRepo,
		tx:     params.DB,
		outbox: params.Outbox,
		logg:   params.Logger,
	}, nil
}

// Settle clears the whole pairwise balance between the caller and a friend.
func (s *service) Settle(ctx context.Context, callerID, friendID uuid.UUID) (*SettleResult, error) {
	return s.settle(ctx, settleInput{
		Scope:    enums.FootprintScopeGlobal,
		CallerID: callerID,
		FriendID: friendID,
	})
}

// SettleForEvent clears the pairwise balance scoped to one event.
func (s *service) SettleForEvent(ctx context.Context, callerID, friendID, eventID uuid.UUID) (*SettleResult, error) {
	if eventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	return s.settle(ctx, settleInput{
		Scope:    enums.FootprintScopeEvent,
		CallerID: callerID,
		FriendID: friendID,
		EventID:  &eventID,
	})
}

type settleInput struct {
	Scope    enums.FootprintScope
	CallerID uuid.UUID
	FriendID uuid.UUID
	EventID  *uuid.UUID
}

// settle is the single body behind both scopes. The only intentional
// asymmetry is which applied-footprint token gets zeroed on each bill:
// global settle zeroes the global token directly so the pipeline cannot
// re-apply the settled amount, while event settle zeroes only the event
// token and lets the pipeline carry the change into the global aggregate.
func (s *service) settle(ctx context.Context, in settleInput) (*SettleResult, error) {
	if in.CallerID == uuid.Nil || in.FriendID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "caller and friend ids are required")
	}
	if in.CallerID == in.FriendID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot settle with yourself")
	}

	result := &SettleResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ledgerRepo := s.ledger.WithTx(tx)

		aggregate, err := s.lockAggregate(ctx, ledgerRepo, in)
		if err != nil {
			return err
		}
		if aggregate == nil {
			return nil
		}
		if math.Abs(aggregate.Balance) < split.Epsilon && len(aggregate.BillIDs) == 0 {
			return nil
		}

		debtor, creditor, err := splitRoles(aggregate.Participants, aggregate.Balance)
		if err != nil {
			return err
		}

		settledBillIDs := dbtypes.UUIDArray{}
		for _, billID := range aggregate.BillIDs {
			// Bills are fetched individually by id to bound the transaction
			// and sidestep stale membership entries.
			bill, err := ledgerRepo.FindBillForUpdate(ctx, billID)
			if err != nil {
				return err
			}
			if bill == nil {
				continue
			}
			debtorLocal := dbtypes.LocalIDForUser(debtor)
			alreadySettled := bill.IsLocalSettled(debtorLocal)

			fields := map[string]any{}
			if !alreadySettled {
				fields["settled_person_ids"] = pq.StringArray(append(bill.SettledPersonIDs, debtorLocal))
				fields["unsettled_participant_ids"] = bill.UnsettledParticipantIDs.Without(debtor)
			}
			// The scope token is zeroed even when the debtor side is already
			// settled: the aggregate below zeroes wholesale, and a stale token
			// would hand the pipeline a second delta to apply on redelivery.
			counterparty := pairCounterparty(bill.OwnerID, debtor, creditor)
			switch in.Scope {
			case enums.FootprintScopeGlobal:
				token := bill.ProcessedBalances.Clone()
				token[counterparty.String()] = 0
				fields["processed_balances"] = token
			case enums.FootprintScopeEvent:
				token := bill.ProcessedEventBalances.Clone()
				token[counterparty.String()] = 0
				fields["processed_event_balances"] = token
			}

			if err := ledgerRepo.UpdateBillFields(ctx, billID, fields); err != nil {
				return err
			}
			if alreadySettled {
				continue
			}
			if err := s.emitBillUpdated(ctx, tx, bill, in.CallerID); err != nil {
				return err
			}
			settledBillIDs = append(settledBillIDs, billID)
		}

		amount := split.RoundCents(math.Abs(aggregate.Balance))
		if err := s.zeroAggregate(ctx, ledgerRepo, in, aggregate); err != nil {
			return err
		}

		settlement := &models.Settlement{
			FromUserID:     debtor,
			ToUserID:       creditor,
			Amount:         amount,
			SettledBillIDs: settledBillIDs,
			EventID:        in.EventID,
		}
		if err := s.repo.WithTx(tx).Create(ctx, settlement); err != nil {
			return err
		}

		result.SettlementID = &settlement.ID
		result.BillsSettled = len(settledBillIDs)
		result.AmountSettled = amount
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil && result.SettlementID != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"settlement_id": result.SettlementID.String(),
			"bills_settled": result.BillsSettled,
			"scope":         string(in.Scope),
		})
		s.logg.Info(logCtx, "balance settled")
	}
	return result, nil
}

// lockedAggregate is the scope-independent view of a pair balance row.
type lockedAggregate struct {
	Participants []string
	Balance      float64
	BillIDs      dbtypes.UUIDArray
}

func (s *service) lockAggregate(ctx context.Context, repo ledger.Repository, in settleInput) (*lockedAggregate, error) {
	switch in.Scope {
	case enums.FootprintScopeGlobal:
		balance, err := repo.FindFriendBalanceForUpdate(ctx, split.FriendBalanceID(in.CallerID, in.FriendID))
		if err != nil || balance == nil {
			return nil, err
		}
		return &lockedAggregate{
			Participants: balance.Participants,
			Balance:      balance.Balance,
			BillIDs:      balance.UnsettledBillIDs,
		}, nil
	case enums.FootprintScopeEvent:
		balance, err := repo.FindEventPairBalanceForUpdate(ctx, split.EventPairBalanceID(*in.EventID, in.CallerID, in.FriendID))
		if err != nil || balance == nil {
			return nil, err
		}
		return &lockedAggregate{
			Participants: balance.Participants,
			Balance:      balance.Balance,
			BillIDs:      balance.UnsettledBillIDs,
		}, nil
	default:
		return nil, fmt.Errorf("unknown footprint scope %q", in.Scope)
	}
}

func (s *service) zeroAggregate(ctx context.Context, repo ledger.Repository, in settleInput, aggregate *lockedAggregate) error {
	switch in.Scope {
	case enums.FootprintScopeGlobal:
		balance, err := repo.FindFriendBalanceForUpdate(ctx, split.FriendBalanceID(in.CallerID, in.FriendID))
		if err != nil {
			return err
		}
		if balance == nil {
			return nil
		}
		balance.Balance = 0
		balance.UnsettledBillIDs = dbtypes.UUIDArray{}
		return repo.SaveFriendBalance(ctx, balance)
	case enums.FootprintScopeEvent:
		balance, err := repo.FindEventPairBalanceForUpdate(ctx, split.EventPairBalanceID(*in.EventID, in.CallerID, in.FriendID))
		if err != nil {
			return err
		}
		if balance == nil {
			return nil
		}
		balance.Balance = 0
		balance.UnsettledBillIDs = dbtypes.UUIDArray{}
		return repo.SaveEventPairBalance(ctx, balance)
	default:
		return fmt.Errorf("unknown footprint scope %q", in.Scope)
	}
}

// ReverseSettlement restores the settled bills and deletes the settlement
// record. No aggregate is written here: the pipeline re-fires from each
// bill's settled-set change and recomputes balances from current state.
func (s *service) ReverseSettlement(ctx context.Context, callerID, settlementID uuid.UUID) (*ReverseResult, error) {
	if callerID == uuid.Nil || settlementID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "caller and settlement ids are required")
	}

	settlement, err := s.repo.FindByID(ctx, settlementID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load settlement")
	}
	if settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
	}
	if callerID != settlement.FromUserID && callerID != settlement.ToUserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only a settlement participant can reverse it")
	}

	result := &ReverseResult{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ledgerRepo := s.ledger.WithTx(tx)
		for _, billID := range settlement.SettledBillIDs {
			bill, err := ledgerRepo.FindBillForUpdate(ctx, billID)
			if err != nil {
				return err
			}
			if bill == nil {
				continue
			}

			// The batch may span bills with different payers, so the debtor
			// is re-derived per bill instead of trusting the stored roles.
			debtor := debtorForBill(bill, settlement)
			debtorLocal := dbtypes.LocalIDForUser(debtor)
			if !bill.IsLocalSettled(debtorLocal) {
				continue
			}

			unsettled := bill.UnsettledParticipantIDs
			if !unsettled.Contains(debtor) && debtor != bill.CreditorID() {
				unsettled = append(unsettled, debtor)
			}
			fields := map[string]any{
				"settled_person_ids":        removeString(bill.SettledPersonIDs, debtorLocal),
				"unsettled_participant_ids": unsettled,
			}
			if err := ledgerRepo.UpdateBillFields(ctx, billID, fields); err != nil {
				return err
			}
			if err := s.emitBillUpdated(ctx, tx, bill, callerID); err != nil {
				return err
			}
			result.BillsReversed++
		}

		if err := s.repo.WithTx(tx).Delete(ctx, settlementID); err != nil {
			return err
		}
		result.Reversed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"settlement_id":  settlementID.String(),
			"bills_reversed": result.BillsReversed,
		})
		s.logg.Info(logCtx, "settlement reversed")
	}
	return result, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Settlement, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListForUser(ctx, userID)
}

func (s *service) emitBillUpdated(ctx context.Context, tx *gorm.DB, bill *models.Bill, actorID uuid.UUID) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventBillUpdated,
		AggregateType: enums.AggregateBill,
		AggregateID:   bill.ID,
		Actor:         &outbox.ActorRef{UserID: actorID},
		Data: payloads.BillChangedEvent{
			BillID:  bill.ID,
			OwnerID: bill.OwnerID,
			EventID: bill.EventID,
		},
		Version: 1,
	})
}

func splitRoles(participants []string, balance float64) (debtor, creditor uuid.UUID, err error) {
	if len(participants) != 2 {
		return uuid.Nil, uuid.Nil, fmt.Errorf("aggregate has %d participants, want 2", len(participants))
	}
	first, err := uuid.Parse(participants[0])
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid participant %q: %w", participants[0], err)
	}
	second, err := uuid.Parse(participants[1])
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid participant %q: %w", participants[1], err)
	}
	// Positive balance: the first (lexicographically smaller) participant is owed.
	if balance >= 0 {
		return second, first, nil
	}
	return first, second, nil
}

// pairCounterparty picks the footprint key for a bill: the pair member that
// is not the bill's owner.
func pairCounterparty(ownerID, a, b uuid.UUID) uuid.UUID {
	if a == ownerID {
		return b
	}
	return a
}

func debtorForBill(bill *models.Bill, settlement *models.Settlement) uuid.UUID {
	creditor := bill.CreditorID()
	switch creditor {
	case settlement.FromUserID:
		return settlement.ToUserID
	case settlement.ToUserID:
		return settlement.FromUserID
	default:
		return settlement.FromUserID
	}
}

func removeString(list pq.StringArray, value string) pq.StringArray {
	out := make(pq.StringArray, 0, len(list))
	for _, entry := range list {
		if entry != value {
			out = append(out, entry)
		}
	}
	return out
}
