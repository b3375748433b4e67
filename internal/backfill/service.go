// Package backfill reprocesses older bills after a user links new friends, so
// participants who were unlinked when a bill was first processed start
// counting toward balances.
package backfill

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/danielortuno/splittab-backend/internal/bills"
	"github.com/danielortuno/splittab-backend/pkg/db"
	"github.com/danielortuno/splittab-backend/pkg/enums"
	pkgerrors "github.com/danielortuno/splittab-backend/pkg/errors"
	"github.com/danielortuno/splittab-backend/pkg/logger"
	"github.com/danielortuno/splittab-backend/pkg/outbox"
	"github.com/danielortuno/splittab-backend/pkg/outbox/payloads"
)

const defaultScanLimit = 200

// Service processes friends updated events.
type Service interface {
	ProcessFriendsUpdated(ctx context.Context, payload payloads.FriendsUpdatedEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	billsRepo bills.Repository
	tx        txRunner
	outbox    outboxEmitter
	scanLimit int
	logg      *logger.Logger
}

// ServiceParams bundles the dependencies required to build a backfill service.
type ServiceParams struct {
	BillsRepo bills.Repository
	DB        *db.Client
	Outbox    outboxEmitter
	ScanLimit int
	Logger    *logger.Logger
}

// NewService constructs a backfill service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.BillsRepo == nil {
		return nil, fmt.Errorf("bills repository is required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service is required")
	}
	scanLimit := params.ScanLimit
	if scanLimit <= 0 {
		scanLimit = defaultScanLimit
	}
	return &service{
		billsRepo: params.BillsRepo,
		tx:        params.DB,
		outbox:    params.Outbox,
		scanLimit: scanLimit,
		logg:      params.Logger,
	}, nil
}

// ProcessFriendsUpdated scans the updating user's own bills for each newly
// linked friend and re-queues them through the ledger pipeline. The scan is
// one-directional: only bills owned by the user who edited their friend list
// are touched, and the total across all added friends is bounded by the scan
// limit. Each bill gets its link version bumped so consumers see a relevant
// change, and the re-queue collapses onto any still-pending update event.
func (s *service) ProcessFriendsUpdated(ctx context.Context, payload payloads.FriendsUpdatedEvent) error {
	if payload.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if len(payload.AddedFriendIDs) == 0 {
		return nil
	}

	scanned := 0
	for _, friendID := range payload.AddedFriendIDs {
		if friendID == uuid.Nil || friendID == payload.UserID {
			continue
		}
		remaining := s.scanLimit - scanned
		if remaining <= 0 {
			break
		}

		matches, err := s.billsRepo.ListOwnedWithParticipant(ctx, payload.UserID, friendID, remaining)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "scan bills for friend")
		}
		scanned += len(matches)

		for i := range matches {
			bill := &matches[i]
			err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				if err := s.billsRepo.WithTx(tx).BumpLinkVersion(ctx, bill.ID); err != nil {
					return err
				}
				return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventBillUpdated,
					AggregateType: enums.AggregateBill,
					AggregateID:   bill.ID,
					Actor:         &outbox.ActorRef{UserID: payload.UserID},
					Data: payloads.BillChangedEvent{
						BillID:  bill.ID,
						OwnerID: bill.OwnerID,
						EventID: bill.EventID,
					},
					Version: 1,
				})
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "requeue bill")
			}
		}
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":        payload.UserID.String(),
			"friends_added":  len(payload.AddedFriendIDs),
			"bills_requeued": scanned,
			"scan_limit_hit": scanned >= s.scanLimit,
		})
		s.logg.Info(logCtx, "friend link backfill completed")
	}
	return nil
}
