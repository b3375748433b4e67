// Package cascade tears down an event's dependents after the event row is
// deleted. Bills go in bounded batches, each deletion re-queuing the same
// unwind the user-facing delete path uses.
package cascade

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/danielortuno/splittab-backend/internal/bills"
	"github.com/danielortuno/splittab-backend/internal/events"
	"github.com/danielortuno/splittab-backend/internal/ledger"
	"github.com/danielortuno/splittab-backend/pkg/db"
	"github.com/danielortuno/splittab-backend/pkg/enums"
	pkgerrors "github.com/danielortuno/splittab-backend/pkg/errors"
	"github.com/danielortuno/splittab-backend/pkg/logger"
	"github.com/danielortuno/splittab-backend/pkg/outbox"
	"github.com/danielortuno/splittab-backend/pkg/outbox/payloads"
)

const defaultBatchSize = 500

// Service processes event deletion events.
type Service interface {
	ProcessEventDeletion(ctx context.Context, payload payloads.EventDeletedEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	billsRepo  bills.Repository
	ledgerRepo ledger.Repository
	eventsRepo events.Repository
	tx         txRunner
	outbox     outboxEmitter
	batchSize  int
	logg       *logger.Logger
}

// ServiceParams bundles the dependencies required to build a cascade service.
type ServiceParams struct {
	BillsRepo  bills.Repository
	LedgerRepo ledger.Repository
	EventsRepo events.Repository
	DB         *db.Client
	Outbox     outboxEmitter
	BatchSize  int
	Logger     *logger.Logger
}

// NewService constructs a cascade service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.BillsRepo == nil {
		return nil, fmt.Errorf("bills repository is required")
	}
	if params.LedgerRepo == nil {
		return nil, fmt.Errorf("ledger repository is required")
	}
	if params.EventsRepo == nil {
		return nil, fmt.Errorf("events repository is required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service is required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &service{
		billsRepo:  params.BillsRepo,
		ledgerRepo: params.LedgerRepo,
		eventsRepo: params.EventsRepo,
		tx:         params.DB,
		outbox:     params.Outbox,
		batchSize:  batchSize,
		logg:       params.Logger,
	}, nil
}

// ProcessEventDeletion deletes the event's bills batch by batch, emitting a
// bill_deleted event per bill so the ledger consumer unwinds the aggregates.
// Event pair balances are left to the pipeline; only the cached summary and
// the invitations are removed directly. Any batch failure aborts the run and
// the redelivered event resumes where it stopped, since deleted bills no
// longer match the query.
func (s *service) ProcessEventDeletion(ctx context.Context, payload payloads.EventDeletedEvent) error {
	if payload.EventID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}

	deleted := 0
	for {
		batch, err := s.billsRepo.ListByEvent(ctx, payload.EventID, s.batchSize)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list event bills")
		}
		if len(batch) == 0 {
			break
		}

		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.billsRepo.WithTx(tx)
			for i := range batch {
				bill := &batch[i]
				if err := repo.Delete(ctx, bill.ID); err != nil {
					return err
				}
				if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventBillDeleted,
					AggregateType: enums.AggregateBill,
					AggregateID:   bill.ID,
					Actor:         &outbox.ActorRef{UserID: payload.OwnerID},
					Data: payloads.BillDeletedEvent{
						BillID:                 bill.ID,
						OwnerID:                bill.OwnerID,
						EventID:                bill.EventID,
						ProcessedBalances:      bill.ProcessedBalances,
						ProcessedEventBalances: bill.ProcessedEventBalances,
					},
					Version: 1,
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete bill batch")
		}

		deleted += len(batch)
		if len(batch) < s.batchSize {
			break
		}
	}

	cleanupErr := multierr.Combine(
		s.ledgerRepo.DeleteEventBalance(ctx, payload.EventID),
		s.eventsRepo.DeleteInvitationsByEvent(ctx, payload.EventID),
	)
	if cleanupErr != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, cleanupErr, "event cleanup")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id":      payload.EventID.String(),
			"bills_deleted": deleted,
		})
		s.logg.Info(logCtx, "event cascade completed")
	}
	return nil
}
