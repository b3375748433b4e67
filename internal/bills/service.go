package bills

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/danielortuno/splittab-backend/pkg/db"
	"github.com/danielortuno/splittab-backend/pkg/db/models"
	dbtypes "github.com/danielortuno/splittab-backend/pkg/db/types"
	"github.com/danielortuno/splittab-backend/pkg/enums"
	pkgerrors "github.com/danielortuno/splittab-backend/pkg/errors"
	"github.com/danielortuno/splittab-backend/pkg/logger"
	"github.com/danielortuno/splittab-backend/pkg/outbox"
	"github.com/danielortuno/splittab-backend/pkg/outbox/payloads"
)

// Service exposes the bill editing surface. Every balance-relevant write
// queues the matching domain event in the same transaction.
type Service interface {
	Create(ctx context.Context, callerID uuid.UUID, input CreateBillInput) (*models.Bill, error)
	Update(ctx context.Context, callerID, billID uuid.UUID, input UpdateBillInput) (*models.Bill, error)
	Delete(ctx context.Context, callerID, billID uuid.UUID) error
	Get(ctx context.Context, callerID, billID uuid.UUID) (*models.Bill, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Bill, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Bill, error)
}

// CreateBillInput captures a new bill document.
type CreateBillInput struct {
	Title   string         `json:"title" validate:"required"`
	EventID *uuid.UUID     `json:"eventId"`
	PayerID *uuid.UUID     `json:"payerId"`
	People  dbtypes.People `json:"people" validate:"required,min=1"`
	Items   dbtypes.Items  `json:"items"`
}

// UpdateBillInput mutates an existing bill. Nil fields are left untouched.
type UpdateBillInput struct {
	Title            *string         `json:"title"`
	PayerID          *uuid.UUID      `json:"payerId"`
	People           *dbtypes.People `json:"people"`
	Items            *dbtypes.Items  `json:"items"`
	SettledPersonIDs *[]string       `json:"settledPersonIds"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxEmitter
	logg   *logger.Logger
}

// ServiceParams bundles the dependencies required to build a bills service.
type ServiceParams struct {
	Repo   Repository
	DB     *db.Client
	Outbox outboxEmitter
	Logger *logger.Logger
}

// NewService constructs a bills service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("bills repository is required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service is required")
	}
	return &service{
		repo:   params.Repo,
		tx:     params.DB,
		outbox: params.Outbox,
		logg:   params.Logger,
	}, nil
}

func (s *service) Create(ctx context.Context, callerID uuid.UUID, input CreateBillInput) (*models.Bill, error) {
	if callerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "caller id is required")
	}
	if len(input.People) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one participant is required")
	}

	payer := callerID
	if input.PayerID != nil && *input.PayerID != uuid.Nil {
		payer = *input.PayerID
	}

	bill := &models.Bill{
		OwnerID:      callerID,
		EventID:      input.EventID,
		PayerID:      payer,
		Title:        input.Title,
		People:       input.People,
		Items:        input.Items,
		PersonTotals: ComputeTotals(input.Items),
	}
	DeriveParticipants(bill)

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, bill); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBillCreated,
			AggregateType: enums.AggregateBill,
			AggregateID:   bill.ID,
			Actor:         &outbox.ActorRef{UserID: callerID},
			Data: payloads.BillChangedEvent{
				BillID:  bill.ID,
				OwnerID: bill.OwnerID,
				EventID: bill.EventID,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create bill")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithBillID(ctx, bill.ID), "bill created")
	}
	return bill, nil
}

func (s *service) Update(ctx context.Context, callerID, billID uuid.UUID, input UpdateBillInput) (*models.Bill, error) {
	if callerID == uuid.Nil || billID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "caller and bill ids are required")
	}

	var updated *models.Bill
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		bill, err := repo.FindByID(ctx, billID)
		if err != nil {
			return err
		}
		if bill == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
		}
		if bill.OwnerID != callerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can edit a bill")
		}

		before := *bill
		applyUpdate(bill, input)
		DeriveParticipants(bill)

		if err := repo.Save(ctx, bill); err != nil {
			return err
		}

		if RelevantChange(&before, bill) {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventBillUpdated,
				AggregateType: enums.AggregateBill,
				AggregateID:   bill.ID,
				Actor:         &outbox.ActorRef{UserID: callerID},
				Data: payloads.BillChangedEvent{
					BillID:  bill.ID,
					OwnerID: bill.OwnerID,
					EventID: bill.EventID,
				},
				Version: 1,
			}); err != nil {
				return err
			}
		}

		updated = bill
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Delete(ctx context.Context, callerID, billID uuid.UUID) error {
	if callerID == uuid.Nil || billID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "caller and bill ids are required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		bill, err := repo.FindByID(ctx, billID)
		if err != nil {
			return err
		}
		if bill == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
		}
		if bill.OwnerID != callerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can delete a bill")
		}

		if err := repo.Delete(ctx, billID); err != nil {
			return err
		}

		// The row is gone once this commits, so the deletion event carries
		// the applied footprints the consumers need for the unwind.
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBillDeleted,
			AggregateType: enums.AggregateBill,
			AggregateID:   bill.ID,
			Actor:         &outbox.ActorRef{UserID: callerID},
			Data: payloads.BillDeletedEvent{
				BillID:                 bill.ID,
				OwnerID:                bill.OwnerID,
				EventID:                bill.EventID,
				ProcessedBalances:      bill.ProcessedBalances,
				ProcessedEventBalances: bill.ProcessedEventBalances,
			},
			Version: 1,
		})
	})
}

func (s *service) Get(ctx context.Context, callerID, billID uuid.UUID) (*models.Bill, error) {
	bill, err := s.repo.FindByID(ctx, billID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load bill")
	}
	if bill == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
	}
	if bill.OwnerID != callerID && !billIncludesUser(bill, callerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a participant on this bill")
	}
	return bill, nil
}

func (s *service) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Bill, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

func (s *service) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Bill, error) {
	return s.repo.ListByEvent(ctx, eventID, 0)
}

func applyUpdate(bill *models.Bill, input UpdateBillInput) {
	if input.Title != nil {
		bill.Title = *input.Title
	}
	if input.PayerID != nil && *input.PayerID != uuid.Nil {
		bill.PayerID = *input.PayerID
	}
	if input.People != nil {
		bill.People = *input.People
	}
	if input.Items != nil {
		bill.Items = *input.Items
		bill.PersonTotals = ComputeTotals(bill.Items)
	}
	if input.SettledPersonIDs != nil {
		bill.SettledPersonIDs = pq.StringArray(*input.SettledPersonIDs)
	}
}

func billIncludesUser(bill *models.Bill, userID uuid.UUID) bool {
	for _, id := range bill.ParticipantUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
