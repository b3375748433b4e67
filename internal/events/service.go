package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/danielortuno/splittab-backend/pkg/db"
	"github.com/danielortuno/splittab-backend/pkg/db/models"
	"github.com/danielortuno/splittab-backend/pkg/enums"
	pkgerrors "github.com/danielortuno/splittab-backend/pkg/errors"
	"github.com/danielortuno/splittab-backend/pkg/logger"
	"github.com/danielortuno/splittab-backend/pkg/outbox"
	"github.com/danielortuno/splittab-backend/pkg/outbox/payloads"
)

// Service exposes event lifecycle operations. Deleting an event only removes
// the row and queues the cascade; dependents are cleaned up by the cascade
// consumer.
type Service interface {
	Create(ctx context.Context, callerID uuid.UUID, name string) (*models.Event, error)
	Get(ctx context.Context, eventID uuid.UUID) (*models.Event, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Event, error)
	Delete(ctx context.Context, callerID, eventID uuid.UUID) error
	Invite(ctx context.Context, callerID, eventID uuid.UUID, email string) (*models.EventInvitation, error)
	ListInvitations(ctx context.Context, eventID uuid.UUID) ([]models.EventInvitation, error)
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

// ServiceParams bundles the dependencies required to build an events service.
type ServiceParams struct {
	Repo   Repository
	DB     *db.Client
	Outbox outboxEmitter
	Logger *logger.Logger
}

// NewService constructs an events service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("events repository is required")
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

func (s *service) Create(ctx context.Context, callerID uuid.UUID, name string) (*models.Event, error) {
	if callerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "caller id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event name is required")
	}

	event := &models.Event{OwnerID: callerID, Name: name}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create event")
	}
	return event, nil
}

func (s *service) Get(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load event")
	}
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	return event, nil
}

func (s *service) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Event, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

func (s *service) Delete(ctx context.Context, callerID, eventID uuid.UUID) error {
	if callerID == uuid.Nil || eventID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "caller and event ids are required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		event, err := repo.FindByID(ctx, eventID)
		if err != nil {
			return err
		}
		if event == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
		}
		if event.OwnerID != callerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can delete an event")
		}

		if err := repo.Delete(ctx, eventID); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEventDeleted,
			AggregateType: enums.AggregateEvent,
			AggregateID:   eventID,
			Actor:         &outbox.ActorRef{UserID: callerID},
			Data: payloads.EventDeletedEvent{
				EventID: eventID,
				OwnerID: event.OwnerID,
			},
			Version: 1,
		})
	})
}

func (s *service) Invite(ctx context.Context, callerID, eventID uuid.UUID, email string) (*models.EventInvitation, error) {
	if callerID == uuid.Nil || eventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "caller and event ids are required")
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}

	if _, err := s.Get(ctx, eventID); err != nil {
		return nil, err
	}

	invitation := &models.EventInvitation{
		EventID:   eventID,
		Email:     email,
		InvitedBy: callerID,
	}
	if err := s.repo.CreateInvitation(ctx, invitation); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create invitation")
	}
	return invitation, nil
}

func (s *service) ListInvitations(ctx context.Context, eventID uuid.UUID) ([]models.EventInvitation, error) {
	return s.repo.ListInvitations(ctx, eventID)
}
