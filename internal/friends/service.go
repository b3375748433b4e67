package friends

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/danielortuno/splittab-backend/pkg/db"
	"github.com/danielortuno/splittab-backend/pkg/enums"
	pkgerrors "github.com/danielortuno/splittab-backend/pkg/errors"
	"github.com/danielortuno/splittab-backend/pkg/logger"
	"github.com/danielortuno/splittab-backend/pkg/outbox"
	"github.com/danielortuno/splittab-backend/pkg/outbox/payloads"
)

// Service exposes friend list reads and the update path that fans out to the
// backfill pipeline.
type Service interface {
	List(ctx context.Context, userID uuid.UUID) ([]Friend, error)
	LinkedFriendSet(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error)
	Update(ctx context.Context, userID uuid.UUID, next []Friend) (*UpdateResult, error)
}

// UpdateResult reports what an Update call changed.
type UpdateResult struct {
	Friends  []Friend    `json:"friends"`
	AddedIDs []uuid.UUID `json:"addedIds"`
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

// ServiceParams bundles the dependencies required to build a friends service.
type ServiceParams struct {
	Repo   Repository
	DB     *db.Client
	Outbox outboxEmitter
	Logger *logger.Logger
}

// NewService constructs a friends service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("friends repository is required")
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

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]Friend, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	user, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	list, err := NormalizeList(user.Friends)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "normalize friend list")
	}
	return list, nil
}

// LinkedFriendSet resolves the owner's friend ids for footprint resolution.
// A missing user is an error here, not a no-op: the caller must abort and
// retry rather than aggregate against an empty set.
func (s *service) LinkedFriendSet(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	list, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return IDSet(list), nil
}

func (s *service) Update(ctx context.Context, userID uuid.UUID, next []Friend) (*UpdateResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	for _, friend := range next {
		if friend.UserID == userID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot friend yourself")
		}
	}

	var result UpdateResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		user, err := repo.FindUser(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}

		prev, err := NormalizeList(user.Friends)
		if err != nil {
			return err
		}
		canonical, err := NormalizeList(mustMarshal(next))
		if err != nil {
			return err
		}

		raw, err := MarshalList(canonical)
		if err != nil {
			return err
		}
		if err := repo.UpdateFriends(ctx, userID, raw); err != nil {
			return err
		}

		added := AddedIDs(prev, canonical)
		result = UpdateResult{Friends: canonical, AddedIDs: added}
		if len(added) == 0 {
			return nil
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUserFriendsUpdated,
			AggregateType: enums.AggregateUser,
			AggregateID:   userID,
			Actor:         &outbox.ActorRef{UserID: userID},
			Data: payloads.FriendsUpdatedEvent{
				UserID:         userID,
				AddedFriendIDs: added,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil && len(result.AddedIDs) > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":      userID.String(),
			"added_count":  len(result.AddedIDs),
			"total_count":  len(result.Friends),
		})
		s.logg.Info(logCtx, "friend list updated")
	}
	return &result, nil
}

func mustMarshal(list []Friend) []byte {
	raw, err := MarshalList(list)
	if err != nil {
		return []byte("[]")
	}
	return raw
}
