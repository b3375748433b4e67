package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/danielortuno/splittab-backend/pkg/db/models"
)

// Repository manages persistence for the materialized balance aggregates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindBillForUpdate(ctx context.Context, id uuid.UUID) (*models.Bill, error)
	UpdateBillFields(ctx context.Context, id uuid.UUID, fields map[string]any) error

	FindFriendBalance(ctx context.Context, id string) (*models.FriendBalance, error)
	FindFriendBalanceForUpdate(ctx context.Context, id string) (*models.FriendBalance, error)
	SaveFriendBalance(ctx context.Context, balance *models.FriendBalance) error
	ListFriendBalancesForUser(ctx context.Context, userID uuid.UUID) ([]models.FriendBalance, error)

	FindEventPairBalance(ctx context.Context, id string) (*models.EventPairBalance, error)
	FindEventPairBalanceForUpdate(ctx context.Context, id string) (*models.EventPairBalance, error)
	SaveEventPairBalance(ctx context.Context, balance *models.EventPairBalance) error
	ListEventPairBalances(ctx context.Context, eventID uuid.UUID) ([]models.EventPairBalance, error)

	FindEventBalance(ctx context.Context, eventID uuid.UUID) (*models.EventBalance, error)
	UpsertEventBalance(ctx context.Context, balance *models.EventBalance) error
	DeleteEventBalance(ctx context.Context, eventID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindBillForUpdate(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	var bill models.Bill
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&bill).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bill, nil
}

func (r *repository) UpdateBillFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Bill{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repository) FindFriendBalance(ctx context.Context, id string) (*models.FriendBalance, error) {
	var balance models.FriendBalance
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (r *repository) FindFriendBalanceForUpdate(ctx context.Context, id string) (*models.FriendBalance, error) {
	var balance models.FriendBalance
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (r *repository) SaveFriendBalance(ctx context.Context, balance *models.FriendBalance) error {
	return r.db.WithContext(ctx).Save(balance).Error
}

func (r *repository) ListFriendBalancesForUser(ctx context.Context, userID uuid.UUID) ([]models.FriendBalance, error) {
	var rows []models.FriendBalance
	err := r.db.WithContext(ctx).
		Where("? = ANY(participants)", userID.String()).
		Order("last_updated_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindEventPairBalance(ctx context.Context, id string) (*models.EventPairBalance, error) {
	var balance models.EventPairBalance
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (r *repository) FindEventPairBalanceForUpdate(ctx context.Context, id string) (*models.EventPairBalance, error) {
	var balance models.EventPairBalance
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (r *repository) SaveEventPairBalance(ctx context.Context, balance *models.EventPairBalance) error {
	return r.db.WithContext(ctx).Save(balance).Error
}

func (r *repository) ListEventPairBalances(ctx context.Context, eventID uuid.UUID) ([]models.EventPairBalance, error) {
	var rows []models.EventPairBalance
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindEventBalance(ctx context.Context, eventID uuid.UUID) (*models.EventBalance, error) {
	var balance models.EventBalance
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (r *repository) UpsertEventBalance(ctx context.Context, balance *models.EventBalance) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			UpdateAll: true,
		}).
		Create(balance).Error
}

func (r *repository) DeleteEventBalance(ctx context.Context, eventID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Delete(&models.EventBalance{}).Error
}
