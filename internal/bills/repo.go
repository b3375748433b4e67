package bills

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/danielortuno/splittab-backend/pkg/db/models"
)

// Repository manages persistence for bill documents.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, bill *models.Bill) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Bill, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Bill, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID, limit int) ([]models.Bill, error)
	ListOwnedWithParticipant(ctx context.Context, ownerID, participantID uuid.UUID, limit int) ([]models.Bill, error)
	Save(ctx context.Context, bill *models.Bill) error
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	BumpLinkVersion(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a bills repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, bill *models.Bill) error {
	return r.db.WithContext(ctx).Create(bill).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	var bill models.Bill
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&bill).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bill, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Bill, error) {
	var rows []models.Bill
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListByEvent(ctx context.Context, eventID uuid.UUID, limit int) ([]models.Bill, error) {
	q := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.Bill
	err := q.Find(&rows).Error
	return rows, err
}

// ListOwnedWithParticipant finds bills the owner created that include the
// given user as a linked participant. Backs the friend-link backfill scan.
func (r *repository) ListOwnedWithParticipant(ctx context.Context, ownerID, participantID uuid.UUID, limit int) ([]models.Bill, error) {
	q := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Where("participant_user_ids @> ?", pqUUIDLiteral(participantID)).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.Bill
	err := q.Find(&rows).Error
	return rows, err
}

func (r *repository) Save(ctx context.Context, bill *models.Bill) error {
	return r.db.WithContext(ctx).Save(bill).Error
}

func (r *repository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Bill{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// BumpLinkVersion advances the reprocess sentinel without touching any other
// ledger field.
func (r *repository) BumpLinkVersion(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Bill{}).
		Where("id = ?", id).
		Update("link_version", gorm.Expr("link_version + 1")).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Bill{}).Error
}

func pqUUIDLiteral(id uuid.UUID) string {
	return "{" + id.String() + "}"
}
