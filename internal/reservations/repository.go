package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-inventory/internal/repo"
	"github.com/angelmondragon/packfinderz-inventory/pkg/db/models"
	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
)

// Repository persists reservation rows. Status changes only ever leave
// pending, and only through Transition.
type Repository struct {
	repo.Base
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.Bind(tx)}
}

func (r *Repository) Create(ctx context.Context, reservation *models.Reservation) error {
	return r.DB(ctx).Create(reservation).Error
}

// FindByID returns the row or nil when it does not exist.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	return repo.TakeOne[models.Reservation](r.DB(ctx).Where("id = ?", id))
}

// ListByOrder returns every reservation of an order, oldest first.
func (r *Repository) ListByOrder(ctx context.Context, orderID string) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.DB(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("item_id ASC").
		Find(&rows).Error
	return rows, err
}

// ListExpiredPending returns pending rows whose hold ran out before now.
func (r *Repository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.DB(ctx).
		Where("status = ? AND expires_at < ?", enums.ReservationStatusPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Transition flips a pending row to status. Zero rows affected means another
// caller already moved it out of pending.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, status enums.ReservationStatus, now time.Time) (int64, error) {
	res := r.DB(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, enums.ReservationStatusPending).
		Updates(map[string]any{
			"status":     status,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}
