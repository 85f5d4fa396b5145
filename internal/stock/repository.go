package stock

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-inventory/internal/repo"
	"github.com/angelmondragon/packfinderz-inventory/pkg/db/models"
	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
)

// Repository reads and administers stock_items rows. Counter changes go
// through Ledger.
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

// FindByItemID returns the row or nil when it does not exist.
func (r *Repository) FindByItemID(ctx context.Context, itemID string) (*models.StockItem, error) {
	return repo.TakeOne[models.StockItem](r.DB(ctx).Where("item_id = ?", itemID))
}

// FindByItemIDs loads every known item among ids, keyed by item id.
func (r *Repository) FindByItemIDs(ctx context.Context, ids []string) (map[string]models.StockItem, error) {
	out := make(map[string]models.StockItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.StockItem
	if err := r.DB(ctx).Where("item_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ItemID] = row
	}
	return out, nil
}

// List pages through items ordered by item id, starting after afterKey.
// A non-empty status narrows the page to that status.
func (r *Repository) List(ctx context.Context, afterKey string, status enums.StockStatus, limit int) ([]models.StockItem, error) {
	query := r.DB(ctx).Order("item_id ASC").Limit(limit)
	if afterKey != "" {
		query = query.Where("item_id > ?", afterKey)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var rows []models.StockItem
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListLowStock returns tracked items at or below their reorder point.
func (r *Repository) ListLowStock(ctx context.Context) ([]models.StockItem, error) {
	var rows []models.StockItem
	err := r.DB(ctx).
		Where("tracked AND available <= reorder_point").
		Order("available ASC").
		Order("item_id ASC").
		Find(&rows).Error
	return rows, err
}

// ListOutOfStock returns tracked items with nothing available.
func (r *Repository) ListOutOfStock(ctx context.Context) ([]models.StockItem, error) {
	var rows []models.StockItem
	err := r.DB(ctx).
		Where("tracked AND available = 0").
		Order("item_id ASC").
		Find(&rows).Error
	return rows, err
}

// UpdateSettings writes threshold and tracking columns. Status is recomputed
// in the same statement because reorder_point and tracked feed it.
func (r *Repository) UpdateSettings(ctx context.Context, itemID string, settings Settings, now time.Time) (int64, error) {
	updates := map[string]any{"updated_at": now}
	trackedExpr, reorderExpr := "tracked", "reorder_point"
	var args []any

	if settings.MinLevel != nil {
		updates["min_level"] = *settings.MinLevel
	}
	if settings.MaxLevel != nil {
		updates["max_level"] = *settings.MaxLevel
	}
	if settings.Notes != nil {
		updates["notes"] = *settings.Notes
	}
	if settings.Tracked != nil {
		updates["tracked"] = *settings.Tracked
		trackedExpr = "?"
		args = append(args, *settings.Tracked)
	}
	if settings.ReorderPoint != nil {
		updates["reorder_point"] = *settings.ReorderPoint
		reorderExpr = "?"
		args = append(args, *settings.ReorderPoint)
	}
	updates["status"] = gorm.Expr(`CASE
        WHEN NOT (`+trackedExpr+`) THEN 'in_stock'
        WHEN on_hand <= 0 OR available <= 0 THEN 'out_of_stock'
        WHEN available <= `+reorderExpr+` THEN 'low_stock'
        ELSE 'in_stock'
    END`, args...)

	res := r.DB(ctx).Model(&models.StockItem{}).Where("item_id = ?", itemID).Updates(updates)
	return res.RowsAffected, res.Error
}

// Delete removes the item. Reservations cascade at the schema level.
// LockForDelete takes the row lock a hold would need, so no hold can land
// between the pending check and the delete. sqlite ignores the clause.
func (r *Repository) LockForDelete(ctx context.Context, itemID string) (*models.StockItem, error) {
	return repo.TakeOne[models.StockItem](
		r.DB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("item_id = ?", itemID),
	)
}

// CountPendingHolds counts reservations still holding units of the item.
func (r *Repository) CountPendingHolds(ctx context.Context, itemID string) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Reservation{}).
		Where("item_id = ? AND status = ?", itemID, enums.ReservationStatusPending).
		Count(&count).Error
	return count, err
}

func (r *Repository) Delete(ctx context.Context, itemID string) (int64, error) {
	res := r.DB(ctx).Where("item_id = ?", itemID).Delete(&models.StockItem{})
	return res.RowsAffected, res.Error
}
