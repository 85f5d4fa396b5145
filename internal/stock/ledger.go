package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-inventory/pkg/db/models"
	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-inventory/pkg/errors"
	"github.com/angelmondragon/packfinderz-inventory/pkg/metrics"
)

const tracerName = "github.com/angelmondragon/packfinderz-inventory/internal/stock"

// Ledger applies counter changes to stock_items. Every mutation is a single
// conditional statement; a zero row count is the failure signal and the
// follow-up read only shapes the error.
type Ledger struct {
	now     func() time.Time
	metrics *metrics.InventoryMetrics
	tracer  trace.Tracer
}

// NewLedger builds a ledger. A nil clock falls back to time.Now.
func NewLedger(now func() time.Time, m *metrics.InventoryMetrics) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{now: now, metrics: m, tracer: otel.Tracer(tracerName)}
}

// counterSet renders the SET clause for new on_hand/held expressions.
// available and status are derived from the same expressions so they can
// never drift from the counters within one statement.
func counterSet(onHand, held string) string {
	available := fmt.Sprintf("CASE WHEN (%[1]s) - (%[2]s) > 0 THEN (%[1]s) - (%[2]s) ELSE 0 END", onHand, held)
	return fmt.Sprintf(`on_hand = %[1]s,
    held = %[2]s,
    available = %[3]s,
    status = CASE
        WHEN NOT tracked THEN 'in_stock'
        WHEN (%[1]s) <= 0 OR (%[3]s) <= 0 THEN 'out_of_stock'
        WHEN (%[3]s) <= reorder_point THEN 'low_stock'
        ELSE 'in_stock'
    END`, onHand, held, available)
}

const flooredOnHand = "CASE WHEN on_hand - @qty > 0 THEN on_hand - @qty ELSE 0 END"

var (
	restockSQL = `UPDATE stock_items SET ` + counterSet("on_hand + @qty", "held") + `,
    last_restocked_at = @now,
    updated_at = @now
WHERE item_id = @item`

	sellSQL = `UPDATE stock_items SET ` + counterSet(flooredOnHand, "held") + `,
    last_sold_at = @now,
    updated_at = @now
WHERE item_id = @item AND (NOT tracked OR available >= @qty)`

	returnSQL = `UPDATE stock_items SET ` + counterSet("on_hand + @qty", "held") + `,
    total_returned = total_returned + @qty,
    updated_at = @now
WHERE item_id = @item`

	reserveSQL = `UPDATE stock_items SET ` + counterSet("on_hand", "held + @qty") + `,
    updated_at = @now
WHERE item_id = @item AND (NOT tracked OR available >= @qty)`

	releaseSQL = `UPDATE stock_items SET ` + counterSet("on_hand", "CASE WHEN held - @qty > 0 THEN held - @qty ELSE 0 END") + `,
    updated_at = @now
WHERE item_id = @item`

	confirmSQL = `UPDATE stock_items SET ` + counterSet(flooredOnHand, "held - @qty") + `,
    total_sold = total_sold + @qty,
    last_sold_at = @now,
    updated_at = @now
WHERE item_id = @item AND held >= @qty`
)

// Provision inserts a new stock item. Duplicates fail with CodeConflict and
// leave the existing row untouched.
func (l *Ledger) Provision(ctx context.Context, tx *gorm.DB, item *models.StockItem) error {
	ctx, span := l.tracer.Start(ctx, "stock.Provision", trace.WithAttributes(attribute.String("item_id", item.ItemID)))
	defer span.End()

	if item.OnHand < 0 {
		return l.fail(span, pkgerrors.New(pkgerrors.CodeValidation, "on_hand must be >= 0"))
	}
	now := l.now().UTC()
	item.Held = 0
	item.Available = item.OnHand
	item.Status = enums.DeriveStockStatus(item.Tracked, item.OnHand, item.Available, item.ReorderPoint)
	item.CreatedAt = now
	item.UpdatedAt = now

	res := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(item)
	if res.Error != nil {
		return l.fail(span, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "provision stock item"))
	}
	if res.RowsAffected == 0 {
		return l.fail(span, pkgerrors.Newf(pkgerrors.CodeConflict, "stock item %s already exists", item.ItemID))
	}
	return nil
}

// Restock adds qty to on_hand.
func (l *Ledger) Restock(ctx context.Context, tx *gorm.DB, itemID string, qty int) error {
	return l.apply(ctx, tx, "restock", restockSQL, itemID, qty)
}

// Sell removes qty from on_hand if that much is available. Untracked items
// skip the guard and floor at zero.
func (l *Ledger) Sell(ctx context.Context, tx *gorm.DB, itemID string, qty int) error {
	return l.apply(ctx, tx, "sell", sellSQL, itemID, qty)
}

// Return puts qty back on the shelf and counts it.
func (l *Ledger) Return(ctx context.Context, tx *gorm.DB, itemID string, qty int) error {
	return l.apply(ctx, tx, "return", returnSQL, itemID, qty)
}

// Reserve moves qty into held if that much is available.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, itemID string, qty int) error {
	return l.apply(ctx, tx, "reserve", reserveSQL, itemID, qty)
}

// Release gives held quantity back. held never drops below zero.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, itemID string, qty int) error {
	return l.apply(ctx, tx, "release", releaseSQL, itemID, qty)
}

// Confirm converts held quantity into a sale.
func (l *Ledger) Confirm(ctx context.Context, tx *gorm.DB, itemID string, qty int) error {
	return l.apply(ctx, tx, "confirm", confirmSQL, itemID, qty)
}

func (l *Ledger) apply(ctx context.Context, tx *gorm.DB, op, statement, itemID string, qty int) error {
	ctx, span := l.tracer.Start(ctx, "stock."+op, trace.WithAttributes(
		attribute.String("item_id", itemID),
		attribute.Int("qty", qty),
	))
	defer span.End()

	if tx == nil {
		return l.fail(span, errors.New("transaction required"))
	}
	if itemID == "" {
		return l.fail(span, pkgerrors.New(pkgerrors.CodeValidation, "itemId is required"))
	}
	if qty <= 0 {
		return l.fail(span, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero"))
	}

	res := tx.WithContext(ctx).Exec(statement, map[string]any{
		"item": itemID,
		"qty":  qty,
		"now":  l.now().UTC(),
	})
	if res.Error != nil {
		return l.fail(span, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, op+" stock item"))
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return l.fail(span, l.explainMiss(ctx, tx, op, itemID, qty))
}

// explainMiss turns a zero-row update into NotFound or InsufficientStock.
func (l *Ledger) explainMiss(ctx context.Context, tx *gorm.DB, op, itemID string, qty int) error {
	var item models.StockItem
	err := tx.WithContext(ctx).Select("item_id", "available", "held").Where("item_id = ?", itemID).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "stock item %s not found", itemID)
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read stock item")
	}

	available := item.Available
	if op == "confirm" {
		available = item.Held
	}
	l.metrics.IncInsufficient(op)
	return InsufficientStock(itemID, qty, available)
}

func (l *Ledger) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// InsufficientStock builds the error returned when a guard rejects a write.
func InsufficientStock(itemID string, requested, available int) error {
	return pkgerrors.Newf(pkgerrors.CodeInsufficientStock,
		"insufficient stock for item %s: requested %d, available %d", itemID, requested, available).
		WithDetails(map[string]any{
			"itemId":    itemID,
			"requested": requested,
			"available": available,
		})
}
