package reservations

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-inventory/pkg/errors"
)

// BatchCoordinator fans order-level requests out to per-item reservations.
// It never rolls back work that already succeeded.
type BatchCoordinator struct {
	manager *Manager
}

// NewBatchCoordinator builds a coordinator over manager.
func NewBatchCoordinator(manager *Manager) (*BatchCoordinator, error) {
	if manager == nil {
		return nil, fmt.Errorf("reservation manager required")
	}
	return &BatchCoordinator{manager: manager}, nil
}

// HoldAll holds each item in ascending item id order and stops at the first
// failure. Holds created before the failure stay pending.
func (b *BatchCoordinator) HoldAll(ctx context.Context, orderID string, items map[string]int, ttl time.Duration) (*BatchResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orderId is required")
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "items are required")
	}

	itemIDs := make([]string, 0, len(items))
	for itemID := range items {
		itemIDs = append(itemIDs, itemID)
	}
	sort.Strings(itemIDs)

	result := &BatchResult{OrderID: orderID, Processed: []ReservationDTO{}}
	for _, itemID := range itemIDs {
		dto, err := b.manager.Hold(ctx, HoldInput{
			OrderID:  orderID,
			ItemID:   itemID,
			Quantity: items[itemID],
			TTL:      ttl,
		})
		if err != nil {
			result.Failed = append(result.Failed, failureFor(nil, itemID, err))
			return result, err
		}
		result.Processed = append(result.Processed, *dto)
	}
	return result, nil
}

// ConfirmAll confirms every pending reservation of the order, continuing
// past failures.
func (b *BatchCoordinator) ConfirmAll(ctx context.Context, orderID string) (*BatchResult, error) {
	return b.each(ctx, orderID, "confirm", b.manager.Confirm)
}

// CancelAll cancels every pending reservation of the order, continuing past
// failures.
func (b *BatchCoordinator) CancelAll(ctx context.Context, orderID string) (*BatchResult, error) {
	return b.each(ctx, orderID, "cancel", b.manager.Cancel)
}

func (b *BatchCoordinator) each(ctx context.Context, orderID, action string, fn func(context.Context, uuid.UUID) (*ReservationDTO, error)) (*BatchResult, error) {
	rows, err := b.manager.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{OrderID: strings.TrimSpace(orderID), Processed: []ReservationDTO{}}
	var errs error
	for _, row := range rows {
		if row.Status != enums.ReservationStatusPending {
			continue
		}
		dto, err := fn(ctx, row.ID)
		if err != nil {
			id := row.ID
			result.Failed = append(result.Failed, failureFor(&id, row.ItemID, err))
			errs = multierr.Append(errs, fmt.Errorf("%s reservation %s: %w", action, row.ID, err))
			continue
		}
		result.Processed = append(result.Processed, *dto)
	}
	return result, errs
}

func failureFor(id *uuid.UUID, itemID string, err error) BatchFailure {
	failure := BatchFailure{ReservationID: id, ItemID: itemID, Code: string(pkgerrors.CodeInternal), Message: err.Error()}
	if typed := pkgerrors.As(err); typed != nil {
		failure.Code = string(typed.Code())
		failure.Message = typed.Message()
	}
	return failure
}
