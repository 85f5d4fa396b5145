package reservations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-inventory/pkg/db/models"
	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-inventory/pkg/errors"
)

func TestHoldCreatesPendingReservation(t *testing.T) {
	h := newHarness(t)
	h.provision(t, "SKU-1", 50)

	res := h.hold(t, "ord-1", "SKU-1", 10, 0)
	assert.Equal(t, enums.ReservationStatusPending, res.Status)
	assert.Equal(t, "ord-1", res.OrderID)
	assert.True(t, res.ExpiresAt.Equal(h.clock.Now().Add(DefaultTTL)))

	item := h.item(t, "SKU-1")
	assert.Equal(t, 40, item.Available)
	assert.Equal(t, 10, item.Held)
	assert.Equal(t, []enums.OutboxEventType{enums.EventReservationCreated}, h.events(t, res.ID))

	custom := h.hold(t, "ord-1", "SKU-1", 1, 5*time.Minute)
	assert.True(t, custom.ExpiresAt.Equal(h.clock.Now().Add(5*time.Minute)))
}

func TestHoldInsufficientStockWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.provision(t, "SKU-1", 5)

	_, err := h.manager.Hold(context.Background(), HoldInput{OrderID: "ord-1", ItemID: "SKU-1", Quantity: 6})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	var count int64
	require.NoError(t, h.db.Model(&models.Reservation{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, h.db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, 0, h.item(t, "SKU-1").Held)
}

func TestHoldValidationAndUnknownItem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.manager.Hold(ctx, HoldInput{ItemID: "SKU-1", Quantity: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = h.manager.Hold(ctx, HoldInput{OrderID: "ord", ItemID: "SKU-1", Quantity: 0})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = h.manager.Hold(ctx, HoldInput{OrderID: "ord", ItemID: "ghost", Quantity: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestHoldThenConfirmSellsStock(t *testing.T) {
	h := newHarness(t)
	h.provision(t, "SKU-1", 50)
	res := h.hold(t, "ord-1", "SKU-1", 10, 0)

	confirmed, err := h.manager.Confirm(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ReservationStatusConfirmed, confirmed.Status)

	item := h.item(t, "SKU-1")
	assert.Equal(t, 40, item.OnHand)
	assert.Equal(t, 0, item.Held)
	assert.Equal(t, 10, item.TotalSold)
	assert.ElementsMatch(t, []enums.OutboxEventType{enums.EventReservationCreated, enums.EventReservationConfirmed}, h.events(t, res.ID))
	assert.Equal(t, 1.0, counterValue(t, h, "reservation_transitions_total", "status", "confirmed"))

	_, err = h.manager.Confirm(context.Background(), res.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 40, h.item(t, "SKU-1").OnHand)
}

func TestHoldThenCancelRestoresBaseline(t *testing.T) {
	h := newHarness(t)
	h.provision(t, "SKU-1", 20)
	res := h.hold(t, "ord-1", "SKU-1", 7, 0)

	cancelled, err := h.manager.Cancel(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ReservationStatusCancelled, cancelled.Status)

	item := h.item(t, "SKU-1")
	assert.Equal(t, 20, item.OnHand)
	assert.Equal(t, 0, item.Held)

	_, err = h.manager.Confirm(context.Background(), res.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestDoubleCancelReleasesOnce(t *testing.T) {
	h := newHarness(t)
	h.provision(t, "SKU-1", 20)
	first := h.hold(t, "ord-1", "SKU-1", 5, 0)
	h.hold(t, "ord-2", "SKU-1", 4, 0)

	_, err := h.manager.Cancel(context.Background(), first.ID)
	require.NoError(t, err)
	again, err := h.manager.Cancel(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ReservationStatusCancelled, again.Status)

	item := h.item(t, "SKU-1")
	assert.Equal(t, 4, item.Held, "the other order's hold must survive a retried cancel")
	assert.Len(t, h.events(t, first.ID), 2)
}

func TestConfirmAfterExpiryFailsAndReleases(t *testing.T) {
	h := newHarness(t)
	h.provision(t, "SKU-1", 10)
	res := h.hold(t, "ord-1", "SKU-1", 3, time.Minute)

	h.clock.Advance(2 * time.Minute)
	_, err := h.manager.Confirm(context.Background(), res.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeExpired))

	got, err := h.manager.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ReservationStatusExpired, got.Status)

	item := h.item(t, "SKU-1")
	assert.Equal(t, 0, item.Held)
	assert.Equal(t, 10, item.OnHand)
	assert.Equal(t, 0, item.TotalSold)
	assert.ElementsMatch(t, []enums.OutboxEventType{enums.EventReservationCreated, enums.EventReservationExpired}, h.events(t, res.ID))

	cancelled, err := h.manager.Cancel(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ReservationStatusExpired, cancelled.Status, "cancel of a terminal row is a no-op")
	assert.Equal(t, 0, h.item(t, "SKU-1").Held)
}

func TestConfirmAtExactExpiryStillSucceeds(t *testing.T) {
	h := newHarness(t)
	h.provision(t, "SKU-1", 10)
	res := h.hold(t, "ord-1", "SKU-1", 3, time.Minute)

	h.clock.Advance(time.Minute)
	confirmed, err := h.manager.Confirm(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ReservationStatusConfirmed, confirmed.Status)
}

func TestConfirmRollsBackWhenLedgerRejects(t *testing.T) {
	h := newHarness(t)
	h.provision(t, "SKU-1", 10)
	res := h.hold(t, "ord-1", "SKU-1", 3, 0)

	require.NoError(t, h.db.Model(&models.StockItem{}).Where("item_id = ?", "SKU-1").
		Updates(map[string]any{"held": 0, "available": 10}).Error)

	_, err := h.manager.Confirm(context.Background(), res.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	got, err := h.manager.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ReservationStatusPending, got.Status)
	assert.Len(t, h.events(t, res.ID), 1)
}

func TestGetAndListByOrder(t *testing.T) {
	h := newHarness(t)
	h.provision(t, "A", 5)
	h.provision(t, "B", 5)
	first := h.hold(t, "ord-1", "A", 1, 0)
	h.hold(t, "ord-1", "B", 2, 0)
	h.hold(t, "ord-2", "B", 1, 0)

	got, err := h.manager.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.ItemID)

	_, err = h.manager.Get(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = h.manager.Cancel(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = h.manager.Confirm(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	list, err := h.manager.ListByOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].ItemID)
	assert.Equal(t, "B", list[1].ItemID)

	_, err = h.manager.ListByOrder(context.Background(), " ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestNewManagerRequiresDependencies(t *testing.T) {
	_, err := NewManager(ManagerParams{})
	require.Error(t, err)
}
