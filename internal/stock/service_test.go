package stock

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-inventory/pkg/db/models"
	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-inventory/pkg/errors"
	"github.com/angelmondragon/packfinderz-inventory/pkg/pagination"
)

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)

	conn := newTestDB(t)
	_, err = NewService(ServiceParams{Repository: NewRepository(conn)})
	require.Error(t, err)
}

func TestProvisionAppliesDefaults(t *testing.T) {
	h := newHarness(t)

	dto, err := h.service.Provision(context.Background(), ProvisionInput{ItemID: "  SKU-1  ", OnHand: 50})
	require.NoError(t, err)
	assert.Equal(t, "SKU-1", dto.ItemID)
	assert.Equal(t, 50, dto.OnHand)
	assert.Equal(t, 50, dto.Available)
	assert.Equal(t, 0, dto.Held)
	assert.Equal(t, DefaultMinLevel, dto.MinLevel)
	assert.Equal(t, DefaultMaxLevel, dto.MaxLevel)
	assert.Equal(t, DefaultReorderPoint, dto.ReorderPoint)
	assert.True(t, dto.Tracked)
	assert.Equal(t, enums.StockStatusInStock, dto.Status)

	_, err = h.service.Provision(context.Background(), ProvisionInput{ItemID: "SKU-1", OnHand: 1})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestProvisionValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := map[string]ProvisionInput{
		"blank id":          {ItemID: "   "},
		"negative on hand":  {ItemID: "A", OnHand: -1},
		"negative reorder":  {ItemID: "A", ReorderPoint: intPtr(-1)},
		"min above max":     {ItemID: "A", MinLevel: intPtr(10), MaxLevel: intPtr(5)},
		"id too long":       {ItemID: strings.Repeat("x", maxItemIDLength+1)},
		"negative max only": {ItemID: "A", MinLevel: intPtr(0), MaxLevel: intPtr(-3)},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.service.Provision(ctx, input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), err.Error())
		})
	}
}

func TestGetAndAvailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.provision(t, "SKU-G", 12, 3)

	dto, err := h.service.Get(ctx, "SKU-G")
	require.NoError(t, err)
	assert.Equal(t, 12, dto.OnHand)

	available, err := h.service.Available(ctx, "SKU-G")
	require.NoError(t, err)
	assert.Equal(t, 12, available)

	_, err = h.service.Get(ctx, "nope")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = h.service.Available(ctx, "nope")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRestockSellReturnThroughService(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.provision(t, "SKU-M", 0, 5)

	dto, err := h.service.Restock(ctx, "SKU-M", 3)
	require.NoError(t, err)
	assert.Equal(t, enums.StockStatusLowStock, dto.Status)

	dto, err = h.service.Restock(ctx, "SKU-M", 1200)
	require.NoError(t, err)
	assert.Equal(t, 1203, dto.OnHand, "restock past max level is allowed")

	dto, err = h.service.Sell(ctx, "SKU-M", 3)
	require.NoError(t, err)
	assert.Equal(t, 1200, dto.OnHand)

	_, err = h.service.Sell(ctx, "SKU-M", 5000)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	dto, err = h.service.Return(ctx, "SKU-M", 4)
	require.NoError(t, err)
	assert.Equal(t, 1204, dto.OnHand)
	assert.Equal(t, 4, dto.TotalReturned)

	_, err = h.service.Restock(ctx, "SKU-M", 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListPaginatesByItemID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []string{"C", "A", "E", "B", "D"} {
		h.provision(t, id, 1, 0)
	}

	page, err := h.service.List(ctx, pagination.Params{Limit: 2}, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "A", page.Items[0].ItemID)
	assert.Equal(t, "B", page.Items[1].ItemID)
	require.NotEmpty(t, page.NextCursor)

	page, err = h.service.List(ctx, pagination.Params{Limit: 2, Cursor: page.NextCursor}, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "C", page.Items[0].ItemID)

	page, err = h.service.List(ctx, pagination.Params{Limit: 2, Cursor: page.NextCursor}, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "E", page.Items[0].ItemID)
	assert.Empty(t, page.NextCursor)

	_, err = h.service.List(ctx, pagination.Params{Cursor: "%%%"}, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListFiltersByStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.provision(t, "A-EMPTY", 0, 5)
	h.provision(t, "B-LOW", 3, 5)
	h.provision(t, "C-OK", 50, 5)
	h.provision(t, "D-EMPTY", 0, 5)

	page, err := h.service.List(ctx, pagination.Params{Limit: 1}, enums.StockStatusOutOfStock)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "A-EMPTY", page.Items[0].ItemID)

	page, err = h.service.List(ctx, pagination.Params{Limit: 1, Cursor: page.NextCursor}, enums.StockStatusOutOfStock)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "D-EMPTY", page.Items[0].ItemID)
	assert.Empty(t, page.NextCursor)

	page, err = h.service.List(ctx, pagination.Params{}, enums.StockStatusLowStock)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "B-LOW", page.Items[0].ItemID)

	_, err = h.service.List(ctx, pagination.Params{}, enums.StockStatus("sold_out"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUpdateSettingsRecomputesStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.provision(t, "SKU-T", 8, 2)

	dto, err := h.service.UpdateSettings(ctx, "SKU-T", Settings{ReorderPoint: intPtr(8), Notes: strPtr("shelf 4")})
	require.NoError(t, err)
	assert.Equal(t, 8, dto.ReorderPoint)
	assert.Equal(t, enums.StockStatusLowStock, dto.Status)
	require.NotNil(t, dto.Notes)
	assert.Equal(t, "shelf 4", *dto.Notes)

	dto, err = h.service.UpdateSettings(ctx, "SKU-T", Settings{Tracked: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, dto.Tracked)
	assert.Equal(t, enums.StockStatusInStock, dto.Status)

	_, err = h.service.UpdateSettings(ctx, "SKU-T", Settings{MinLevel: intPtr(2000)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.service.UpdateSettings(ctx, "missing", Settings{MinLevel: intPtr(1)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCheckAvailability(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.provision(t, "SKU-A", 5, 1)
	_, err := h.service.Provision(ctx, ProvisionInput{ItemID: "SKU-UT", OnHand: 0, Tracked: boolPtr(false)})
	require.NoError(t, err)

	results, err := h.service.CheckAvailability(ctx, []AvailabilityRequest{
		{ItemID: "SKU-A", Quantity: 3},
		{ItemID: "SKU-A", Quantity: 9},
		{ItemID: "SKU-UT", Quantity: 4},
		{ItemID: "ghost", Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, AvailabilityResult{ItemID: "SKU-A", Requested: 3, Available: 5, Granted: 3, Known: true}, results[0])
	assert.Equal(t, AvailabilityResult{ItemID: "SKU-A", Requested: 9, Available: 5, Granted: 5, Known: true}, results[1])
	assert.Equal(t, AvailabilityResult{ItemID: "SKU-UT", Requested: 4, Available: 0, Granted: 0, Known: true}, results[2],
		"untracked items grant no more than their available count")
	assert.Equal(t, AvailabilityResult{ItemID: "ghost", Requested: 2}, results[3])

	_, err = h.service.CheckAvailability(ctx, []AvailabilityRequest{{ItemID: "SKU-A", Quantity: -1}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestLowAndOutOfStockListings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.provision(t, "HEALTHY", 100, 10)
	h.provision(t, "LOW", 4, 10)
	h.provision(t, "EMPTY", 0, 10)
	_, err := h.service.Provision(ctx, ProvisionInput{ItemID: "UNTRACKED", OnHand: 0, Tracked: boolPtr(false)})
	require.NoError(t, err)

	low, err := h.service.ListLowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "EMPTY", low[0].ItemID)
	assert.Equal(t, "LOW", low[1].ItemID)

	out, err := h.service.ListOutOfStock(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "EMPTY", out[0].ItemID)
}

func TestDeleteRemovesItem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.provision(t, "SKU-DEL", 3, 1)

	require.NoError(t, h.service.Delete(ctx, "SKU-DEL"))
	_, err := h.service.Get(ctx, "SKU-DEL")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	err = h.service.Delete(ctx, "SKU-DEL")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeleteKeepsReservationHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.provision(t, "AUD", 10, 1)

	pending := models.Reservation{
		ID: uuid.New(), ItemID: "AUD", OrderID: "O1", Quantity: 2,
		Status: enums.ReservationStatusPending, ExpiresAt: fixedNow.Add(time.Hour),
	}
	confirmed := models.Reservation{
		ID: uuid.New(), ItemID: "AUD", OrderID: "O1", Quantity: 3,
		Status: enums.ReservationStatusConfirmed, ExpiresAt: fixedNow.Add(time.Hour),
	}
	require.NoError(t, h.db.Create(&pending).Error)
	require.NoError(t, h.db.Create(&confirmed).Error)

	err := h.service.Delete(ctx, "AUD")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), err.Error())
	_, err = h.service.Get(ctx, "AUD")
	require.NoError(t, err, "item with pending holds stays")

	require.NoError(t, h.db.Model(&models.Reservation{}).Where("id = ?", pending.ID).
		Update("status", enums.ReservationStatusCancelled).Error)
	require.NoError(t, h.service.Delete(ctx, "AUD"))

	var rows []models.Reservation
	require.NoError(t, h.db.Where("order_id = ?", "O1").Order("quantity").Find(&rows).Error)
	require.Len(t, rows, 2, "terminal reservations are retained after the item is gone")
	assert.Equal(t, enums.ReservationStatusCancelled, rows[0].Status)
	assert.Equal(t, enums.ReservationStatusConfirmed, rows[1].Status)
}

// Concurrent holds against the same row never promise more than on hand.
// sqlite allows one writer, so the pool is pinned to a single connection and
// the holds run one after another; TestPostgresConcurrentReservesNeverOversell
// covers truly overlapping updates.
func TestConcurrentReservesNeverOversell(t *testing.T) {
	h := newHarness(t)
	sqlDB, err := h.db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	h.provision(t, "SKU-HOT", 25, 0)

	const workers = 40
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
				return h.ledger.Reserve(context.Background(), tx, "SKU-HOT", 1)
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), err.Error())
		}()
	}
	wg.Wait()

	item := h.item(t, "SKU-HOT")
	requireConsistent(t, item)
	assert.Equal(t, 25, succeeded)
	assert.Equal(t, 25, item.Held)
	assert.Equal(t, 0, item.Available)
}
