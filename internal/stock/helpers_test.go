package stock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-inventory/pkg/db"
	"github.com/angelmondragon/packfinderz-inventory/pkg/db/models"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:stock_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

type harness struct {
	db      *gorm.DB
	client  *db.Client
	ledger  *Ledger
	service Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := newTestDB(t)
	client := db.NewFromGorm(conn)
	ledger := NewLedger(func() time.Time { return fixedNow }, nil)
	svc, err := NewService(ServiceParams{
		Repository: NewRepository(conn),
		Ledger:     ledger,
		DB:         client,
		Now:        func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &harness{db: conn, client: client, ledger: ledger, service: svc}
}

func (h *harness) provision(t *testing.T, itemID string, onHand, reorderPoint int) {
	t.Helper()
	_, err := h.service.Provision(context.Background(), ProvisionInput{
		ItemID:       itemID,
		OnHand:       onHand,
		ReorderPoint: &reorderPoint,
	})
	require.NoError(t, err)
}

// run executes one ledger call in its own transaction.
func (h *harness) run(fn func(tx *gorm.DB) error) error {
	return h.client.WithTx(context.Background(), fn)
}

func (h *harness) item(t *testing.T, itemID string) models.StockItem {
	t.Helper()
	var item models.StockItem
	require.NoError(t, h.db.Where("item_id = ?", itemID).Take(&item).Error)
	return item
}

// requireConsistent checks available == max(0, on_hand - held).
func requireConsistent(t *testing.T, item models.StockItem) {
	t.Helper()
	want := item.OnHand - item.Held
	if want < 0 {
		want = 0
	}
	require.Equal(t, want, item.Available, fmt.Sprintf("available drifted: %+v", item))
	require.GreaterOrEqual(t, item.Held, 0)
}

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }
