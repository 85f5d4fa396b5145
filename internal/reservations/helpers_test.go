package reservations

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-inventory/internal/stock"
	"github.com/angelmondragon/packfinderz-inventory/pkg/db"
	"github.com/angelmondragon/packfinderz-inventory/pkg/db/models"
	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
	"github.com/angelmondragon/packfinderz-inventory/pkg/metrics"
	"github.com/angelmondragon/packfinderz-inventory/pkg/outbox"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	db       *gorm.DB
	clock    *testClock
	stock    stock.Service
	manager  *Manager
	sweeper  *Sweeper
	batch    *BatchCoordinator
	outbox   *outbox.Repository
	registry *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:reservations_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	client := db.NewFromGorm(conn)
	reg := prometheus.NewRegistry()
	invMetrics := metrics.NewInventoryMetrics(reg)
	ledger := stock.NewLedger(clock.Now, invMetrics)

	stockSvc, err := stock.NewService(stock.ServiceParams{
		Repository: stock.NewRepository(conn),
		Ledger:     ledger,
		DB:         client,
		Now:        clock.Now,
	})
	require.NoError(t, err)

	outboxRepo := outbox.NewRepository(conn)
	repo := NewRepository(conn)
	manager, err := NewManager(ManagerParams{
		DB:         client,
		Repository: repo,
		Ledger:     ledger,
		Outbox:     outbox.NewService(outboxRepo, nil).WithClock(clock.Now),
		Metrics:    invMetrics,
		Now:        clock.Now,
	})
	require.NoError(t, err)

	sweeper, err := NewSweeper(SweeperParams{Manager: manager, Repository: repo, BatchSize: 2})
	require.NoError(t, err)
	batch, err := NewBatchCoordinator(manager)
	require.NoError(t, err)

	return &harness{
		db:       conn,
		clock:    clock,
		stock:    stockSvc,
		manager:  manager,
		sweeper:  sweeper,
		batch:    batch,
		outbox:   outboxRepo,
		registry: reg,
	}
}

func (h *harness) provision(t *testing.T, itemID string, onHand int) {
	t.Helper()
	_, err := h.stock.Provision(context.Background(), stock.ProvisionInput{ItemID: itemID, OnHand: onHand})
	require.NoError(t, err)
}

func (h *harness) item(t *testing.T, itemID string) *stock.StockItemDTO {
	t.Helper()
	dto, err := h.stock.Get(context.Background(), itemID)
	require.NoError(t, err)
	require.Equal(t, max(0, dto.OnHand-dto.Held), dto.Available, "available drifted: %+v", dto)
	return dto
}

func (h *harness) hold(t *testing.T, orderID, itemID string, qty int, ttl time.Duration) *ReservationDTO {
	t.Helper()
	dto, err := h.manager.Hold(context.Background(), HoldInput{OrderID: orderID, ItemID: itemID, Quantity: qty, TTL: ttl})
	require.NoError(t, err)
	return dto
}

func (h *harness) events(t *testing.T, reservationID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	rows, err := h.outbox.ListByAggregate(context.Background(), enums.AggregateReservation, reservationID.String())
	require.NoError(t, err)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}

func counterValue(t *testing.T, h *harness, name, label, value string) float64 {
	t.Helper()
	families, err := h.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if label == "" {
				return metric.GetCounter().GetValue()
			}
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
