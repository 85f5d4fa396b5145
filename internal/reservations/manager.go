package reservations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-inventory/pkg/db/models"
	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-inventory/pkg/errors"
	"github.com/angelmondragon/packfinderz-inventory/pkg/logger"
	"github.com/angelmondragon/packfinderz-inventory/pkg/metrics"
	"github.com/angelmondragon/packfinderz-inventory/pkg/outbox"
	"github.com/angelmondragon/packfinderz-inventory/pkg/outbox/payloads"
)

const (
	tracerName = "github.com/angelmondragon/packfinderz-inventory/internal/reservations"

	// DefaultTTL applies when neither the caller nor config sets one.
	DefaultTTL = 30 * time.Minute
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockLedger interface {
	Reserve(ctx context.Context, tx *gorm.DB, itemID string, qty int) error
	Release(ctx context.Context, tx *gorm.DB, itemID string, qty int) error
	Confirm(ctx context.Context, tx *gorm.DB, itemID string, qty int) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ManagerParams configure the reservation lifecycle manager.
type ManagerParams struct {
	DB         txRunner
	Repository *Repository
	Ledger     stockLedger
	Outbox     eventEmitter
	Metrics    *metrics.InventoryMetrics
	Logger     *logger.Logger
	DefaultTTL time.Duration
	Now        func() time.Time
}

// Manager drives reservations through pending → confirmed | cancelled |
// expired. Every flip is conditional on the row still being pending and
// commits together with its ledger effect and outbox event.
type Manager struct {
	db         txRunner
	repo       *Repository
	ledger     stockLedger
	outbox     eventEmitter
	metrics    *metrics.InventoryMetrics
	logg       *logger.Logger
	defaultTTL time.Duration
	now        func() time.Time
	tracer     trace.Tracer
}

// NewManager validates dependencies and builds a Manager.
func NewManager(params ManagerParams) (*Manager, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	ttl := params.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		db:         params.DB,
		repo:       params.Repository,
		ledger:     params.Ledger,
		outbox:     params.Outbox,
		metrics:    params.Metrics,
		logg:       logg,
		defaultTTL: ttl,
		now:        now,
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// Hold reserves stock and records a pending reservation. Nothing is written
// when the ledger rejects the hold.
func (m *Manager) Hold(ctx context.Context, input HoldInput) (*ReservationDTO, error) {
	ctx, span := m.tracer.Start(ctx, "reservations.Hold", trace.WithAttributes(
		attribute.String("order_id", input.OrderID),
		attribute.String("item_id", input.ItemID),
		attribute.Int("qty", input.Quantity),
	))
	defer span.End()

	input.OrderID = strings.TrimSpace(input.OrderID)
	input.ItemID = strings.TrimSpace(input.ItemID)
	if err := validateHold(input); err != nil {
		return nil, fail(span, err)
	}
	ttl := input.TTL
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	now := m.now().UTC()
	reservation := models.Reservation{
		ID:        uuid.New(),
		ItemID:    input.ItemID,
		OrderID:   input.OrderID,
		Quantity:  input.Quantity,
		Status:    enums.ReservationStatusPending,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := m.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := m.ledger.Reserve(ctx, tx, reservation.ItemID, reservation.Quantity); err != nil {
			return err
		}
		if err := m.repo.WithTx(tx).Create(ctx, &reservation); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reservation")
		}
		return m.emit(ctx, tx, enums.EventReservationCreated, reservation, payloads.ReservationCreatedEvent{
			ReservationEvent: eventBody(reservation),
		})
	})
	if err != nil {
		return nil, fail(span, err)
	}

	m.metrics.IncTransition(string(enums.ReservationStatusPending))
	m.logg.Info(m.logCtx(ctx, reservation), "reservation held")
	dto := toDTO(reservation)
	return &dto, nil
}

// Confirm converts a pending hold into a sale. A hold past its expiry is
// expired and released instead, and the call fails with CodeExpired.
func (m *Manager) Confirm(ctx context.Context, id uuid.UUID) (*ReservationDTO, error) {
	ctx, span := m.tracer.Start(ctx, "reservations.Confirm", trace.WithAttributes(attribute.String("reservation_id", id.String())))
	defer span.End()

	var (
		reservation *models.Reservation
		expired     bool
	)
	err := m.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := m.repo.WithTx(tx)
		row, err := m.load(ctx, repo, id)
		if err != nil {
			return err
		}
		reservation = row
		if row.Status != enums.ReservationStatusPending {
			return invalidState(*row, "confirm")
		}

		now := m.now().UTC()
		if now.After(row.ExpiresAt) {
			flipped, err := m.expireTx(ctx, tx, row, now)
			if err != nil {
				return err
			}
			if !flipped {
				return m.lostRace(ctx, repo, id, "confirm")
			}
			expired = true
			return nil
		}

		affected, err := repo.Transition(ctx, row.ID, enums.ReservationStatusConfirmed, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm reservation")
		}
		if affected == 0 {
			return m.lostRace(ctx, repo, id, "confirm")
		}
		if err := m.ledger.Confirm(ctx, tx, row.ItemID, row.Quantity); err != nil {
			return err
		}
		row.Status = enums.ReservationStatusConfirmed
		row.UpdatedAt = now
		return m.emit(ctx, tx, enums.EventReservationConfirmed, *row, payloads.ReservationConfirmedEvent{
			ReservationEvent: eventBody(*row),
			ConfirmedAt:      now,
		})
	})
	if err != nil {
		return nil, fail(span, err)
	}

	if expired {
		m.metrics.IncTransition(string(enums.ReservationStatusExpired))
		m.metrics.IncExpired()
		m.logg.Warn(m.logCtx(ctx, *reservation), "reservation expired before confirm")
		return nil, fail(span, pkgerrors.Newf(pkgerrors.CodeExpired, "reservation %s expired at %s",
			reservation.ID, reservation.ExpiresAt.Format(time.RFC3339)).
			WithDetails(map[string]any{
				"reservationId": reservation.ID.String(),
				"expiresAt":     reservation.ExpiresAt,
			}))
	}

	m.metrics.IncTransition(string(enums.ReservationStatusConfirmed))
	m.logg.Info(m.logCtx(ctx, *reservation), "reservation confirmed")
	dto := toDTO(*reservation)
	return &dto, nil
}

// Cancel releases a pending hold. Cancelling a terminal reservation returns
// it unchanged and releases nothing.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) (*ReservationDTO, error) {
	ctx, span := m.tracer.Start(ctx, "reservations.Cancel", trace.WithAttributes(attribute.String("reservation_id", id.String())))
	defer span.End()

	var (
		reservation *models.Reservation
		cancelled   bool
	)
	err := m.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := m.repo.WithTx(tx)
		row, err := m.load(ctx, repo, id)
		if err != nil {
			return err
		}
		reservation = row
		if row.Status.IsTerminal() {
			return nil
		}

		now := m.now().UTC()
		affected, err := repo.Transition(ctx, row.ID, enums.ReservationStatusCancelled, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel reservation")
		}
		if affected == 0 {
			current, err := m.load(ctx, repo, id)
			if err != nil {
				return err
			}
			reservation = current
			return nil
		}
		if err := m.ledger.Release(ctx, tx, row.ItemID, row.Quantity); err != nil {
			return err
		}
		row.Status = enums.ReservationStatusCancelled
		row.UpdatedAt = now
		cancelled = true
		return m.emit(ctx, tx, enums.EventReservationCancelled, *row, payloads.ReservationCancelledEvent{
			ReservationEvent: eventBody(*row),
			CancelledAt:      now,
		})
	})
	if err != nil {
		return nil, fail(span, err)
	}

	if cancelled {
		m.metrics.IncTransition(string(enums.ReservationStatusCancelled))
		m.logg.Info(m.logCtx(ctx, *reservation), "reservation cancelled")
	}
	dto := toDTO(*reservation)
	return &dto, nil
}

// Get returns one reservation.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*ReservationDTO, error) {
	row, err := m.load(ctx, m.repo, id)
	if err != nil {
		return nil, err
	}
	dto := toDTO(*row)
	return &dto, nil
}

// ListByOrder returns every reservation recorded for orderID.
func (m *Manager) ListByOrder(ctx context.Context, orderID string) ([]ReservationDTO, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orderId is required")
	}
	rows, err := m.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reservations")
	}
	return toDTOs(rows), nil
}

// expire flips one past-due row in its own transaction. It reports false
// when the row had already left pending.
func (m *Manager) expire(ctx context.Context, row models.Reservation) (bool, error) {
	ctx, span := m.tracer.Start(ctx, "reservations.Expire", trace.WithAttributes(attribute.String("reservation_id", row.ID.String())))
	defer span.End()

	var flipped bool
	err := m.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		flipped, err = m.expireTx(ctx, tx, &row, m.now().UTC())
		return err
	})
	if err != nil {
		return false, fail(span, err)
	}
	if flipped {
		m.metrics.IncTransition(string(enums.ReservationStatusExpired))
		m.metrics.IncExpired()
	}
	return flipped, nil
}

func (m *Manager) expireTx(ctx context.Context, tx *gorm.DB, row *models.Reservation, now time.Time) (bool, error) {
	affected, err := m.repo.WithTx(tx).Transition(ctx, row.ID, enums.ReservationStatusExpired, now)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire reservation")
	}
	if affected == 0 {
		return false, nil
	}
	if err := m.ledger.Release(ctx, tx, row.ItemID, row.Quantity); err != nil {
		return false, err
	}
	row.Status = enums.ReservationStatusExpired
	row.UpdatedAt = now
	if err := m.emit(ctx, tx, enums.EventReservationExpired, *row, payloads.ReservationExpiredEvent{
		ReservationEvent: eventBody(*row),
		ExpiredAt:        now,
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, row models.Reservation, data any) error {
	err := m.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateReservation,
		AggregateID:   row.ID.String(),
		Data:          data,
		OccurredAt:    row.UpdatedAt,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue "+string(eventType))
	}
	return nil
}

func (m *Manager) load(ctx context.Context, repo *Repository, id uuid.UUID) (*models.Reservation, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}
	row, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
	}
	if row == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "reservation %s not found", id)
	}
	return row, nil
}

// lostRace reports the state a concurrent caller left the row in.
func (m *Manager) lostRace(ctx context.Context, repo *Repository, id uuid.UUID, action string) error {
	current, err := m.load(ctx, repo, id)
	if err != nil {
		return err
	}
	return invalidState(*current, action)
}

func (m *Manager) logCtx(ctx context.Context, r models.Reservation) context.Context {
	ctx = m.logg.WithReservationID(ctx, r.ID.String())
	ctx = m.logg.WithOrderID(ctx, r.OrderID)
	ctx = m.logg.WithItemID(ctx, r.ItemID)
	return m.logg.WithField(ctx, "quantity", r.Quantity)
}

func invalidState(r models.Reservation, action string) error {
	return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot %s reservation %s in status %s", action, r.ID, r.Status).
		WithDetails(map[string]any{
			"reservationId": r.ID.String(),
			"status":        r.Status,
		})
}

func validateHold(input HoldInput) error {
	var problems []string
	if input.OrderID == "" {
		problems = append(problems, "orderId is required")
	}
	if input.ItemID == "" {
		problems = append(problems, "itemId is required")
	}
	if input.Quantity <= 0 {
		problems = append(problems, "quantity must be greater than zero")
	}
	if len(problems) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, strings.Join(problems, "; ")).
		WithDetails(map[string]any{"problems": problems})
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
