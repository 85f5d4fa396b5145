package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-inventory/api/responses"
	"github.com/angelmondragon/packfinderz-inventory/api/validators"
	"github.com/angelmondragon/packfinderz-inventory/internal/reservations"
	pkgerrors "github.com/angelmondragon/packfinderz-inventory/pkg/errors"
	"github.com/angelmondragon/packfinderz-inventory/pkg/logger"
)

// ReservationService is the reservation lifecycle surface the API drives.
type ReservationService interface {
	Hold(ctx context.Context, input reservations.HoldInput) (*reservations.ReservationDTO, error)
	Confirm(ctx context.Context, id uuid.UUID) (*reservations.ReservationDTO, error)
	Cancel(ctx context.Context, id uuid.UUID) (*reservations.ReservationDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*reservations.ReservationDTO, error)
	ListByOrder(ctx context.Context, orderID string) ([]reservations.ReservationDTO, error)
}

// BatchService applies reservation actions across a whole order.
type BatchService interface {
	HoldAll(ctx context.Context, orderID string, items map[string]int, ttl time.Duration) (*reservations.BatchResult, error)
	ConfirmAll(ctx context.Context, orderID string) (*reservations.BatchResult, error)
	CancelAll(ctx context.Context, orderID string) (*reservations.BatchResult, error)
}

// ExpirySweeper releases overdue holds on demand.
type ExpirySweeper interface {
	SweepExpired(ctx context.Context) (reservations.SweepResult, error)
}

type holdRequest struct {
	OrderID    string `json:"orderId" validate:"required,max=128"`
	ItemID     string `json:"itemId" validate:"required,max=128"`
	Quantity   int    `json:"quantity" validate:"required,gt=0"`
	TTLMinutes int    `json:"ttlMinutes" validate:"gte=0"`
}

type batchReserveRequest struct {
	OrderID    string         `json:"orderId" validate:"required,max=128"`
	Items      map[string]int `json:"items" validate:"required,min=1,dive,gt=0"`
	TTLMinutes int            `json:"ttlMinutes" validate:"gte=0"`
}

type batchOrderRequest struct {
	OrderID string `json:"orderId" validate:"required,max=128"`
}

type orderReservationsResponse struct {
	OrderID      string                        `json:"orderId"`
	Reservations []reservations.ReservationDTO `json:"reservations"`
}

// ReservationHold places a pending hold for one item of an order.
func ReservationHold(svc ReservationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}

		var payload holdRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Hold(r.Context(), reservations.HoldInput{
			OrderID:  payload.OrderID,
			ItemID:   payload.ItemID,
			Quantity: payload.Quantity,
			TTL:      time.Duration(payload.TTLMinutes) * time.Minute,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

func ReservationGet(svc ReservationService, logg *logger.Logger) http.HandlerFunc {
	return reservationAction(svc, logg, func(ctx context.Context, svc ReservationService, id uuid.UUID) (*reservations.ReservationDTO, error) {
		return svc.Get(ctx, id)
	})
}

// ReservationConfirm turns a pending hold into a sale.
func ReservationConfirm(svc ReservationService, logg *logger.Logger) http.HandlerFunc {
	return reservationAction(svc, logg, func(ctx context.Context, svc ReservationService, id uuid.UUID) (*reservations.ReservationDTO, error) {
		return svc.Confirm(ctx, id)
	})
}

// ReservationCancel releases a pending hold. Terminal reservations come back
// unchanged.
func ReservationCancel(svc ReservationService, logg *logger.Logger) http.HandlerFunc {
	return reservationAction(svc, logg, func(ctx context.Context, svc ReservationService, id uuid.UUID) (*reservations.ReservationDTO, error) {
		return svc.Cancel(ctx, id)
	})
}

type reservationOp func(ctx context.Context, svc ReservationService, id uuid.UUID) (*reservations.ReservationDTO, error)

func reservationAction(svc ReservationService, logg *logger.Logger, op reservationOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}

		id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "reservationId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reservation id"))
			return
		}

		dto, err := op(r.Context(), svc, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func ReservationListByOrder(svc ReservationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}

		orderID := orderIDParam(r)
		rows, err := svc.ListByOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderReservationsResponse{OrderID: orderID, Reservations: rows})
	}
}

// ReservationCancelByOrder cancels every pending hold of the order in the
// path.
func ReservationCancelByOrder(svc BatchService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "batch service unavailable"))
			return
		}

		result, err := svc.CancelAll(r.Context(), orderIDParam(r))
		writeBatch(r.Context(), logg, w, result, err)
	}
}

// BatchReserve holds every line of an order, stopping at the first failure.
func BatchReserve(svc BatchService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "batch service unavailable"))
			return
		}

		var payload batchReserveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ttl := time.Duration(payload.TTLMinutes) * time.Minute
		result, err := svc.HoldAll(r.Context(), payload.OrderID, payload.Items, ttl)
		writeBatch(r.Context(), logg, w, result, err)
	}
}

func BatchConfirm(svc BatchService, logg *logger.Logger) http.HandlerFunc {
	return batchOrderAction(svc, logg, func(ctx context.Context, svc BatchService, orderID string) (*reservations.BatchResult, error) {
		return svc.ConfirmAll(ctx, orderID)
	})
}

func BatchCancel(svc BatchService, logg *logger.Logger) http.HandlerFunc {
	return batchOrderAction(svc, logg, func(ctx context.Context, svc BatchService, orderID string) (*reservations.BatchResult, error) {
		return svc.CancelAll(ctx, orderID)
	})
}

type batchOp func(ctx context.Context, svc BatchService, orderID string) (*reservations.BatchResult, error)

func batchOrderAction(svc BatchService, logg *logger.Logger, op batchOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "batch service unavailable"))
			return
		}

		var payload batchOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := op(r.Context(), svc, payload.OrderID)
		writeBatch(r.Context(), logg, w, result, err)
	}
}

// writeBatch reports partial progress as 200 with the failures listed. Only
// a batch where nothing succeeded surfaces as an error response.
func writeBatch(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, result *reservations.BatchResult, err error) {
	if err != nil && (result == nil || len(result.Processed) == 0) {
		responses.WriteError(ctx, logg, w, err)
		return
	}
	if err != nil && logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"order_id":  result.OrderID,
			"processed": len(result.Processed),
			"failed":    len(result.Failed),
		})
		logg.Warn(logCtx, "reservations.batch.partial")
	}
	responses.WriteSuccess(w, result)
}

// InventoryCleanupExpired runs one sweeper pass on demand.
func InventoryCleanupExpired(sweeper ExpirySweeper, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sweeper == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "expiry sweeper unavailable"))
			return
		}

		result, err := sweeper.SweepExpired(r.Context())
		if err != nil && logg != nil {
			logCtx := logg.WithFields(r.Context(), map[string]any{
				"scanned": result.Scanned,
				"expired": result.Expired,
				"failed":  result.Failed,
			})
			logg.Error(logCtx, "reservations.sweep.partial", err)
		}
		responses.WriteSuccess(w, result)
	}
}

func orderIDParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "orderId"))
}
