package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-inventory/api/responses"
	"github.com/angelmondragon/packfinderz-inventory/api/validators"
	"github.com/angelmondragon/packfinderz-inventory/internal/stock"
	pkgerrors "github.com/angelmondragon/packfinderz-inventory/pkg/errors"
	"github.com/angelmondragon/packfinderz-inventory/pkg/logger"
)

const maxNotesLength = 2000

type provisionRequest struct {
	ItemID       string  `json:"itemId" validate:"required,max=128"`
	OnHand       int     `json:"onHand" validate:"gte=0"`
	MinLevel     *int    `json:"minLevel" validate:"omitempty,gte=0"`
	MaxLevel     *int    `json:"maxLevel" validate:"omitempty,gte=0"`
	ReorderPoint *int    `json:"reorderPoint" validate:"omitempty,gte=0"`
	Tracked      *bool   `json:"tracked"`
	Notes        *string `json:"notes"`
}

func (r provisionRequest) toInput() stock.ProvisionInput {
	return stock.ProvisionInput{
		ItemID:       r.ItemID,
		OnHand:       r.OnHand,
		MinLevel:     r.MinLevel,
		MaxLevel:     r.MaxLevel,
		ReorderPoint: r.ReorderPoint,
		Tracked:      r.Tracked,
		Notes:        sanitizeNotes(r.Notes),
	}
}

type settingsRequest struct {
	MinLevel     *int    `json:"minLevel" validate:"omitempty,gte=0"`
	MaxLevel     *int    `json:"maxLevel" validate:"omitempty,gte=0"`
	ReorderPoint *int    `json:"reorderPoint" validate:"omitempty,gte=0"`
	Tracked      *bool   `json:"tracked"`
	Notes        *string `json:"notes"`
}

func (r settingsRequest) toSettings() stock.Settings {
	return stock.Settings{
		MinLevel:     r.MinLevel,
		MaxLevel:     r.MaxLevel,
		ReorderPoint: r.ReorderPoint,
		Tracked:      r.Tracked,
		Notes:        sanitizeNotes(r.Notes),
	}
}

type quantityRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

type availabilityRequest struct {
	Items []availabilityItem `json:"items" validate:"required,min=1,dive"`
}

type availabilityItem struct {
	ItemID   string `json:"itemId" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

type availableResponse struct {
	ItemID    string `json:"itemId"`
	Available int    `json:"available"`
}

type itemListResponse struct {
	Items []stock.StockItemDTO `json:"items"`
	Count int                  `json:"count"`
}

// InventoryProvision creates a stock item.
func InventoryProvision(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}

		var payload provisionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Provision(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

// InventoryList pages through every stock item by item id.
func InventoryList(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := validators.ParseStatusFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), params, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, page.Items, page.NextCursor)
	}
}

func InventoryGet(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}

		dto, err := svc.Get(r.Context(), itemIDParam(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func InventoryAvailable(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}

		itemID := itemIDParam(r)
		available, err := svc.Available(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, availableResponse{ItemID: itemID, Available: available})
	}
}

// InventoryUpdateSettings changes thresholds, tracking, or notes. Counters
// are never touched here.
func InventoryUpdateSettings(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}

		var payload settingsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.UpdateSettings(r.Context(), itemIDParam(r), payload.toSettings())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func InventoryDelete(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}

		if err := svc.Delete(r.Context(), itemIDParam(r)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

type quantityOp func(ctx context.Context, svc stock.Service, itemID string, qty int) (*stock.StockItemDTO, error)

// InventoryRestock adds units to on hand.
func InventoryRestock(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return quantityHandler(svc, logg, func(ctx context.Context, svc stock.Service, itemID string, qty int) (*stock.StockItemDTO, error) {
		return svc.Restock(ctx, itemID, qty)
	})
}

// InventorySell removes units outside of any reservation.
func InventorySell(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return quantityHandler(svc, logg, func(ctx context.Context, svc stock.Service, itemID string, qty int) (*stock.StockItemDTO, error) {
		return svc.Sell(ctx, itemID, qty)
	})
}

// InventoryReturn puts returned units back on hand.
func InventoryReturn(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return quantityHandler(svc, logg, func(ctx context.Context, svc stock.Service, itemID string, qty int) (*stock.StockItemDTO, error) {
		return svc.Return(ctx, itemID, qty)
	})
}

func quantityHandler(svc stock.Service, logg *logger.Logger, op quantityOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}

		var payload quantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := op(r.Context(), svc, itemIDParam(r), payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func InventoryLowStock(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}

		items, err := svc.ListLowStock(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, itemListResponse{Items: items, Count: len(items)})
	}
}

func InventoryOutOfStock(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}

		items, err := svc.ListOutOfStock(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, itemListResponse{Items: items, Count: len(items)})
	}
}

// InventoryCheckAvailability reports min(requested, available) per line.
func InventoryCheckAvailability(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}

		var payload availabilityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		requests := make([]stock.AvailabilityRequest, len(payload.Items))
		for i, item := range payload.Items {
			requests[i] = stock.AvailabilityRequest{ItemID: item.ItemID, Quantity: item.Quantity}
		}

		results, err := svc.CheckAvailability(r.Context(), requests)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, results)
	}
}

func itemIDParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "itemId"))
}

func sanitizeNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	cleaned := validators.SanitizeString(*notes, maxNotesLength)
	return &cleaned
}
