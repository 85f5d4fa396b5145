package reservations

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-inventory/pkg/db/models"
	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
	"github.com/angelmondragon/packfinderz-inventory/pkg/outbox/payloads"
)

// HoldInput asks for qty of one item on behalf of an order. A zero TTL uses
// the configured default.
type HoldInput struct {
	OrderID  string
	ItemID   string
	Quantity int
	TTL      time.Duration
}

// ReservationDTO is the API view of a reservation.
type ReservationDTO struct {
	ID        uuid.UUID               `json:"id"`
	ItemID    string                  `json:"itemId"`
	OrderID   string                  `json:"orderId"`
	Quantity  int                     `json:"quantity"`
	Status    enums.ReservationStatus `json:"status"`
	ExpiresAt time.Time               `json:"expiresAt"`
	CreatedAt time.Time               `json:"createdAt"`
	UpdatedAt time.Time               `json:"updatedAt"`
}

// BatchFailure describes one reservation a batch call could not process.
type BatchFailure struct {
	ReservationID *uuid.UUID `json:"reservationId,omitempty"`
	ItemID        string     `json:"itemId"`
	Code          string     `json:"code"`
	Message       string     `json:"message"`
}

// BatchResult lists what a batch call processed and what it could not.
type BatchResult struct {
	OrderID   string           `json:"orderId"`
	Processed []ReservationDTO `json:"processed"`
	Failed    []BatchFailure   `json:"failed,omitempty"`
}

// SweepResult summarizes one sweeper pass.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func toDTO(r models.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:        r.ID,
		ItemID:    r.ItemID,
		OrderID:   r.OrderID,
		Quantity:  r.Quantity,
		Status:    r.Status,
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func toDTOs(rows []models.Reservation) []ReservationDTO {
	out := make([]ReservationDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDTO(row))
	}
	return out
}

func eventBody(r models.Reservation) payloads.ReservationEvent {
	return payloads.ReservationEvent{
		ReservationID: r.ID.String(),
		ItemID:        r.ItemID,
		OrderID:       r.OrderID,
		Quantity:      r.Quantity,
		Status:        r.Status,
		ExpiresAt:     r.ExpiresAt,
	}
}
