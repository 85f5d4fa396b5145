package payloads

import (
	"time"

	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
)

// ReservationEvent is the shared body of every reservation lifecycle event.
type ReservationEvent struct {
	ReservationID string                  `json:"reservationId"`
	ItemID        string                  `json:"itemId"`
	OrderID       string                  `json:"orderId"`
	Quantity      int                     `json:"quantity"`
	Status        enums.ReservationStatus `json:"status"`
	ExpiresAt     time.Time               `json:"expiresAt"`
}

// ReservationCreatedEvent is emitted after a hold succeeds.
type ReservationCreatedEvent struct {
	ReservationEvent
}

// ReservationConfirmedEvent is emitted when a hold converts into a sale.
type ReservationConfirmedEvent struct {
	ReservationEvent
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// ReservationCancelledEvent is emitted when a caller gives a hold back.
type ReservationCancelledEvent struct {
	ReservationEvent
	CancelledAt time.Time `json:"cancelledAt"`
}

// ReservationExpiredEvent is emitted by the sweeper or by a late confirm.
type ReservationExpiredEvent struct {
	ReservationEvent
	ExpiredAt time.Time `json:"expiredAt"`
}

// OrderLine is one item requested by an order.
type OrderLine struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// OrderCreatedEvent asks inventory to hold every line of a new order.
type OrderCreatedEvent struct {
	OrderID string      `json:"orderId"`
	Items   []OrderLine `json:"items"`
}

// OrderPaidEvent asks inventory to confirm the order's holds.
type OrderPaidEvent struct {
	OrderID string    `json:"orderId"`
	PaidAt  time.Time `json:"paidAt"`
}

// OrderCanceledEvent asks inventory to release the order's holds.
type OrderCanceledEvent struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason,omitempty"`
}

// PaymentFailedEvent releases holds the same way a cancel does.
type PaymentFailedEvent struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason,omitempty"`
}
