package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
)

// Reservation is a time-bounded hold against a stock item for one order.
type Reservation struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ItemID    string                  `gorm:"column:item_id;not null;index"`
	OrderID   string                  `gorm:"column:order_id;not null;index"`
	Quantity  int                     `gorm:"column:quantity;not null"`
	Status    enums.ReservationStatus `gorm:"column:status;not null"`
	ExpiresAt time.Time               `gorm:"column:expires_at;not null"`
	CreatedAt time.Time               `gorm:"column:created_at"`
	UpdatedAt time.Time               `gorm:"column:updated_at"`
}

func (Reservation) TableName() string {
	return "reservations"
}
