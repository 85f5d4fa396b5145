package models

import (
	"time"

	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
)

// StockItem is the per-SKU counter row. Available and Status are rewritten by
// every ledger statement that changes OnHand or Held.
type StockItem struct {
	ItemID          string            `gorm:"column:item_id;primaryKey"`
	OnHand          int               `gorm:"column:on_hand;not null"`
	Held            int               `gorm:"column:held;not null"`
	Available       int               `gorm:"column:available;not null"`
	MinLevel        int               `gorm:"column:min_level;not null"`
	MaxLevel        int               `gorm:"column:max_level;not null"`
	ReorderPoint    int               `gorm:"column:reorder_point;not null"`
	TotalSold       int               `gorm:"column:total_sold;not null"`
	TotalReturned   int               `gorm:"column:total_returned;not null"`
	Tracked         bool              `gorm:"column:tracked;not null"`
	Status          enums.StockStatus `gorm:"column:status;not null"`
	Notes           *string           `gorm:"column:notes"`
	LastRestockedAt *time.Time        `gorm:"column:last_restocked_at"`
	LastSoldAt      *time.Time        `gorm:"column:last_sold_at"`
	CreatedAt       time.Time         `gorm:"column:created_at"`
	UpdatedAt       time.Time         `gorm:"column:updated_at"`
}

func (StockItem) TableName() string {
	return "stock_items"
}
