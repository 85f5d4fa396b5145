package stock

import (
	"time"

	"github.com/angelmondragon/packfinderz-inventory/pkg/db/models"
	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
)

const (
	DefaultMinLevel     = 5
	DefaultMaxLevel     = 1000
	DefaultReorderPoint = 10
)

// ProvisionInput holds the validated payload to create a stock item. Nil
// thresholds take the defaults; nil Tracked means tracked.
type ProvisionInput struct {
	ItemID       string
	OnHand       int
	MinLevel     *int
	MaxLevel     *int
	ReorderPoint *int
	Tracked      *bool
	Notes        *string
}

// Settings holds the optional non-counter fields an admin may change.
type Settings struct {
	MinLevel     *int
	MaxLevel     *int
	ReorderPoint *int
	Tracked      *bool
	Notes        *string
}

// AvailabilityRequest asks how much of one item can be promised.
type AvailabilityRequest struct {
	ItemID   string
	Quantity int
}

// AvailabilityResult is min(requested, available), or 0 for unknown items.
type AvailabilityResult struct {
	ItemID    string `json:"itemId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Granted   int    `json:"granted"`
	Known     bool   `json:"known"`
}

// StockItemDTO is the API view of a stock item.
type StockItemDTO struct {
	ItemID          string            `json:"itemId"`
	OnHand          int               `json:"onHand"`
	Held            int               `json:"held"`
	Available       int               `json:"available"`
	MinLevel        int               `json:"minLevel"`
	MaxLevel        int               `json:"maxLevel"`
	ReorderPoint    int               `json:"reorderPoint"`
	TotalSold       int               `json:"totalSold"`
	TotalReturned   int               `json:"totalReturned"`
	Tracked         bool              `json:"tracked"`
	Status          enums.StockStatus `json:"status"`
	Notes           *string           `json:"notes,omitempty"`
	LastRestockedAt *time.Time        `json:"lastRestockedAt,omitempty"`
	LastSoldAt      *time.Time        `json:"lastSoldAt,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// ListResult is one page of stock items.
type ListResult struct {
	Items      []StockItemDTO `json:"items"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

func toDTO(item models.StockItem) StockItemDTO {
	return StockItemDTO{
		ItemID:          item.ItemID,
		OnHand:          item.OnHand,
		Held:            item.Held,
		Available:       item.Available,
		MinLevel:        item.MinLevel,
		MaxLevel:        item.MaxLevel,
		ReorderPoint:    item.ReorderPoint,
		TotalSold:       item.TotalSold,
		TotalReturned:   item.TotalReturned,
		Tracked:         item.Tracked,
		Status:          item.Status,
		Notes:           item.Notes,
		LastRestockedAt: item.LastRestockedAt,
		LastSoldAt:      item.LastSoldAt,
		CreatedAt:       item.CreatedAt,
		UpdatedAt:       item.UpdatedAt,
	}
}

func toDTOs(items []models.StockItem) []StockItemDTO {
	out := make([]StockItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, toDTO(item))
	}
	return out
}

func intOr(value *int, fallback int) int {
	if value == nil {
		return fallback
	}
	return *value
}
