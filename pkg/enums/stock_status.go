package enums

import "fmt"

// StockStatus is the derived availability state of a stock item.
type StockStatus string

const (
	StockStatusInStock      StockStatus = "in_stock"
	StockStatusLowStock     StockStatus = "low_stock"
	StockStatusOutOfStock   StockStatus = "out_of_stock"
	StockStatusDiscontinued StockStatus = "discontinued"
)

var validStockStatuses = []StockStatus{
	StockStatusInStock,
	StockStatusLowStock,
	StockStatusOutOfStock,
	StockStatusDiscontinued,
}

// String implements fmt.Stringer.
func (s StockStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s StockStatus) IsValid() bool {
	for _, candidate := range validStockStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStockStatus converts raw input into a StockStatus.
func ParseStockStatus(value string) (StockStatus, error) {
	for _, candidate := range validStockStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock status %q", value)
}

// DeriveStockStatus applies the status rule used by every ledger write.
// discontinued is never derived.
func DeriveStockStatus(tracked bool, onHand, available, reorderPoint int) StockStatus {
	switch {
	case !tracked:
		return StockStatusInStock
	case onHand <= 0 || available <= 0:
		return StockStatusOutOfStock
	case available <= reorderPoint:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}
