package stock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-inventory/pkg/db/models"
	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-inventory/pkg/errors"
	"github.com/angelmondragon/packfinderz-inventory/pkg/logger"
	"github.com/angelmondragon/packfinderz-inventory/pkg/pagination"
)

const maxItemIDLength = 128

// Service exposes stock administration and direct counter operations.
type Service interface {
	Provision(ctx context.Context, input ProvisionInput) (*StockItemDTO, error)
	Get(ctx context.Context, itemID string) (*StockItemDTO, error)
	List(ctx context.Context, params pagination.Params, status enums.StockStatus) (*ListResult, error)
	UpdateSettings(ctx context.Context, itemID string, settings Settings) (*StockItemDTO, error)
	Delete(ctx context.Context, itemID string) error
	Restock(ctx context.Context, itemID string, qty int) (*StockItemDTO, error)
	Sell(ctx context.Context, itemID string, qty int) (*StockItemDTO, error)
	Return(ctx context.Context, itemID string, qty int) (*StockItemDTO, error)
	Available(ctx context.Context, itemID string) (int, error)
	CheckAvailability(ctx context.Context, requests []AvailabilityRequest) ([]AvailabilityResult, error)
	ListLowStock(ctx context.Context) ([]StockItemDTO, error)
	ListOutOfStock(ctx context.Context) ([]StockItemDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams configure the stock service.
type ServiceParams struct {
	Repository *Repository
	Ledger     *Ledger
	DB         txRunner
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	repo   *Repository
	ledger *Ledger
	db     txRunner
	logg   *logger.Logger
	now    func() time.Time
}

// NewService constructs a stock service instance.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:   params.Repository,
		ledger: params.Ledger,
		db:     params.DB,
		logg:   logg,
		now:    now,
	}, nil
}

func (s *service) Provision(ctx context.Context, input ProvisionInput) (*StockItemDTO, error) {
	itemID, err := normalizeItemID(input.ItemID)
	if err != nil {
		return nil, err
	}
	item := &models.StockItem{
		ItemID:       itemID,
		OnHand:       input.OnHand,
		MinLevel:     intOr(input.MinLevel, DefaultMinLevel),
		MaxLevel:     intOr(input.MaxLevel, DefaultMaxLevel),
		ReorderPoint: intOr(input.ReorderPoint, DefaultReorderPoint),
		Tracked:      input.Tracked == nil || *input.Tracked,
		Notes:        input.Notes,
	}
	if err := validateThresholds(item.MinLevel, item.MaxLevel, item.ReorderPoint); err != nil {
		return nil, err
	}

	if err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.ledger.Provision(ctx, tx, item)
	}); err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithItemID(ctx, itemID), "stock item provisioned")
	dto := toDTO(*item)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, itemID string) (*StockItemDTO, error) {
	item, err := s.load(ctx, s.repo, itemID)
	if err != nil {
		return nil, err
	}
	dto := toDTO(*item)
	return &dto, nil
}

func (s *service) List(ctx context.Context, params pagination.Params, status enums.StockStatus) (*ListResult, error) {
	after, err := params.After()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if status != "" && !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status filter %q", status)
	}
	rows, err := s.repo.List(ctx, after, status, params.FetchSize())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock items")
	}
	rows, next := pagination.Cut(rows, params, func(item models.StockItem) string { return item.ItemID })
	return &ListResult{Items: toDTOs(rows), NextCursor: next}, nil
}

func (s *service) UpdateSettings(ctx context.Context, itemID string, settings Settings) (*StockItemDTO, error) {
	var updated *models.StockItem
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.load(ctx, repo, itemID)
		if err != nil {
			return err
		}
		if err := validateThresholds(
			intOr(settings.MinLevel, current.MinLevel),
			intOr(settings.MaxLevel, current.MaxLevel),
			intOr(settings.ReorderPoint, current.ReorderPoint),
		); err != nil {
			return err
		}
		if _, err := repo.UpdateSettings(ctx, itemID, settings, s.now().UTC()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stock settings")
		}
		updated, err = s.load(ctx, repo, itemID)
		return err
	})
	if err != nil {
		return nil, err
	}
	dto := toDTO(*updated)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, itemID string) error {
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := repo.LockForDelete(ctx, itemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock stock item")
		}
		if item == nil {
			return pkgerrors.Newf(pkgerrors.CodeNotFound, "stock item %s not found", itemID)
		}
		pending, err := repo.CountPendingHolds(ctx, itemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count pending holds")
		}
		if pending > 0 {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "stock item %s has %d pending reservations", itemID, pending).
				WithDetails(map[string]any{"itemId": itemID, "pending": pending})
		}
		if _, err := repo.Delete(ctx, itemID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete stock item")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logg.Warn(s.logg.WithItemID(ctx, itemID), "stock item deleted")
	return nil
}

func (s *service) Restock(ctx context.Context, itemID string, qty int) (*StockItemDTO, error) {
	dto, err := s.mutate(ctx, itemID, qty, s.ledger.Restock)
	if err != nil {
		return nil, err
	}
	if dto.OnHand > dto.MaxLevel {
		logCtx := s.logg.WithFields(s.logg.WithItemID(ctx, itemID), map[string]any{
			"on_hand":   dto.OnHand,
			"max_level": dto.MaxLevel,
		})
		s.logg.Warn(logCtx, "restock exceeded max level")
	}
	return dto, nil
}

func (s *service) Sell(ctx context.Context, itemID string, qty int) (*StockItemDTO, error) {
	return s.mutate(ctx, itemID, qty, s.ledger.Sell)
}

func (s *service) Return(ctx context.Context, itemID string, qty int) (*StockItemDTO, error) {
	return s.mutate(ctx, itemID, qty, s.ledger.Return)
}

func (s *service) Available(ctx context.Context, itemID string) (int, error) {
	item, err := s.load(ctx, s.repo, itemID)
	if err != nil {
		return 0, err
	}
	return item.Available, nil
}

func (s *service) CheckAvailability(ctx context.Context, requests []AvailabilityRequest) ([]AvailabilityResult, error) {
	ids := make([]string, 0, len(requests))
	for _, req := range requests {
		if req.Quantity < 0 {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "quantity for item %s must be >= 0", req.ItemID)
		}
		ids = append(ids, req.ItemID)
	}

	items, err := s.repo.FindByItemIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock items")
	}

	results := make([]AvailabilityResult, 0, len(requests))
	for _, req := range requests {
		result := AvailabilityResult{ItemID: req.ItemID, Requested: req.Quantity}
		if item, ok := items[req.ItemID]; ok {
			result.Known = true
			result.Available = item.Available
			result.Granted = min(req.Quantity, item.Available)
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *service) ListLowStock(ctx context.Context) ([]StockItemDTO, error) {
	rows, err := s.repo.ListLowStock(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list low stock")
	}
	return toDTOs(rows), nil
}

func (s *service) ListOutOfStock(ctx context.Context) ([]StockItemDTO, error) {
	rows, err := s.repo.ListOutOfStock(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list out of stock")
	}
	return toDTOs(rows), nil
}

type ledgerOp func(ctx context.Context, tx *gorm.DB, itemID string, qty int) error

func (s *service) mutate(ctx context.Context, itemID string, qty int, op ledgerOp) (*StockItemDTO, error) {
	var item *models.StockItem
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := op(ctx, tx, itemID, qty); err != nil {
			return err
		}
		var err error
		item, err = s.load(ctx, s.repo.WithTx(tx), itemID)
		return err
	})
	if err != nil {
		return nil, err
	}
	dto := toDTO(*item)
	return &dto, nil
}

func (s *service) load(ctx context.Context, repo *Repository, itemID string) (*models.StockItem, error) {
	item, err := repo.FindByItemID(ctx, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock item")
	}
	if item == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "stock item %s not found", itemID)
	}
	return item, nil
}

func normalizeItemID(value string) (string, error) {
	itemID := strings.TrimSpace(value)
	if itemID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "itemId is required")
	}
	if len(itemID) > maxItemIDLength {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "itemId must be at most %d characters", maxItemIDLength)
	}
	return itemID, nil
}

func validateThresholds(minLevel, maxLevel, reorderPoint int) error {
	var problems []string
	if minLevel < 0 {
		problems = append(problems, "minLevel must be >= 0")
	}
	if maxLevel < 0 {
		problems = append(problems, "maxLevel must be >= 0")
	}
	if reorderPoint < 0 {
		problems = append(problems, "reorderPoint must be >= 0")
	}
	if minLevel > maxLevel {
		problems = append(problems, "minLevel cannot exceed maxLevel")
	}
	if len(problems) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, strings.Join(problems, "; ")).
		WithDetails(map[string]any{"problems": problems})
}
