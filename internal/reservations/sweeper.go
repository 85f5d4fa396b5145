package reservations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	pkgerrors "github.com/angelmondragon/packfinderz-inventory/pkg/errors"
	"github.com/angelmondragon/packfinderz-inventory/pkg/logger"
)

const (
	defaultSweepBatch = 500
	maxSweepPasses    = 20
)

// SweeperParams configure the expiry sweeper.
type SweeperParams struct {
	Manager    *Manager
	Repository *Repository
	Logger     *logger.Logger
	BatchSize  int
	Now        func() time.Time
}

// Sweeper reclaims holds abandoned past their expiry. Each row is expired in
// its own transaction so one bad row never blocks the rest.
type Sweeper struct {
	manager   *Manager
	repo      *Repository
	logg      *logger.Logger
	batchSize int
	now       func() time.Time
}

// NewSweeper builds a Sweeper.
func NewSweeper(params SweeperParams) (*Sweeper, error) {
	if params.Manager == nil {
		return nil, fmt.Errorf("reservation manager required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	now := params.Now
	if now == nil {
		now = params.Manager.now
	}
	return &Sweeper{
		manager:   params.Manager,
		repo:      params.Repository,
		logg:      logg,
		batchSize: batch,
		now:       now,
	}, nil
}

// SweepExpired expires every pending reservation past its expiry. Per-row
// failures are logged and combined into the returned error; rows that failed
// stay pending and are retried on the next sweep.
func (s *Sweeper) SweepExpired(ctx context.Context) (SweepResult, error) {
	var (
		result SweepResult
		errs   error
		failed = map[uuid.UUID]struct{}{}
	)
	cutoff := s.now().UTC()

	for pass := 0; pass < maxSweepPasses; pass++ {
		rows, err := s.repo.ListExpiredPending(ctx, cutoff, s.batchSize)
		if err != nil {
			return result, multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired reservations"))
		}
		progressed := 0
		for _, row := range rows {
			if _, seen := failed[row.ID]; seen {
				continue
			}
			result.Scanned++
			flipped, err := s.manager.expire(ctx, row)
			if err != nil {
				result.Failed++
				failed[row.ID] = struct{}{}
				s.logg.Error(s.manager.logCtx(ctx, row), "failed to expire reservation", err)
				errs = multierr.Append(errs, fmt.Errorf("expire reservation %s: %w", row.ID, err))
				continue
			}
			if !flipped {
				result.Skipped++
				continue
			}
			result.Expired++
			progressed++
		}
		if len(rows) < s.batchSize || progressed == 0 {
			break
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"scanned": result.Scanned,
		"expired": result.Expired,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	})
	if result.Scanned > 0 {
		s.logg.Info(logCtx, "reservation sweep complete")
	} else {
		s.logg.Debug(logCtx, "reservation sweep found nothing to expire")
	}
	return result, errs
}
