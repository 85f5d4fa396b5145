package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/packfinderz-inventory/internal/reservations"
	"github.com/angelmondragon/packfinderz-inventory/pkg/logger"
)

type expirySweeper interface {
	SweepExpired(ctx context.Context) (reservations.SweepResult, error)
}

type ReservationExpiryJobParams struct {
	Logger  *logger.Logger
	Sweeper expirySweeper
}

// NewReservationExpiryJob releases holds whose ttl has lapsed. Rows that fail
// stay pending and are picked up again on the next tick.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	return &reservationExpiryJob{logg: params.Logger, sweeper: params.Sweeper}, nil
}

type reservationExpiryJob struct {
	logg    *logger.Logger
	sweeper expirySweeper
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

func (j *reservationExpiryJob) Run(ctx context.Context) error {
	result, err := j.sweeper.SweepExpired(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned": result.Scanned,
		"expired": result.Expired,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	})
	if err != nil {
		return fmt.Errorf("sweep expired reservations: %w", err)
	}
	if result.Expired > 0 {
		j.logg.Info(logCtx, "expired reservations released")
		return nil
	}
	j.logg.Debug(logCtx, "no reservations due")
	return nil
}
