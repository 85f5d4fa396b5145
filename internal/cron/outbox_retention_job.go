package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-inventory/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	defaultDLQRetentionDays    = 90
	defaultOutboxMaxAttempts   = 5
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type dlqPruner interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Outbox outboxPruner
	// DLQ is optional; dead letters are kept forever without it.
	DLQ dlqPruner
	// Windows are in days.
	OutboxDays int
	DLQDays    int
	// MaxAttempts is the publisher's give-up threshold. Unpublished rows at
	// or past it are dead and age out like published ones.
	MaxAttempts int
	Now         func() time.Time
}

// NewOutboxRetentionJob prunes delivered or abandoned outbox rows and old
// dead letters in a single transaction.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Outbox == nil:
		return nil, errors.New("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		outbox:      params.Outbox,
		dlq:         params.DLQ,
		outboxDays:  orDefault(params.OutboxDays, defaultOutboxRetentionDays),
		dlqDays:     orDefault(params.DLQDays, defaultDLQRetentionDays),
		maxAttempts: orDefault(params.MaxAttempts, defaultOutboxMaxAttempts),
		now:         params.Now,
	}
	if job.now == nil {
		job.now = time.Now
	}
	return job, nil
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	outbox      outboxPruner
	dlq         dlqPruner
	outboxDays  int
	dlqDays     int
	maxAttempts int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	today := j.now().UTC()
	outboxCutoff := today.AddDate(0, 0, -j.outboxDays)
	dlqCutoff := today.AddDate(0, 0, -j.dlqDays)

	var events, deadLetters int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if events, err = j.outbox.DeletePublishedBefore(ctx, tx, outboxCutoff, j.maxAttempts); err != nil {
			return fmt.Errorf("prune outbox events: %w", err)
		}
		if j.dlq == nil {
			return nil
		}
		if deadLetters, err = j.dlq.DeleteFailedBefore(ctx, tx, dlqCutoff); err != nil {
			return fmt.Errorf("prune dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"outbox_cutoff":       outboxCutoff,
		"dlq_cutoff":          dlqCutoff,
		"outbox_rows_deleted": events,
		"dlq_rows_deleted":    deadLetters,
	}), "outbox retention complete")
	return nil
}
