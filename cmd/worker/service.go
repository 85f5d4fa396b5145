package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/packfinderz-inventory/pkg/logger"
)

type runner interface {
	Run(ctx context.Context) error
}

// Dependency is a named readiness probe checked before consumers start.
type Dependency struct {
	Name string
	Ping func(context.Context) error
}

// Runner is a named long-lived loop, usually a subscription consumer.
type Runner struct {
	Name   string
	Runner runner
}

type ServiceParams struct {
	Logger       *logger.Logger
	Dependencies []Dependency
	Runners      []Runner
}

type Service struct {
	logg         *logger.Logger
	dependencies []Dependency
	runners      []Runner
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Runners) == 0 {
		return nil, errors.New("at least one runner is required")
	}
	for _, dep := range params.Dependencies {
		if dep.Ping == nil {
			return nil, fmt.Errorf("dependency %q has no ping", dep.Name)
		}
	}
	for _, r := range params.Runners {
		if r.Runner == nil {
			return nil, fmt.Errorf("runner %q is nil", r.Name)
		}
	}
	return &Service{
		logg:         params.Logger,
		dependencies: params.Dependencies,
		runners:      params.Runners,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range s.dependencies {
		if err := pingDependency(ctx, s.logg, dep.Name, dep.Ping); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run starts every runner and returns when ctx ends or the first runner
// fails. A failing runner cancels the others.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, r := range s.runners {
		r := r
		group.Go(func() error {
			runCtx := s.logg.WithField(groupCtx, "runner", r.Name)
			s.logg.Info(runCtx, "runner started")
			if err := r.Runner.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(runCtx, "runner stopped unexpectedly", err)
				return fmt.Errorf("%s: %w", r.Name, err)
			}
			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	}
	return nil
}
