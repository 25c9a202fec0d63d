package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/tablepos-backend/pkg/logger"
)

// consumer is one subscription loop. Run blocks until ctx is done or the
// subscription fails.
type consumer interface {
	Name() string
	Run(ctx context.Context) error
}

type dependency struct {
	name string
	ping func(context.Context) error
}

type ServiceParams struct {
	Logger       *logger.Logger
	Consumers    []consumer
	Dependencies []dependency
	// OnStop runs once every consumer has returned.
	OnStop func(context.Context)
}

type Service struct {
	logg      *logger.Logger
	consumers []consumer
	deps      []dependency
	onStop    func(context.Context)
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for i, c := range params.Consumers {
		if c == nil {
			return nil, fmt.Errorf("consumer %d is nil", i)
		}
	}
	return &Service{
		logg:      params.Logger,
		consumers: params.Consumers,
		deps:      params.Dependencies,
		onStop:    params.OnStop,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range s.deps {
		if err := pingDependency(ctx, s.logg, dep.name, dep.ping); err != nil {
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

// Run starts every consumer and returns when all have stopped. The first
// consumer to fail cancels the others.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.consumers {
		c := c
		g.Go(func() error {
			cctx := s.logg.WithField(gctx, "consumer", c.Name())
			s.logg.Info(cctx, "consumer started")
			err := c.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(cctx, "consumer stopped", err)
				return fmt.Errorf("%s: %w", c.Name(), err)
			}
			s.logg.Info(cctx, "consumer stopped")
			return nil
		})
	}
	err := g.Wait()

	if s.onStop != nil {
		s.onStop(context.Background())
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

// namedConsumer adapts a bare Run loop to the consumer interface.
type namedConsumer struct {
	name string
	run  func(context.Context) error
}

func (n namedConsumer) Name() string                  { return n.name }
func (n namedConsumer) Run(ctx context.Context) error { return n.run(ctx) }
