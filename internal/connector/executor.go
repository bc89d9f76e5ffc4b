package connector

import (
	"context"

	"go.uber.org/zap"

	"github.com/observeo/remedy-engine/internal/domain"
)

// Executor drives an action connector through a plan's steps with retry.
type Executor struct {
	Registry *Registry
	Retry    *RetryConfig
	Logger   *zap.Logger

	// ConnectorName selects which registered connector executes steps.
	ConnectorName string
}

// NewExecutor creates an executor bound to the named connector.
func NewExecutor(reg *Registry, name string, logger *zap.Logger) *Executor {
	return &Executor{
		Registry:      reg,
		Retry:         DefaultRetryConfig(),
		Logger:        logger,
		ConnectorName: name,
	}
}

// ApplySteps applies each step in order, retrying transient failures. It
// stops at the first step that cannot be applied.
func (e *Executor) ApplySteps(ctx context.Context, steps []string) error {
	c, err := e.Registry.Get(e.ConnectorName)
	if err != nil {
		return err
	}
	for _, step := range steps {
		step := step
		if err := Retry(ctx, e.Retry, e.Logger, "apply step", func(ctx context.Context) error {
			return c.ApplyStep(ctx, step)
		}); err != nil {
			return err
		}
	}
	return nil
}

// SetTraffic moves the rollout percentage for a target, retrying transient
// failures.
func (e *Executor) SetTraffic(ctx context.Context, target string, percent float64) error {
	c, err := e.Registry.Get(e.ConnectorName)
	if err != nil {
		return err
	}
	return Retry(ctx, e.Retry, e.Logger, "set rollout", func(ctx context.Context) error {
		return c.SetRollout(ctx, target, percent)
	})
}

// RevertSteps applies rollback steps in order. A step that still fails after
// retries is a rollback failure, the engine's most serious error class.
func (e *Executor) RevertSteps(ctx context.Context, steps []string) error {
	c, err := e.Registry.Get(e.ConnectorName)
	if err != nil {
		return domain.WrapRollbackFailed("connector unavailable", err)
	}
	for _, step := range steps {
		step := step
		if err := Retry(ctx, e.Retry, e.Logger, "revert step", func(ctx context.Context) error {
			return c.RevertStep(ctx, step)
		}); err != nil {
			return domain.WrapRollbackFailed("revert step "+step, err)
		}
	}
	return nil
}
