package runner

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/observeo/remedy-engine/internal/domain"
)

// MonitorConfig holds tunable parameters for the evaluation loop.
type MonitorConfig struct {
	CheckInterval time.Duration
}

// Monitor periodically evaluates every Running run. A run whose intent is
// locked by another operation is skipped and picked up on the next tick.
type Monitor struct {
	Controller *Controller
	Config     MonitorConfig
	Logger     *zap.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewMonitor creates a Monitor with sensible defaults for zero-value config fields.
func NewMonitor(ctrl *Controller, cfg MonitorConfig, logger *zap.Logger) *Monitor {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 15 * time.Second
	}
	return &Monitor{
		Controller: ctrl,
		Config:     cfg,
		Logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// Tick evaluates all running runs once.
func (m *Monitor) Tick(ctx context.Context) {
	runs, err := m.Controller.Runs.ListRunning(ctx, m.Controller.DB)
	if err != nil {
		m.Logger.Error("list running runs", zap.Error(err))
		return
	}
	for _, run := range runs {
		err := m.Controller.Evaluate(ctx, run.ID)
		switch {
		case err == nil:
		case domain.IsConflict(err):
			// Another operation holds the intent; next tick retries.
		case err == domain.ErrRunTerminal:
			// Finalized between listing and evaluating.
		default:
			m.Logger.Error("evaluate run",
				zap.String("run_id", run.ID),
				zap.Error(err))
		}
	}
}

// Start spawns a goroutine that evaluates runs on every tick.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.Config.CheckInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Tick(ctx)
			}
		}
	}()
}

// Stop signals the evaluation goroutine to stop. Safe to call multiple times.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}
