package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/observeo/remedy-engine/internal/api"
	"github.com/observeo/remedy-engine/internal/config"
	"github.com/observeo/remedy-engine/internal/connector"
	"github.com/observeo/remedy-engine/internal/lifecycle"
	"github.com/observeo/remedy-engine/internal/logging"
	"github.com/observeo/remedy-engine/internal/metrics"
	"github.com/observeo/remedy-engine/internal/runner"
	"github.com/observeo/remedy-engine/internal/store"
	"github.com/observeo/remedy-engine/internal/timeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine: HTTP API plus the guardrail evaluation loop",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	db, err := store.NewDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var publisher timeline.Publisher
	if cfg.NATS.URL != "" {
		np, err := timeline.NewNATSPublisher(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer np.Close()
		publisher = np
		logger.Info("timeline fan-out enabled", zap.String("nats_url", cfg.NATS.URL))
	}
	rec := timeline.NewRecorder(publisher, logger)

	// Simulated connectors stand in until real flag-service and metrics
	// integrations are configured.
	flags := connector.NewSimulatedFlagService()
	registry := connector.NewRegistry()
	if err := registry.Register(flags); err != nil {
		return fmt.Errorf("register connector: %w", err)
	}
	exec := connector.NewExecutor(registry, flags.Name(), logger)
	feed := connector.NewSimulatedMetricFeed(map[string]float64{
		"error_rate":        0.4,
		"latency_p95_delta": 12,
	})
	provider := &connector.SimulatedDiagnosisProvider{Delay: 100 * time.Millisecond}

	mgr := lifecycle.NewManager(db, rec, provider, exec, logger)
	mgr.ProviderTimeout = cfg.Engine.ProviderTimeout

	ctrl := runner.NewController(db, rec, mgr.Locks, exec, feed, logger)
	ctrl.ObservationWindow = cfg.Engine.ObservationWindow
	ctrl.Starter = mgr

	monitor := runner.NewMonitor(ctrl, runner.MonitorConfig{
		CheckInterval: cfg.Engine.EvaluateInterval,
	}, logger)

	srv, err := api.NewServer(mgr, ctrl, logger, cfg.Server.ListenAddr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	monitor.Start(gctx)
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		monitor.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("remedyd started",
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.String("db_path", cfg.Database.Path),
		zap.Duration("evaluate_interval", cfg.Engine.EvaluateInterval))

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	logger.Info("remedyd stopped")
	return nil
}
