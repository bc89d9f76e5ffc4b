// Package api exposes the remediation engine over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/observeo/remedy-engine/internal/lifecycle"
	"github.com/observeo/remedy-engine/internal/runner"
	"github.com/observeo/remedy-engine/internal/store"
)

// Server wires the lifecycle manager and run controller into an echo server.
type Server struct {
	echo   *echo.Echo
	mgr    *lifecycle.Manager
	ctrl   *runner.Controller
	alerts *store.AlertRepo
	logger *zap.Logger
	addr   string
}

// NewServer builds the HTTP server and registers all routes.
func NewServer(mgr *lifecycle.Manager, ctrl *runner.Controller, logger *zap.Logger, addr string) (*Server, error) {
	if mgr == nil {
		return nil, fmt.Errorf("lifecycle manager is required")
	}
	if ctrl == nil {
		return nil, fmt.Errorf("run controller is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		mgr:    mgr,
		ctrl:   ctrl,
		alerts: &store.AlertRepo{},
		logger: logger,
		addr:   addr,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")

	v1.POST("/intents", s.handleCreateIntent)
	v1.GET("/intents", s.handleListIntents)
	v1.GET("/intents/:id", s.handleGetIntent)
	v1.POST("/intents/:id/diagnose", s.handleDiagnose)
	v1.GET("/intents/:id/diagnosis", s.handleGetDiagnosis)
	v1.POST("/intents/:id/plans", s.handleGeneratePlans)
	v1.GET("/intents/:id/plans", s.handleListPlans)
	v1.GET("/intents/:id/plans/next", s.handleNextPlan)
	v1.GET("/intents/:id/runs", s.handleListRuns)
	v1.GET("/intents/:id/events", s.handleListEvents)
	v1.POST("/intents/:id/pause", s.handlePause)
	v1.POST("/intents/:id/resume", s.handleResume)
	v1.POST("/intents/:id/complete", s.handleComplete)
	v1.POST("/intents/:id/rollback", s.handleRollback)

	v1.POST("/plans/:id/simulate", s.handleSimulate)
	v1.POST("/plans/:id/execute", s.handleExecute)
	v1.POST("/plans/:id/reject", s.handleRejectPlan)

	v1.POST("/runs/:id/evaluate", s.handleEvaluate)
	v1.POST("/runs/:id/complete", s.handleCompleteRun)

	v1.GET("/events/recent", s.handleRecentEvents)

	v1.POST("/alerts", s.handleCreateAlert)
	v1.GET("/alerts", s.handleListAlerts)
	v1.GET("/alerts/:id", s.handleGetAlert)
	v1.POST("/alerts/:id/status", s.handleUpdateAlertStatus)
}

// Echo exposes the underlying echo instance, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.addr))
	if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
