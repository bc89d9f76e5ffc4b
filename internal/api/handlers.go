package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/observeo/remedy-engine/internal/domain"
	"github.com/observeo/remedy-engine/internal/lifecycle"
)

// CreateIntentBody is the request body for POST /api/v1/intents.
type CreateIntentBody struct {
	Title           string             `json:"title"`
	GoalMetric      string             `json:"goal_metric"`
	GoalTargetDelta float64            `json:"goal_target_delta"`
	TimeHorizonDays int                `json:"time_horizon_days"`
	Authority       string             `json:"authority"`
	BlastRadius     []float64          `json:"blast_radius"`
	Thresholds      map[string]float64 `json:"thresholds"`
	Flags           map[string]bool    `json:"flags"`
	OwnerUserID     string             `json:"owner_user_id"`
	SourceAlertID   string             `json:"source_alert_id"`
	Actor           string             `json:"actor"`
}

// ActorBody carries the acting user for lifecycle operations.
type ActorBody struct {
	Actor string `json:"actor"`
}

// ExecuteBody is the request body for POST /api/v1/plans/:id/execute.
type ExecuteBody struct {
	Mode  string `json:"mode"`
	Actor string `json:"actor"`
}

// ReasonBody carries the actor and a free-form reason.
type ReasonBody struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

func actorOrDefault(actor string) string {
	if actor == "" {
		return "api"
	}
	return actor
}

func (s *Server) handleCreateIntent(c echo.Context) error {
	var body CreateIntentBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, domain.NewValidationError("invalid request body"))
	}

	intent, err := s.mgr.CreateIntent(c.Request().Context(), lifecycle.CreateIntentRequest{
		Title:           body.Title,
		GoalMetric:      body.GoalMetric,
		GoalTargetDelta: body.GoalTargetDelta,
		TimeHorizonDays: body.TimeHorizonDays,
		Authority:       domain.AuthorityMode(body.Authority),
		BlastRadius:     body.BlastRadius,
		Thresholds:      body.Thresholds,
		Flags:           body.Flags,
		OwnerUserID:     body.OwnerUserID,
		SourceAlertID:   body.SourceAlertID,
		Actor:           actorOrDefault(body.Actor),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, intent)
}

func (s *Server) handleListIntents(c echo.Context) error {
	intents, err := s.mgr.ListIntents(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, intents)
}

func (s *Server) handleGetIntent(c echo.Context) error {
	intent, err := s.mgr.GetIntent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, intent)
}

func (s *Server) handleDiagnose(c echo.Context) error {
	var body ActorBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, domain.NewValidationError("invalid request body"))
	}
	diag, err := s.mgr.RequestDiagnosis(c.Request().Context(), c.Param("id"), actorOrDefault(body.Actor))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, diag)
}

func (s *Server) handleGetDiagnosis(c echo.Context) error {
	diag, err := s.mgr.LatestDiagnosis(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, diag)
}

func (s *Server) handleGeneratePlans(c echo.Context) error {
	var body ActorBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, domain.NewValidationError("invalid request body"))
	}
	plans, err := s.mgr.RequestFixPlans(c.Request().Context(), c.Param("id"), actorOrDefault(body.Actor))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, plans)
}

func (s *Server) handleListPlans(c echo.Context) error {
	plans, err := s.mgr.PlansForIntent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, plans)
}

func (s *Server) handleNextPlan(c echo.Context) error {
	plan, err := s.mgr.NextCandidate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, plan)
}

func (s *Server) handleListRuns(c echo.Context) error {
	runs, err := s.mgr.RunsForIntent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) handleListEvents(c echo.Context) error {
	var sinceSeq int64
	if raw := c.QueryParam("since_seq"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return writeError(c, domain.NewValidationError("since_seq must be an integer"))
		}
		sinceSeq = parsed
	}
	events, err := s.mgr.Timeline(c.Request().Context(), c.Param("id"), sinceSeq)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, events)
}

func (s *Server) handleRecentEvents(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return writeError(c, domain.NewValidationError("limit must be a positive integer"))
		}
		limit = parsed
	}
	events, err := s.mgr.Recorder.ListRecent(c.Request().Context(), s.mgr.DB, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, events)
}

func (s *Server) handlePause(c echo.Context) error {
	return s.intentAction(c, s.mgr.Pause)
}

func (s *Server) handleResume(c echo.Context) error {
	return s.intentAction(c, s.mgr.Resume)
}

func (s *Server) handleComplete(c echo.Context) error {
	return s.intentAction(c, s.mgr.Complete)
}

func (s *Server) intentAction(c echo.Context, action func(ctx context.Context, intentID, actor string) error) error {
	var body ActorBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, domain.NewValidationError("invalid request body"))
	}
	if err := action(c.Request().Context(), c.Param("id"), actorOrDefault(body.Actor)); err != nil {
		return writeError(c, err)
	}
	intent, err := s.mgr.GetIntent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, intent)
}

func (s *Server) handleRollback(c echo.Context) error {
	var body ReasonBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, domain.NewValidationError("invalid request body"))
	}
	reason := body.Reason
	if reason == "" {
		reason = "operator requested rollback"
	}
	if err := s.mgr.RollbackAll(c.Request().Context(), c.Param("id"), actorOrDefault(body.Actor), reason); err != nil {
		return writeError(c, err)
	}
	intent, err := s.mgr.GetIntent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, intent)
}

func (s *Server) handleSimulate(c echo.Context) error {
	var body ActorBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, domain.NewValidationError("invalid request body"))
	}
	run, err := s.mgr.StartSimulation(c.Request().Context(), c.Param("id"), actorOrDefault(body.Actor))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, run)
}

func (s *Server) handleExecute(c echo.Context) error {
	var body ExecuteBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, domain.NewValidationError("invalid request body"))
	}
	run, err := s.mgr.StartExecution(c.Request().Context(), c.Param("id"), domain.RunMode(body.Mode), actorOrDefault(body.Actor))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, run)
}

func (s *Server) handleRejectPlan(c echo.Context) error {
	var body ReasonBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, domain.NewValidationError("invalid request body"))
	}
	if err := s.mgr.RejectPlan(c.Request().Context(), c.Param("id"), actorOrDefault(body.Actor), body.Reason); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleEvaluate(c echo.Context) error {
	if err := s.ctrl.Evaluate(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CompleteRunBody is the request body for POST /api/v1/runs/:id/complete.
type CompleteRunBody struct {
	Passed         bool               `json:"passed"`
	Confidence     float64            `json:"confidence"`
	ObservedDeltas map[string]float64 `json:"observed_deltas"`
	Actor          string             `json:"actor"`
}

func (s *Server) handleCompleteRun(c echo.Context) error {
	var body CompleteRunBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, domain.NewValidationError("invalid request body"))
	}
	run, err := s.ctrl.CompleteRun(c.Request().Context(), c.Param("id"), body.Passed, domain.ResultSummary{
		Confidence:     body.Confidence,
		ObservedDeltas: body.ObservedDeltas,
	}, actorOrDefault(body.Actor))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

// CreateAlertBody is the request body for POST /api/v1/alerts.
type CreateAlertBody struct {
	Type            string  `json:"type"`
	MetricName      string  `json:"metric_name"`
	Severity        string  `json:"severity"`
	BaselineWindow  string  `json:"baseline_window"`
	CurrentValue    float64 `json:"current_value"`
	BaselineValue   float64 `json:"baseline_value"`
	Delta           float64 `json:"delta"`
	SuspectedChange string  `json:"suspected_change"`
	DetectedAtUnix  int64   `json:"detected_at_unix"`
}

func (s *Server) handleCreateAlert(c echo.Context) error {
	var body CreateAlertBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, domain.NewValidationError("invalid request body"))
	}
	if body.MetricName == "" {
		return writeError(c, domain.NewValidationError("metric_name is required"))
	}

	now := time.Now().Unix()
	detected := body.DetectedAtUnix
	if detected == 0 {
		detected = now
	}
	alert := domain.Alert{
		ID:              uuid.NewString(),
		Type:            domain.AlertType(body.Type),
		MetricName:      body.MetricName,
		Severity:        domain.AlertSeverity(body.Severity),
		BaselineWindow:  body.BaselineWindow,
		CurrentValue:    body.CurrentValue,
		BaselineValue:   body.BaselineValue,
		Delta:           body.Delta,
		SuspectedChange: body.SuspectedChange,
		Status:          domain.AlertOpen,
		DetectedAtUnix:  detected,
		CreatedAtUnix:   now,
	}
	if err := s.alerts.Create(c.Request().Context(), s.mgr.DB, alert); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, alert)
}

func (s *Server) handleListAlerts(c echo.Context) error {
	alerts, err := s.alerts.List(c.Request().Context(), s.mgr.DB, domain.AlertStatus(c.QueryParam("status")))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, alerts)
}

func (s *Server) handleGetAlert(c echo.Context) error {
	alert, err := s.alerts.GetByID(c.Request().Context(), s.mgr.DB, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, alert)
}

// AlertStatusBody is the request body for POST /api/v1/alerts/:id/status.
type AlertStatusBody struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateAlertStatus(c echo.Context) error {
	var body AlertStatusBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, domain.NewValidationError("invalid request body"))
	}
	status := domain.AlertStatus(body.Status)
	switch status {
	case domain.AlertOpen, domain.AlertAcknowledged, domain.AlertResolved:
	default:
		return writeError(c, domain.NewValidationError("unknown alert status"))
	}
	if err := s.alerts.UpdateStatus(c.Request().Context(), s.mgr.DB, c.Param("id"), status); err != nil {
		return writeError(c, err)
	}
	alert, err := s.alerts.GetByID(c.Request().Context(), s.mgr.DB, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, alert)
}
