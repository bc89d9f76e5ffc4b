// Package runner observes running runs, evaluates guardrails, ramps traffic
// through the intent's blast-radius plan, and rolls back on breach.
package runner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/observeo/remedy-engine/internal/connector"
	"github.com/observeo/remedy-engine/internal/domain"
	"github.com/observeo/remedy-engine/internal/guardrail"
	"github.com/observeo/remedy-engine/internal/lifecycle"
	"github.com/observeo/remedy-engine/internal/metrics"
	"github.com/observeo/remedy-engine/internal/planner"
	"github.com/observeo/remedy-engine/internal/store"
	"github.com/observeo/remedy-engine/internal/timeline"
)

// ExecutionStarter starts a live run for a plan. The lifecycle manager
// implements it; the controller calls it when a simulation passes under
// AutoExecute authority.
type ExecutionStarter interface {
	StartExecution(ctx context.Context, planID string, mode domain.RunMode, actor string) (*domain.Run, error)
}

// Controller drives runs from observation to verdict. It shares the per-
// intent lock set with the lifecycle manager, so evaluation never races a
// user operation on the same intent.
type Controller struct {
	DB           *sql.DB
	Intents      *store.IntentRepo
	Plans        *store.PlanRepo
	Runs         *store.RunRepo
	Observations *store.ObservationRepo
	Recorder     *timeline.Recorder
	Locks        *lifecycle.LockSet
	Governor     *lifecycle.HorizonGovernor
	Executor     *connector.Executor
	Feed         connector.MetricFeed
	Starter      ExecutionStarter
	Logger       *zap.Logger

	// ObservationWindow is how many consecutive passing evaluations a run
	// needs at its current traffic step before ramping or passing.
	ObservationWindow int

	// SnapshotTimeout bounds a single metric feed call.
	SnapshotTimeout time.Duration

	now func() time.Time
}

// NewController wires a Controller with default repos.
func NewController(db *sql.DB, rec *timeline.Recorder, locks *lifecycle.LockSet, exec *connector.Executor, feed connector.MetricFeed, logger *zap.Logger) *Controller {
	return &Controller{
		DB:                db,
		Intents:           &store.IntentRepo{},
		Plans:             &store.PlanRepo{},
		Runs:              &store.RunRepo{},
		Observations:      &store.ObservationRepo{},
		Recorder:          rec,
		Locks:             locks,
		Governor:          lifecycle.NewHorizonGovernor(),
		Executor:          exec,
		Feed:              feed,
		Logger:            logger,
		ObservationWindow: 3,
		SnapshotTimeout:   10 * time.Second,
		now:               time.Now,
	}
}

// Evaluate performs one guardrail evaluation of a Running run. A breach
// fails the run and rolls its plan back immediately; a full passing window
// either widens the blast radius one step or, at the final step, passes the
// run. While the intent is Paused the run is still watched for breaches but
// never ramps.
func (c *Controller) Evaluate(ctx context.Context, runID string) error {
	start := c.now()
	defer func() { metrics.ObserveEvaluation(c.now().Sub(start)) }()

	run, err := c.Runs.GetByID(ctx, c.DB, runID)
	if err != nil {
		return err
	}
	plan, err := c.Plans.GetByID(ctx, c.DB, run.PlanID)
	if err != nil {
		return err
	}

	release, err := c.Locks.TryAcquire(plan.IntentID)
	if err != nil {
		return err
	}
	autoPlan, err := c.evaluateLocked(ctx, runID)
	release()
	if err != nil {
		return err
	}
	if autoPlan != "" {
		c.autoExecute(ctx, autoPlan)
	}
	return nil
}

// evaluateLocked runs one evaluation under the intent's lock. It returns a
// plan ID to auto-execute once the lock is released, or "".
func (c *Controller) evaluateLocked(ctx context.Context, runID string) (string, error) {
	// Re-read under the lock.
	run, err := c.Runs.GetByID(ctx, c.DB, runID)
	if err != nil {
		return "", err
	}
	if run.Status != domain.RunRunning {
		return "", domain.ErrRunTerminal
	}
	plan, err := c.Plans.GetByID(ctx, c.DB, run.PlanID)
	if err != nil {
		return "", err
	}
	intent, err := c.Intents.GetByID(ctx, c.DB, plan.IntentID)
	if err != nil {
		return "", err
	}

	snapCtx, cancel := context.WithTimeout(ctx, c.SnapshotTimeout)
	snapshot, err := c.Feed.Snapshot(snapCtx, metricsFor(plan.Guardrails))
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", domain.ErrProviderTimeout
		}
		return "", domain.WrapProviderError("metric snapshot", err)
	}
	result := guardrail.Evaluate(plan.Guardrails, snapshot)

	if result.Verdict == domain.VerdictBreach {
		return "", c.handleBreach(ctx, intent, plan, run, result, snapshot)
	}
	return c.handlePass(ctx, intent, plan, run, snapshot)
}

// autoExecute starts a live run for an approved plan as the system actor.
// Failures are logged; the plan stays Approved for a manual start.
func (c *Controller) autoExecute(ctx context.Context, planID string) {
	if c.Starter == nil {
		return
	}
	run, err := c.Starter.StartExecution(ctx, planID, domain.ModeCanary, domain.ActorSystem)
	if err != nil {
		c.Logger.Error("auto execute approved plan",
			zap.String("plan_id", planID),
			zap.Error(err))
		return
	}
	c.Logger.Info("auto execution started",
		zap.String("plan_id", planID),
		zap.String("run_id", run.ID))
}

// CompleteRun terminates an in-flight run with a caller-supplied verdict and
// result summary. A simulation routes its plan and intent the same way a full
// observation window would; a live run reported as failed is reverted and its
// plan rolled back. Completing a run that already ended is a precondition
// error.
func (c *Controller) CompleteRun(ctx context.Context, runID string, passed bool, summary domain.ResultSummary, actor string) (*domain.Run, error) {
	run, err := c.Runs.GetByID(ctx, c.DB, runID)
	if err != nil {
		return nil, err
	}
	plan, err := c.Plans.GetByID(ctx, c.DB, run.PlanID)
	if err != nil {
		return nil, err
	}

	release, err := c.Locks.TryAcquire(plan.IntentID)
	if err != nil {
		return nil, err
	}
	completed, autoPlan, err := c.completeLocked(ctx, runID, passed, summary, actor)
	release()
	if err != nil {
		return nil, err
	}
	if autoPlan != "" {
		c.autoExecute(ctx, autoPlan)
	}
	return completed, nil
}

func (c *Controller) completeLocked(ctx context.Context, runID string, passed bool, summary domain.ResultSummary, actor string) (*domain.Run, string, error) {
	// Re-read under the lock.
	run, err := c.Runs.GetByID(ctx, c.DB, runID)
	if err != nil {
		return nil, "", err
	}
	if run.Status != domain.RunRunning {
		return nil, "", domain.ErrRunTerminal
	}
	plan, err := c.Plans.GetByID(ctx, c.DB, run.PlanID)
	if err != nil {
		return nil, "", err
	}
	intent, err := c.Intents.GetByID(ctx, c.DB, plan.IntentID)
	if err != nil {
		return nil, "", err
	}

	now := c.now().Unix()
	run.EndAtUnix = now
	run.Result = summary
	plan.UpdatedAtUnix = now
	intent.UpdatedAtUnix = now

	var pending []pendingEvent
	rolledBack := false
	autoPlan := ""
	switch {
	case run.Mode == domain.ModeSimulation && passed:
		run.Status = domain.RunPassed
		plan.Status = domain.PlanApproved
		if lifecycle.IsValidTransition(intent.Status, domain.IntentReadyToExecute) {
			intent.Status = domain.IntentReadyToExecute
		}
		pending = append(pending, pendingEvent{domain.EventSimulationPassed, domain.EventDetails{
			PlanID:     plan.ID,
			RunID:      run.ID,
			Confidence: summary.Confidence,
		}})
		if intent.Authority == domain.AutoExecute {
			autoPlan = plan.ID
		}
	case run.Mode == domain.ModeSimulation:
		run.Status = domain.RunFailed
		plan.Status = domain.PlanProposed
		if lifecycle.IsValidTransition(intent.Status, domain.IntentProposed) {
			intent.Status = domain.IntentProposed
		}
		pending = append(pending, pendingEvent{domain.EventSimulationFailed, domain.EventDetails{
			PlanID:     plan.ID,
			RunID:      run.ID,
			Confidence: summary.Confidence,
		}})
	case passed:
		// A passed live run leaves its plan executing; the intent closes when
		// the operator completes it.
		run.Status = domain.RunPassed
	default:
		// Failed live run: revert before recording the rollback.
		if revErr := c.Executor.RevertSteps(ctx, plan.RollbackSteps); revErr != nil {
			run.Status = domain.RunFailed
			events, recErr := c.commitCompletion(ctx, intent, plan, run, actor, []pendingEvent{
				{domain.EventRollbackFailed, domain.EventDetails{
					PlanID: plan.ID,
					RunID:  run.ID,
					Reason: revErr.Error(),
				}},
			})
			if recErr != nil {
				c.Logger.Error("record rollback failure", zap.Error(recErr))
			} else {
				metrics.IncRollback("failed")
				c.Recorder.PublishCommitted(ctx, events...)
			}
			return nil, "", domain.WrapRollbackFailed("revert plan steps", revErr)
		}
		if err := c.Executor.SetTraffic(ctx, plan.ID, 0); err != nil {
			return nil, "", err
		}
		run.Status = domain.RunFailed
		plan.Status = domain.PlanRolledBack
		if err := c.settleIntentAfterPlanRollback(ctx, intent, plan.ID); err != nil {
			return nil, "", err
		}
		rolledBack = true
		pending = append(pending, pendingEvent{domain.EventAutoRollback, domain.EventDetails{
			PlanID: plan.ID,
			RunID:  run.ID,
			Reason: "run completed as failed",
		}})
	}

	events, err := c.commitCompletion(ctx, intent, plan, run, actor, pending)
	if err != nil {
		return nil, "", err
	}
	metrics.IncRunVerdict(string(run.Mode), string(run.Status))
	if rolledBack {
		metrics.IncRollback("ok")
	}
	c.Recorder.PublishCommitted(ctx, events...)
	c.Logger.Info("run completed",
		zap.String("run_id", run.ID),
		zap.String("intent_id", intent.ID),
		zap.Bool("passed", passed),
		zap.String("actor", actor))
	return run, autoPlan, nil
}

func metricsFor(thresholds []domain.Threshold) []string {
	names := make([]string, 0, len(thresholds))
	seen := make(map[string]bool, len(thresholds))
	for _, th := range thresholds {
		if !seen[th.Metric] {
			seen[th.Metric] = true
			names = append(names, th.Metric)
		}
	}
	return names
}

// handleBreach fails the run and reverts whatever the plan applied. For a
// simulation nothing touched production, so the plan simply returns to the
// candidate pool.
func (c *Controller) handleBreach(ctx context.Context, intent *domain.Intent, plan *domain.FixPlan, run *domain.Run, result domain.EvalResult, snapshot domain.MetricSnapshot) error {
	now := c.now().Unix()

	if run.Mode == domain.ModeSimulation {
		run.Status = domain.RunFailed
		run.EndAtUnix = now
		run.Result = c.summarize(ctx, run, snapshot, intent.GoalMetric)
		plan.Status = domain.PlanProposed
		plan.UpdatedAtUnix = now
		if lifecycle.IsValidTransition(intent.Status, domain.IntentProposed) {
			intent.Status = domain.IntentProposed
		}
		intent.UpdatedAtUnix = now

		events, err := c.commitVerdict(ctx, intent, plan, run, result, snapshot, []pendingEvent{
			{domain.EventSimulationFailed, domain.EventDetails{
				PlanID:       plan.ID,
				RunID:        run.ID,
				BreachedKeys: result.BreachedKeys,
				Confidence:   run.Result.Confidence,
			}},
		})
		if err != nil {
			return err
		}
		metrics.IncRunVerdict(string(run.Mode), string(run.Status))
		c.Recorder.PublishCommitted(ctx, events...)
		return nil
	}

	// Live run: revert before recording the rollback, so the timeline never
	// claims a rollback that did not happen.
	if err := c.Executor.RevertSteps(ctx, plan.RollbackSteps); err != nil {
		if recErr := c.recordRollbackFailure(ctx, intent, plan, run, result, err); recErr != nil {
			c.Logger.Error("record rollback failure", zap.Error(recErr))
		}
		return err
	}
	if err := c.Executor.SetTraffic(ctx, plan.ID, 0); err != nil {
		return err
	}

	run.Status = domain.RunFailed
	run.EndAtUnix = now
	run.Result = c.summarize(ctx, run, snapshot, intent.GoalMetric)
	plan.Status = domain.PlanRolledBack
	plan.UpdatedAtUnix = now
	intent.UpdatedAtUnix = now
	if err := c.settleIntentAfterPlanRollback(ctx, intent, plan.ID); err != nil {
		return err
	}

	events, err := c.commitVerdict(ctx, intent, plan, run, result, snapshot, []pendingEvent{
		{domain.EventGuardrailBreached, domain.EventDetails{
			PlanID:         plan.ID,
			RunID:          run.ID,
			BreachedKeys:   result.BreachedKeys,
			TrafficPercent: run.TrafficPercent,
		}},
		{domain.EventAutoRollback, domain.EventDetails{
			PlanID: plan.ID,
			RunID:  run.ID,
			Reason: "guardrail breach: " + strings.Join(result.BreachedKeys, ", "),
		}},
	})
	if err != nil {
		return err
	}

	metrics.IncRunVerdict(string(run.Mode), string(run.Status))
	metrics.IncRollback("ok")
	c.Recorder.PublishCommitted(ctx, events...)
	c.Logger.Warn("run rolled back on guardrail breach",
		zap.String("intent_id", intent.ID),
		zap.String("run_id", run.ID),
		zap.Strings("breached", result.BreachedKeys))
	return nil
}

// settleIntentAfterPlanRollback decides where the intent lands after one of
// its plans rolls back: with other candidate plans still in play the intent
// keeps Executing and the lowest-risk candidate is next on offer; with none
// left the intent itself rolls back.
func (c *Controller) settleIntentAfterPlanRollback(ctx context.Context, intent *domain.Intent, rolledBackPlanID string) error {
	active, err := c.Plans.ListActiveByIntent(ctx, c.DB, intent.ID)
	if err != nil {
		return err
	}
	remaining := make([]domain.FixPlan, 0, len(active))
	for _, p := range active {
		if p.ID != rolledBackPlanID {
			remaining = append(remaining, p)
		}
	}
	if len(remaining) > 0 {
		fields := []zap.Field{
			zap.String("intent_id", intent.ID),
			zap.Int("remaining_plans", len(remaining)),
		}
		if next := planner.NextCandidate(remaining); next != nil {
			fields = append(fields,
				zap.String("next_plan_id", next.ID),
				zap.Int("risk_score", next.RiskScore))
		}
		c.Logger.Info("candidate plans remain after rollback", fields...)
		return nil
	}
	if lifecycle.IsValidTransition(intent.Status, domain.IntentRolledBack) {
		intent.Status = domain.IntentRolledBack
	}
	return nil
}

// handlePass advances the pass streak and, once the observation window is
// full, ramps to the next blast step or passes the run at the final step.
// When a simulation passes under AutoExecute authority it returns the plan
// ID so the caller can start execution after releasing the intent lock.
func (c *Controller) handlePass(ctx context.Context, intent *domain.Intent, plan *domain.FixPlan, run *domain.Run, snapshot domain.MetricSnapshot) (string, error) {
	now := c.now().Unix()
	run.PassStreak++

	result := domain.EvalResult{Verdict: domain.VerdictPass}
	if run.PassStreak < c.ObservationWindow {
		return "", c.commitObservation(ctx, run, result, snapshot)
	}

	if run.Mode == domain.ModeSimulation {
		run.Status = domain.RunPassed
		run.EndAtUnix = now
		run.Result = c.summarize(ctx, run, snapshot, intent.GoalMetric)
		plan.Status = domain.PlanApproved
		plan.UpdatedAtUnix = now
		if lifecycle.IsValidTransition(intent.Status, domain.IntentReadyToExecute) {
			intent.Status = domain.IntentReadyToExecute
		}
		intent.UpdatedAtUnix = now

		events, err := c.commitVerdict(ctx, intent, plan, run, result, snapshot, []pendingEvent{
			{domain.EventSimulationPassed, domain.EventDetails{
				PlanID:     plan.ID,
				RunID:      run.ID,
				Confidence: run.Result.Confidence,
			}},
		})
		if err != nil {
			return "", err
		}
		metrics.IncRunVerdict(string(run.Mode), string(run.Status))
		c.Recorder.PublishCommitted(ctx, events...)
		if intent.Authority == domain.AutoExecute {
			return plan.ID, nil
		}
		return "", nil
	}

	// A paused intent holds its current traffic; keep observing.
	if intent.Status == domain.IntentPaused {
		return "", c.commitObservation(ctx, run, result, snapshot)
	}

	next, ok := intent.NextBlastStep(run.TrafficPercent)
	if !ok {
		// Final step held for a full window: the run has earned its pass.
		run.Status = domain.RunPassed
		run.EndAtUnix = now
		run.Result = c.summarize(ctx, run, snapshot, intent.GoalMetric)
		intent.UpdatedAtUnix = now

		events, err := c.commitVerdict(ctx, intent, plan, run, result, snapshot, nil)
		if err != nil {
			return "", err
		}
		metrics.IncRunVerdict(string(run.Mode), string(run.Status))
		c.Recorder.PublishCommitted(ctx, events...)
		c.Logger.Info("run passed at full blast radius",
			zap.String("intent_id", intent.ID),
			zap.String("run_id", run.ID))
		return "", nil
	}

	// Past the time horizon the run holds its current step instead of
	// ramping further; passes at the final step are unaffected.
	switch c.Governor.Check(*intent) {
	case lifecycle.HorizonHalt:
		c.Logger.Warn("time horizon exceeded, holding blast radius",
			zap.String("intent_id", intent.ID),
			zap.String("run_id", run.ID),
			zap.Float64("traffic_percent", run.TrafficPercent))
		return "", c.commitObservation(ctx, run, result, snapshot)
	case lifecycle.HorizonWarn:
		c.Logger.Warn("time horizon nearly exhausted",
			zap.String("intent_id", intent.ID),
			zap.String("run_id", run.ID))
	}

	if err := c.Executor.SetTraffic(ctx, plan.ID, next); err != nil {
		return "", err
	}
	run.TrafficPercent = next
	run.PassStreak = 0
	intent.UpdatedAtUnix = now

	events, err := c.commitVerdict(ctx, intent, plan, run, result, snapshot, []pendingEvent{
		{domain.EventRolloutStepChanged, domain.EventDetails{
			PlanID:         plan.ID,
			RunID:          run.ID,
			TrafficPercent: next,
		}},
	})
	if err != nil {
		return "", err
	}
	c.Recorder.PublishCommitted(ctx, events...)
	c.Logger.Info("blast radius widened",
		zap.String("intent_id", intent.ID),
		zap.String("run_id", run.ID),
		zap.Float64("traffic_percent", next))
	return "", nil
}

// summarize builds the run's result from its recorded observations plus the
// final snapshot. Confidence grows with the share of passing observations.
func (c *Controller) summarize(ctx context.Context, run *domain.Run, snapshot domain.MetricSnapshot, goalMetric string) domain.ResultSummary {
	observations, err := c.Observations.ListByRun(ctx, c.DB, run.ID)
	if err != nil {
		c.Logger.Warn("list observations for summary", zap.Error(err))
	}

	passes, total := 0, len(observations)+1
	for _, obs := range observations {
		if obs.Verdict == domain.VerdictPass {
			passes++
		}
	}
	if run.Status != domain.RunFailed && run.Status != domain.RunRolledBack {
		passes++
	}

	deltas := make(map[string]float64, len(snapshot.Values))
	for metric, value := range snapshot.Values {
		deltas[metric] = value
	}
	if _, ok := deltas[goalMetric]; !ok && goalMetric != "" {
		// The goal metric may not be a guardrail metric; fetch it directly.
		if goalSnap, err := c.Feed.Snapshot(ctx, []string{goalMetric}); err == nil {
			if v, ok := goalSnap.Values[goalMetric]; ok {
				deltas[goalMetric] = v
			}
		}
	}

	return domain.ResultSummary{
		Confidence:     float64(passes) / float64(total),
		ObservedDeltas: deltas,
	}
}

type pendingEvent struct {
	evType  domain.EventType
	details domain.EventDetails
}

// commitObservation records an evaluation that changes only the run row.
func (c *Controller) commitObservation(ctx context.Context, run *domain.Run, result domain.EvalResult, snapshot domain.MetricSnapshot) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := c.Runs.UpdateTx(ctx, tx, *run); err != nil {
		return err
	}
	if err := c.Observations.RecordTx(ctx, tx, store.Observation{
		RunID:          run.ID,
		Verdict:        result.Verdict,
		BreachedKeys:   result.BreachedKeys,
		Snapshot:       snapshot,
		ObservedAtUnix: c.now().Unix(),
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// commitVerdict persists the observation, run, plan, intent, and events in
// one transaction.
func (c *Controller) commitVerdict(ctx context.Context, intent *domain.Intent, plan *domain.FixPlan, run *domain.Run, result domain.EvalResult, snapshot domain.MetricSnapshot, pending []pendingEvent) ([]domain.TimelineEvent, error) {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := c.Observations.RecordTx(ctx, tx, store.Observation{
		RunID:          run.ID,
		Verdict:        result.Verdict,
		BreachedKeys:   result.BreachedKeys,
		Snapshot:       snapshot,
		ObservedAtUnix: c.now().Unix(),
	}); err != nil {
		return nil, err
	}
	if err := c.Runs.UpdateTx(ctx, tx, *run); err != nil {
		return nil, err
	}
	if plan != nil {
		if err := c.Plans.UpdateStatusTx(ctx, tx, *plan); err != nil {
			return nil, err
		}
	}
	var events []domain.TimelineEvent
	for _, p := range pending {
		ev, err := c.Recorder.AppendTx(ctx, tx, intent, p.evType, domain.ActorSystem, p.details)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := c.Intents.UpdateStateTx(ctx, tx, *intent); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	intent.StateVersion++
	return events, nil
}

// commitCompletion persists the run, plan, intent, and events of an explicit
// completion in one transaction. Unlike commitVerdict it records no
// observation, since no evaluation happened.
func (c *Controller) commitCompletion(ctx context.Context, intent *domain.Intent, plan *domain.FixPlan, run *domain.Run, actor string, pending []pendingEvent) ([]domain.TimelineEvent, error) {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := c.Runs.UpdateTx(ctx, tx, *run); err != nil {
		return nil, err
	}
	if err := c.Plans.UpdateStatusTx(ctx, tx, *plan); err != nil {
		return nil, err
	}
	var events []domain.TimelineEvent
	for _, p := range pending {
		ev, err := c.Recorder.AppendTx(ctx, tx, intent, p.evType, actor, p.details)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := c.Intents.UpdateStateTx(ctx, tx, *intent); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	intent.StateVersion++
	return events, nil
}

// recordRollbackFailure marks the run failed and appends a RollbackFailed
// event. The plan stays Executing so an operator can intervene.
func (c *Controller) recordRollbackFailure(ctx context.Context, intent *domain.Intent, plan *domain.FixPlan, run *domain.Run, result domain.EvalResult, cause error) error {
	now := c.now().Unix()
	run.Status = domain.RunFailed
	run.EndAtUnix = now
	intent.UpdatedAtUnix = now

	events, err := c.commitVerdict(ctx, intent, plan, run, result, domain.MetricSnapshot{}, []pendingEvent{
		{domain.EventGuardrailBreached, domain.EventDetails{
			PlanID:       plan.ID,
			RunID:        run.ID,
			BreachedKeys: result.BreachedKeys,
		}},
		{domain.EventRollbackFailed, domain.EventDetails{
			PlanID: plan.ID,
			RunID:  run.ID,
			Reason: cause.Error(),
		}},
	})
	if err != nil {
		return err
	}
	metrics.IncRunVerdict(string(run.Mode), string(run.Status))
	metrics.IncRollback("failed")
	c.Recorder.PublishCommitted(ctx, events...)
	return nil
}
