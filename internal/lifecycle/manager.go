package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/observeo/remedy-engine/internal/connector"
	"github.com/observeo/remedy-engine/internal/domain"
	"github.com/observeo/remedy-engine/internal/metrics"
	"github.com/observeo/remedy-engine/internal/planner"
	"github.com/observeo/remedy-engine/internal/store"
	"github.com/observeo/remedy-engine/internal/timeline"
)

// Manager orchestrates intent lifecycle operations. Every mutation acquires
// the intent's lock, runs in one transaction together with its timeline
// event, and publishes the event after commit.
type Manager struct {
	DB        *sql.DB
	Intents   *store.IntentRepo
	Diagnoses *store.DiagnosisRepo
	Plans     *store.PlanRepo
	Runs      *store.RunRepo
	Recorder  *timeline.Recorder
	Locks     *LockSet
	Governor  *HorizonGovernor
	Provider  connector.DiagnosisProvider
	Executor  *connector.Executor
	Logger    *zap.Logger

	// ProviderTimeout bounds a single diagnosis provider call.
	ProviderTimeout time.Duration

	now func() time.Time
}

// NewManager wires a Manager with default repos.
func NewManager(db *sql.DB, rec *timeline.Recorder, provider connector.DiagnosisProvider, exec *connector.Executor, logger *zap.Logger) *Manager {
	return &Manager{
		DB:              db,
		Intents:         &store.IntentRepo{},
		Diagnoses:       &store.DiagnosisRepo{},
		Plans:           &store.PlanRepo{},
		Runs:            &store.RunRepo{},
		Recorder:        rec,
		Locks:           NewLockSet(),
		Governor:        NewHorizonGovernor(),
		Provider:        provider,
		Executor:        exec,
		Logger:          logger,
		ProviderTimeout: 30 * time.Second,
		now:             time.Now,
	}
}

// CreateIntentRequest carries the caller-supplied fields for a new intent.
type CreateIntentRequest struct {
	Title           string
	GoalMetric      string
	GoalTargetDelta float64
	TimeHorizonDays int
	Authority       domain.AuthorityMode
	BlastRadius     []float64
	Thresholds      map[string]float64
	Flags           map[string]bool
	OwnerUserID     string
	SourceAlertID   string
	Actor           string
}

// CreateIntent validates the request and persists a Draft intent with its
// creation event.
func (m *Manager) CreateIntent(ctx context.Context, req CreateIntentRequest) (*domain.Intent, error) {
	if req.Title == "" {
		return nil, domain.NewValidationError("title is required")
	}
	if req.GoalMetric == "" {
		return nil, domain.NewValidationError("goal_metric is required")
	}
	if req.GoalTargetDelta == 0 {
		return nil, domain.NewValidationError("goal_target_delta must be non-zero")
	}
	if err := domain.ValidateBlastRadius(req.BlastRadius); err != nil {
		return nil, err
	}
	constraints, err := domain.ParseConstraintSet(req.Thresholds, req.Flags)
	if err != nil {
		return nil, err
	}
	authority := req.Authority
	if authority == "" {
		authority = domain.RecommendOnly
	}
	horizon := req.TimeHorizonDays
	if horizon <= 0 {
		horizon = 14
	}

	// One remediation at a time per alert.
	if req.SourceAlertID != "" {
		exists, err := m.Intents.HasActiveBySourceAlert(ctx, m.DB, req.SourceAlertID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domain.ErrDuplicateIntent
		}
	}

	now := m.now().Unix()
	intent := domain.Intent{
		ID:              uuid.NewString(),
		Title:           req.Title,
		GoalMetric:      req.GoalMetric,
		GoalTargetDelta: req.GoalTargetDelta,
		TimeHorizonDays: horizon,
		Authority:       authority,
		BlastRadius:     append([]float64(nil), req.BlastRadius...),
		Constraints:     constraints,
		Status:          domain.IntentDraft,
		OwnerUserID:     req.OwnerUserID,
		SourceAlertID:   req.SourceAlertID,
		StateVersion:    1,
		CreatedAtUnix:   now,
		UpdatedAtUnix:   now,
	}

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ev, err := m.Recorder.AppendTx(ctx, tx, &intent, domain.EventIntentCreated, req.Actor, domain.EventDetails{Source: req.SourceAlertID})
	if err != nil {
		return nil, err
	}
	if err := m.Intents.CreateTx(ctx, tx, intent); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	metrics.IncIntent(string(intent.Authority))
	m.Recorder.PublishCommitted(ctx, ev)
	m.Logger.Info("intent created",
		zap.String("intent_id", intent.ID),
		zap.String("goal_metric", intent.GoalMetric),
		zap.String("authority", string(intent.Authority)))
	return &intent, nil
}

// GetIntent returns one intent.
func (m *Manager) GetIntent(ctx context.Context, intentID string) (*domain.Intent, error) {
	return m.Intents.GetByID(ctx, m.DB, intentID)
}

// ListIntents returns all intents, newest first.
func (m *Manager) ListIntents(ctx context.Context) ([]domain.Intent, error) {
	return m.Intents.List(ctx, m.DB)
}

// LatestDiagnosis returns the intent's most recent diagnosis, or nil.
func (m *Manager) LatestDiagnosis(ctx context.Context, intentID string) (*domain.Diagnosis, error) {
	if _, err := m.Intents.GetByID(ctx, m.DB, intentID); err != nil {
		return nil, err
	}
	return m.Diagnoses.GetLatest(ctx, m.DB, intentID)
}

// RequestDiagnosis calls the diagnosis provider once, bounded by
// ProviderTimeout, and persists the result. The intent must be Draft or
// Proposed; a Draft intent advances to Proposed. Provider failures surface to
// the caller without a timeline event and without retry.
func (m *Manager) RequestDiagnosis(ctx context.Context, intentID, actor string) (*domain.Diagnosis, error) {
	release, err := m.Locks.TryAcquire(intentID)
	if err != nil {
		return nil, err
	}
	defer release()

	intent, err := m.Intents.GetByID(ctx, m.DB, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status.IsTerminal() {
		return nil, domain.ErrIntentTerminal
	}
	if intent.Status != domain.IntentDraft && intent.Status != domain.IntentProposed {
		return nil, domain.ErrInvalidTransition
	}

	callCtx, cancel := context.WithTimeout(ctx, m.ProviderTimeout)
	defer cancel()
	diag, err := m.Provider.Diagnose(callCtx, *intent)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, domain.ErrProviderTimeout
		}
		return nil, domain.WrapProviderError("diagnose intent", err)
	}
	diag.IntentID = intent.ID
	if diag.ID == "" {
		diag.ID = uuid.NewString()
	}
	if diag.GeneratedAtUnix == 0 {
		diag.GeneratedAtUnix = m.now().Unix()
	}

	if intent.Status == domain.IntentDraft {
		intent.Status = domain.IntentProposed
	}
	intent.UpdatedAtUnix = m.now().Unix()

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := m.Diagnoses.CreateTx(ctx, tx, diag); err != nil {
		return nil, err
	}
	ev, err := m.Recorder.AppendTx(ctx, tx, intent, domain.EventDiagnosisGenerated, actor, domain.EventDetails{
		HypothesesCount: len(diag.Hypotheses),
	})
	if err != nil {
		return nil, err
	}
	if err := m.Intents.UpdateStateTx(ctx, tx, *intent); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	m.Recorder.PublishCommitted(ctx, ev)
	return &diag, nil
}

// RequestFixPlans builds candidate plans from the latest diagnosis. The
// intent must be Proposed and have a diagnosis; otherwise no plans are
// created and no event is appended.
func (m *Manager) RequestFixPlans(ctx context.Context, intentID, actor string) ([]domain.FixPlan, error) {
	release, err := m.Locks.TryAcquire(intentID)
	if err != nil {
		return nil, err
	}
	defer release()

	intent, err := m.Intents.GetByID(ctx, m.DB, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status.IsTerminal() {
		return nil, domain.ErrIntentTerminal
	}
	if intent.Status != domain.IntentProposed {
		return nil, domain.ErrInvalidTransition
	}
	diag, err := m.Diagnoses.GetLatest(ctx, m.DB, intentID)
	if err != nil {
		return nil, err
	}
	if diag == nil {
		return nil, domain.ErrNoDiagnosis
	}

	plans := planner.BuildPlans(*intent, *diag, m.now())
	for _, p := range plans {
		if err := domain.ValidateNarrowing(intent.Constraints.Thresholds, p.Guardrails); err != nil {
			return nil, err
		}
	}
	intent.UpdatedAtUnix = m.now().Unix()

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, p := range plans {
		if err := m.Plans.CreateTx(ctx, tx, p); err != nil {
			return nil, err
		}
	}
	ev, err := m.Recorder.AppendTx(ctx, tx, intent, domain.EventPlanProposed, actor, domain.EventDetails{
		PlansCount: len(plans),
	})
	if err != nil {
		return nil, err
	}
	if err := m.Intents.UpdateStateTx(ctx, tx, *intent); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	m.Recorder.PublishCommitted(ctx, ev)
	return plans, nil
}

// StartSimulation starts a zero-traffic simulation run for a Proposed plan.
func (m *Manager) StartSimulation(ctx context.Context, planID, actor string) (*domain.Run, error) {
	plan, err := m.Plans.GetByID(ctx, m.DB, planID)
	if err != nil {
		return nil, err
	}
	release, err := m.Locks.TryAcquire(plan.IntentID)
	if err != nil {
		return nil, err
	}
	defer release()

	intent, plan, err := m.loadForRunStart(ctx, planID, domain.ModeSimulation)
	if err != nil {
		return nil, err
	}

	now := m.now().Unix()
	run := domain.Run{
		ID:             uuid.NewString(),
		PlanID:         plan.ID,
		Mode:           domain.ModeSimulation,
		TrafficPercent: 0,
		Status:         domain.RunRunning,
		StartAtUnix:    now,
		CreatedAtUnix:  now,
	}

	plan.Status = domain.PlanSimulating
	plan.UpdatedAtUnix = now
	if IsValidTransition(intent.Status, domain.IntentSimulating) {
		intent.Status = domain.IntentSimulating
	}
	intent.UpdatedAtUnix = now

	ev, err := m.commitRunStart(ctx, intent, plan, run, domain.EventSimulationApproved, actor)
	if err != nil {
		return nil, err
	}
	m.Recorder.PublishCommitted(ctx, ev)
	return &run, nil
}

// StartExecution starts a live run for a plan at the first blast-radius step.
// Authority mode and the time horizon gate the start.
func (m *Manager) StartExecution(ctx context.Context, planID string, mode domain.RunMode, actor string) (*domain.Run, error) {
	if mode == "" {
		mode = domain.ModeCanary
	}
	if mode == domain.ModeSimulation {
		return nil, domain.NewValidationError("use the simulate operation for simulation runs")
	}

	plan, err := m.Plans.GetByID(ctx, m.DB, planID)
	if err != nil {
		return nil, err
	}
	release, err := m.Locks.TryAcquire(plan.IntentID)
	if err != nil {
		return nil, err
	}
	defer release()

	intent, plan, err := m.loadForRunStart(ctx, planID, mode)
	if err != nil {
		return nil, err
	}
	if err := AllowExecution(intent.Authority, actor); err != nil {
		return nil, err
	}
	switch m.Governor.Check(*intent) {
	case HorizonHalt:
		return nil, domain.ErrHorizonExceeded
	case HorizonWarn:
		m.Logger.Warn("intent approaching time horizon",
			zap.String("intent_id", intent.ID),
			zap.Int("horizon_days", intent.TimeHorizonDays))
	}

	traffic := intent.BlastRadius[0]
	if err := m.Executor.ApplySteps(ctx, plan.ExecutionSteps); err != nil {
		return nil, err
	}
	if err := m.Executor.SetTraffic(ctx, plan.ID, traffic); err != nil {
		return nil, err
	}

	now := m.now().Unix()
	run := domain.Run{
		ID:             uuid.NewString(),
		PlanID:         plan.ID,
		Mode:           mode,
		TrafficPercent: traffic,
		Status:         domain.RunRunning,
		StartAtUnix:    now,
		CreatedAtUnix:  now,
	}

	plan.Status = domain.PlanExecuting
	plan.UpdatedAtUnix = now
	if IsValidTransition(intent.Status, domain.IntentExecuting) {
		intent.Status = domain.IntentExecuting
	}
	intent.UpdatedAtUnix = now

	ev, err := m.commitRunStart(ctx, intent, plan, run, domain.EventExecuteApproved, actor)
	if err != nil {
		return nil, err
	}
	m.Recorder.PublishCommitted(ctx, ev)
	m.Logger.Info("execution started",
		zap.String("intent_id", intent.ID),
		zap.String("plan_id", plan.ID),
		zap.Float64("traffic_percent", traffic))
	return &run, nil
}

// loadForRunStart re-reads intent and plan under the lock and applies the
// shared run-start preconditions.
func (m *Manager) loadForRunStart(ctx context.Context, planID string, mode domain.RunMode) (*domain.Intent, *domain.FixPlan, error) {
	plan, err := m.Plans.GetByID(ctx, m.DB, planID)
	if err != nil {
		return nil, nil, err
	}
	intent, err := m.Intents.GetByID(ctx, m.DB, plan.IntentID)
	if err != nil {
		return nil, nil, err
	}
	if intent.Status.IsTerminal() {
		return nil, nil, domain.ErrIntentTerminal
	}
	if intent.Status == domain.IntentPaused {
		return nil, nil, domain.ErrNotExecuting
	}
	if plan.Status.IsTerminal() {
		return nil, nil, domain.ErrPlanTerminal
	}
	if !planner.CanStartRun(plan.Status, mode) {
		return nil, nil, domain.ErrInvalidTransition
	}
	active, err := m.Runs.GetActiveByPlan(ctx, m.DB, plan.ID)
	if err != nil {
		return nil, nil, err
	}
	if active != nil {
		return nil, nil, domain.ErrActiveRunExists
	}
	return intent, plan, nil
}

// commitRunStart persists run creation, plan and intent transitions, and the
// approval event in one transaction.
func (m *Manager) commitRunStart(ctx context.Context, intent *domain.Intent, plan *domain.FixPlan, run domain.Run, evType domain.EventType, actor string) (domain.TimelineEvent, error) {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimelineEvent{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := m.Runs.CreateTx(ctx, tx, run); err != nil {
		return domain.TimelineEvent{}, err
	}
	if err := m.Plans.UpdateStatusTx(ctx, tx, *plan); err != nil {
		return domain.TimelineEvent{}, err
	}
	ev, err := m.Recorder.AppendTx(ctx, tx, intent, evType, actor, domain.EventDetails{
		PlanID:         plan.ID,
		RunID:          run.ID,
		Mode:           run.Mode,
		TrafficPercent: run.TrafficPercent,
	})
	if err != nil {
		return domain.TimelineEvent{}, err
	}
	if err := m.Intents.UpdateStateTx(ctx, tx, *intent); err != nil {
		return domain.TimelineEvent{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimelineEvent{}, fmt.Errorf("commit: %w", err)
	}
	return ev, nil
}

// RejectPlan marks a plan Rejected. A plan with an active run cannot be
// rejected; stop the run first.
func (m *Manager) RejectPlan(ctx context.Context, planID, actor, reason string) error {
	plan, err := m.Plans.GetByID(ctx, m.DB, planID)
	if err != nil {
		return err
	}
	release, err := m.Locks.TryAcquire(plan.IntentID)
	if err != nil {
		return err
	}
	defer release()

	plan, err = m.Plans.GetByID(ctx, m.DB, planID)
	if err != nil {
		return err
	}
	if plan.Status.IsTerminal() {
		return domain.ErrPlanTerminal
	}
	if !planner.IsValidTransition(plan.Status, domain.PlanRejected) {
		return domain.ErrInvalidTransition
	}
	active, err := m.Runs.GetActiveByPlan(ctx, m.DB, plan.ID)
	if err != nil {
		return err
	}
	if active != nil {
		return domain.ErrActiveRunExists
	}
	intent, err := m.Intents.GetByID(ctx, m.DB, plan.IntentID)
	if err != nil {
		return err
	}

	now := m.now().Unix()
	plan.Status = domain.PlanRejected
	plan.UpdatedAtUnix = now
	intent.UpdatedAtUnix = now

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := m.Plans.UpdateStatusTx(ctx, tx, *plan); err != nil {
		return err
	}
	ev, err := m.Recorder.AppendTx(ctx, tx, intent, domain.EventPlanRejected, actor, domain.EventDetails{
		PlanID: plan.ID,
		Reason: reason,
	})
	if err != nil {
		return err
	}
	if err := m.Intents.UpdateStateTx(ctx, tx, *intent); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	m.Recorder.PublishCommitted(ctx, ev)
	return nil
}

// Pause suspends ramp-up for an Executing intent. Running runs keep their
// current traffic; the run monitor stops widening blast radius until Resume.
func (m *Manager) Pause(ctx context.Context, intentID, actor string) error {
	return m.transitionIntent(ctx, intentID, actor, domain.IntentPaused, domain.EventIntentPaused, func(in *domain.Intent) error {
		if in.Status != domain.IntentExecuting {
			return domain.ErrNotExecuting
		}
		return nil
	})
}

// Resume returns a Paused intent to Executing.
func (m *Manager) Resume(ctx context.Context, intentID, actor string) error {
	return m.transitionIntent(ctx, intentID, actor, domain.IntentExecuting, domain.EventIntentResumed, func(in *domain.Intent) error {
		if in.Status != domain.IntentPaused {
			return domain.ErrNotPaused
		}
		return nil
	})
}

func (m *Manager) transitionIntent(ctx context.Context, intentID, actor string, to domain.IntentStatus, evType domain.EventType, check func(*domain.Intent) error) error {
	release, err := m.Locks.TryAcquire(intentID)
	if err != nil {
		return err
	}
	defer release()

	intent, err := m.Intents.GetByID(ctx, m.DB, intentID)
	if err != nil {
		return err
	}
	if intent.Status.IsTerminal() {
		return domain.ErrIntentTerminal
	}
	if err := check(intent); err != nil {
		return err
	}
	if !IsValidTransition(intent.Status, to) {
		return domain.ErrInvalidTransition
	}

	intent.Status = to
	intent.UpdatedAtUnix = m.now().Unix()

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ev, err := m.Recorder.AppendTx(ctx, tx, intent, evType, actor, domain.EventDetails{})
	if err != nil {
		return err
	}
	if err := m.Intents.UpdateStateTx(ctx, tx, *intent); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	m.Recorder.PublishCommitted(ctx, ev)
	return nil
}

// Complete finishes an Executing intent. The executing plan must have a run
// that passed at the intent's widest blast-radius step.
func (m *Manager) Complete(ctx context.Context, intentID, actor string) error {
	release, err := m.Locks.TryAcquire(intentID)
	if err != nil {
		return err
	}
	defer release()

	intent, err := m.Intents.GetByID(ctx, m.DB, intentID)
	if err != nil {
		return err
	}
	if intent.Status.IsTerminal() {
		return domain.ErrIntentTerminal
	}
	if intent.Status != domain.IntentExecuting {
		return domain.ErrNotExecuting
	}

	plan, run, err := m.passedAtFinalStep(ctx, intent)
	if err != nil {
		return err
	}

	now := m.now().Unix()
	plan.Status = domain.PlanCompleted
	plan.UpdatedAtUnix = now
	intent.Status = domain.IntentCompleted
	intent.UpdatedAtUnix = now

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := m.Plans.UpdateStatusTx(ctx, tx, *plan); err != nil {
		return err
	}
	ev, err := m.Recorder.AppendTx(ctx, tx, intent, domain.EventCompleted, actor, domain.EventDetails{
		PlanID:     plan.ID,
		RunID:      run.ID,
		Confidence: run.Result.Confidence,
	})
	if err != nil {
		return err
	}
	if err := m.Intents.UpdateStateTx(ctx, tx, *intent); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	m.Recorder.PublishCommitted(ctx, ev)
	m.Logger.Info("intent completed", zap.String("intent_id", intent.ID), zap.String("plan_id", plan.ID))
	return nil
}

// passedAtFinalStep finds the executing plan whose latest run passed at the
// intent's maximum blast step.
func (m *Manager) passedAtFinalStep(ctx context.Context, intent *domain.Intent) (*domain.FixPlan, *domain.Run, error) {
	plans, err := m.Plans.ListByIntentStatus(ctx, m.DB, intent.ID, domain.PlanExecuting)
	if err != nil {
		return nil, nil, err
	}
	maxStep := intent.MaxBlastStep()
	for i := range plans {
		runs, err := m.Runs.ListByPlan(ctx, m.DB, plans[i].ID)
		if err != nil {
			return nil, nil, err
		}
		for j := range runs {
			if runs[j].Status == domain.RunPassed && runs[j].TrafficPercent >= maxStep {
				return &plans[i], &runs[j], nil
			}
		}
	}
	return nil, nil, domain.ErrNotFinalStep
}

// RollbackAll reverts every non-terminal plan of the intent and marks the
// intent RolledBack. Rollback steps that still fail after retries surface as
// a rollback failure, and the failure itself is recorded on the timeline.
func (m *Manager) RollbackAll(ctx context.Context, intentID, actor, reason string) error {
	release, err := m.Locks.TryAcquire(intentID)
	if err != nil {
		return err
	}
	defer release()

	intent, err := m.Intents.GetByID(ctx, m.DB, intentID)
	if err != nil {
		return err
	}
	if intent.Status.IsTerminal() {
		return domain.ErrIntentTerminal
	}
	if !IsValidTransition(intent.Status, domain.IntentRolledBack) {
		return domain.ErrInvalidTransition
	}

	plans, err := m.Plans.ListActiveByIntent(ctx, m.DB, intentID)
	if err != nil {
		return err
	}

	now := m.now().Unix()
	var events []domain.TimelineEvent
	for i := range plans {
		plan := &plans[i]

		if plan.Status == domain.PlanExecuting {
			if err := m.Executor.RevertSteps(ctx, plan.RollbackSteps); err != nil {
				if recErr := m.recordRollbackFailure(ctx, intent, plan.ID, actor, err); recErr != nil {
					m.Logger.Error("record rollback failure", zap.Error(recErr))
				}
				return err
			}
			if err := m.Executor.SetTraffic(ctx, plan.ID, 0); err != nil {
				return err
			}
		}

		run, err := m.Runs.GetActiveByPlan(ctx, m.DB, plan.ID)
		if err != nil {
			return err
		}

		tx, err := m.DB.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if run != nil {
			run.Status = domain.RunRolledBack
			run.EndAtUnix = now
			if err := m.Runs.UpdateTx(ctx, tx, *run); err != nil {
				tx.Rollback()
				return err
			}
		}
		plan.Status = domain.PlanRolledBack
		plan.UpdatedAtUnix = now
		if err := m.Plans.UpdateStatusTx(ctx, tx, *plan); err != nil {
			tx.Rollback()
			return err
		}
		details := domain.EventDetails{PlanID: plan.ID, Reason: reason}
		if run != nil {
			details.RunID = run.ID
		}
		ev, err := m.Recorder.AppendTx(ctx, tx, intent, domain.EventAutoRollback, actor, details)
		if err != nil {
			tx.Rollback()
			return err
		}
		if err := m.Intents.UpdateStateTx(ctx, tx, *intent); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		intent.StateVersion++
		events = append(events, ev)
	}

	intent.Status = domain.IntentRolledBack
	intent.UpdatedAtUnix = now

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if len(plans) == 0 {
		// Nothing was executing; record the rollback decision itself.
		ev, err := m.Recorder.AppendTx(ctx, tx, intent, domain.EventAutoRollback, actor, domain.EventDetails{Reason: reason})
		if err != nil {
			return err
		}
		events = append(events, ev)
	}
	if err := m.Intents.UpdateStateTx(ctx, tx, *intent); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	m.Recorder.PublishCommitted(ctx, events...)
	m.Logger.Info("intent rolled back",
		zap.String("intent_id", intent.ID),
		zap.Int("plans_reverted", len(plans)),
		zap.String("reason", reason))
	return nil
}

// recordRollbackFailure appends a RollbackFailed event outside the failed
// operation's flow so the timeline shows what went wrong.
func (m *Manager) recordRollbackFailure(ctx context.Context, intent *domain.Intent, planID, actor string, cause error) error {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ev, err := m.Recorder.AppendTx(ctx, tx, intent, domain.EventRollbackFailed, actor, domain.EventDetails{
		PlanID: planID,
		Reason: cause.Error(),
	})
	if err != nil {
		return err
	}
	if err := m.Intents.UpdateStateTx(ctx, tx, *intent); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	intent.StateVersion++

	m.Recorder.PublishCommitted(ctx, ev)
	return nil
}

// Timeline returns an intent's events after sinceSeq.
func (m *Manager) Timeline(ctx context.Context, intentID string, sinceSeq int64) ([]domain.TimelineEvent, error) {
	if _, err := m.Intents.GetByID(ctx, m.DB, intentID); err != nil {
		return nil, err
	}
	return m.Recorder.ListByIntent(ctx, m.DB, intentID, sinceSeq)
}

// PlansForIntent returns the intent's plans ordered by ascending risk.
func (m *Manager) PlansForIntent(ctx context.Context, intentID string) ([]domain.FixPlan, error) {
	if _, err := m.Intents.GetByID(ctx, m.DB, intentID); err != nil {
		return nil, err
	}
	return m.Plans.ListByIntent(ctx, m.DB, intentID)
}

// NextCandidate returns the lowest-risk plan still awaiting simulation for
// the intent. Plans already rejected, rolled back, or completed never
// qualify.
func (m *Manager) NextCandidate(ctx context.Context, intentID string) (*domain.FixPlan, error) {
	if _, err := m.Intents.GetByID(ctx, m.DB, intentID); err != nil {
		return nil, err
	}
	plans, err := m.Plans.ListActiveByIntent(ctx, m.DB, intentID)
	if err != nil {
		return nil, err
	}
	next := planner.NextCandidate(plans)
	if next == nil {
		return nil, domain.ErrNoCandidatePlan
	}
	return next, nil
}

// RunsForIntent returns all runs across the intent's plans, newest first.
func (m *Manager) RunsForIntent(ctx context.Context, intentID string) ([]domain.Run, error) {
	if _, err := m.Intents.GetByID(ctx, m.DB, intentID); err != nil {
		return nil, err
	}
	return m.Runs.ListByIntent(ctx, m.DB, intentID)
}
