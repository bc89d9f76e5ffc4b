// Package domain defines the core types for the remediation orchestration engine.
package domain

// IntentStatus represents the lifecycle state of an Intent.
type IntentStatus string

const (
	IntentDraft          IntentStatus = "Draft"
	IntentProposed       IntentStatus = "Proposed"
	IntentSimulating     IntentStatus = "Simulating"
	IntentReadyToExecute IntentStatus = "ReadyToExecute"
	IntentExecuting      IntentStatus = "Executing"
	IntentPaused         IntentStatus = "Paused"
	IntentCompleted      IntentStatus = "Completed"
	IntentRolledBack     IntentStatus = "RolledBack"
)

// IsTerminal reports whether the status admits no further transitions.
func (s IntentStatus) IsTerminal() bool {
	return s == IntentCompleted || s == IntentRolledBack
}

// AuthorityMode is the degree of autonomy granted to the engine.
type AuthorityMode string

const (
	RecommendOnly        AuthorityMode = "RecommendOnly"
	RecommendThenExecute AuthorityMode = "RecommendThenExecute"
	AutoExecute          AuthorityMode = "AutoExecute"
)

// PlanStatus represents the lifecycle state of a FixPlan.
type PlanStatus string

const (
	PlanProposed   PlanStatus = "Proposed"
	PlanSimulating PlanStatus = "Simulating"
	PlanApproved   PlanStatus = "Approved"
	PlanExecuting  PlanStatus = "Executing"
	PlanRejected   PlanStatus = "Rejected"
	PlanCompleted  PlanStatus = "Completed"
	PlanRolledBack PlanStatus = "RolledBack"
)

// IsTerminal reports whether the plan can accept no further Runs.
func (s PlanStatus) IsTerminal() bool {
	return s == PlanRejected || s == PlanCompleted || s == PlanRolledBack
}

// PlanType is the enumerated kind of remediation action.
type PlanType string

const (
	TypeRollbackFlag    PlanType = "RollbackFlag"
	TypeConfigTweak     PlanType = "ConfigTweak"
	TypeExperiment      PlanType = "Experiment"
	TypeRollbackRelease PlanType = "RollbackRelease"
	TypeTrafficShift    PlanType = "TrafficShift"
)

// RunMode is the execution mode of a Run.
type RunMode string

const (
	ModeSimulation RunMode = "Simulation"
	ModeShadow     RunMode = "Shadow"
	ModeCanary     RunMode = "Canary"
	ModeABTest     RunMode = "ABTest"
	ModeRollout    RunMode = "Rollout"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunQueued     RunStatus = "Queued"
	RunRunning    RunStatus = "Running"
	RunPassed     RunStatus = "Passed"
	RunFailed     RunStatus = "Failed"
	RunRolledBack RunStatus = "RolledBack"
)

// IsTerminal reports whether the run has finished.
func (s RunStatus) IsTerminal() bool {
	return s == RunPassed || s == RunFailed || s == RunRolledBack
}

// EventType is the closed enumeration of timeline event types.
type EventType string

const (
	EventIntentCreated      EventType = "IntentCreated"
	EventDiagnosisGenerated EventType = "DiagnosisGenerated"
	EventPlanProposed       EventType = "PlanProposed"
	EventPlanRejected       EventType = "PlanRejected"
	EventSimulationApproved EventType = "SimulationApproved"
	EventSimulationPassed   EventType = "SimulationPassed"
	EventSimulationFailed   EventType = "SimulationFailed"
	EventExecuteApproved    EventType = "ExecuteApproved"
	EventRolloutStepChanged EventType = "RolloutStepChanged"
	EventGuardrailBreached  EventType = "GuardrailBreached"
	EventAutoRollback       EventType = "AutoRollback"
	EventRollbackFailed     EventType = "RollbackFailed"
	EventIntentPaused       EventType = "IntentPaused"
	EventIntentResumed      EventType = "IntentResumed"
	EventCompleted          EventType = "Completed"
)

// ActorSystem is the actor recorded for engine-initiated events.
// User-initiated events carry the caller's identity instead.
const ActorSystem = "System"

// Intent is a declared metric-improvement goal and its authority/guardrail envelope.
type Intent struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	GoalMetric      string        `json:"goal_metric"`
	GoalTargetDelta float64       `json:"goal_target_delta"`
	TimeHorizonDays int           `json:"time_horizon_days"`
	Authority       AuthorityMode `json:"authority_mode"`
	BlastRadius     []float64     `json:"blast_radius_plan"`
	Constraints     ConstraintSet `json:"constraints"`
	Status          IntentStatus  `json:"status"`
	OwnerUserID     string        `json:"owner_user_id,omitempty"`
	SourceAlertID   string        `json:"source_alert_id,omitempty"`
	StateVersion    int64         `json:"state_version"`
	LastEventSeq    int64         `json:"last_event_seq"`
	CreatedAtUnix   int64         `json:"created_at_unix"`
	UpdatedAtUnix   int64         `json:"updated_at_unix"`
}

// NextBlastStep returns the first blast-radius value strictly greater than
// the given traffic percent, or (0, false) if percent is already the maximum.
func (i *Intent) NextBlastStep(percent float64) (float64, bool) {
	for _, p := range i.BlastRadius {
		if p > percent {
			return p, true
		}
	}
	return 0, false
}

// MaxBlastStep returns the final value of the blast-radius plan.
func (i *Intent) MaxBlastStep() float64 {
	if len(i.BlastRadius) == 0 {
		return 0
	}
	return i.BlastRadius[len(i.BlastRadius)-1]
}

// Hypothesis is one ranked root-cause hypothesis within a Diagnosis.
type Hypothesis struct {
	Hypothesis string  `json:"hypothesis"`
	Evidence   string  `json:"evidence"`
	Confidence float64 `json:"confidence"`
}

// Diagnosis is a snapshot analysis result for an Intent. Immutable once created.
type Diagnosis struct {
	ID               string       `json:"id"`
	IntentID         string       `json:"intent_id"`
	Hypotheses       []Hypothesis `json:"root_cause_hypotheses"`
	SegmentsImpacted []string     `json:"segments_impacted"`
	NextQuestions    []string     `json:"recommended_next_questions"`
	GeneratedAtUnix  int64        `json:"generated_at_unix"`
}

// ImpactRange is the expected impact of a plan on the goal metric, in percent.
type ImpactRange struct {
	MinPct float64 `json:"min_pct"`
	MaxPct float64 `json:"max_pct"`
}

// FixPlan is a candidate remediation belonging to exactly one Intent.
// Immutable except for status and the Runs attached to it.
type FixPlan struct {
	ID             string      `json:"id"`
	IntentID       string      `json:"intent_id"`
	Name           string      `json:"name"`
	Type           PlanType    `json:"type"`
	ExpectedImpact ImpactRange `json:"expected_impact"`
	RiskScore      int         `json:"risk_score"`
	CostScore      int         `json:"cost_score"`
	Guardrails     []Threshold `json:"guardrails"`
	ExecutionSteps []string    `json:"execution_steps"`
	RollbackSteps  []string    `json:"rollback_steps"`
	Status         PlanStatus  `json:"status"`
	StateVersion   int64       `json:"state_version"`
	CreatedAtUnix  int64       `json:"created_at_unix"`
	UpdatedAtUnix  int64       `json:"updated_at_unix"`
}

// ResultSummary holds a Run's observed outcome.
type ResultSummary struct {
	Confidence     float64            `json:"confidence"`
	ObservedDeltas map[string]float64 `json:"observed_deltas,omitempty"`
}

// Run is one timed execution attempt of a FixPlan at a given traffic share.
// Immutable once terminal.
type Run struct {
	ID             string        `json:"id"`
	PlanID         string        `json:"fix_plan_id"`
	Mode           RunMode       `json:"mode"`
	TrafficPercent float64       `json:"traffic_percent"`
	Status         RunStatus     `json:"status"`
	PassStreak     int           `json:"pass_streak"`
	Result         ResultSummary `json:"result_summary"`
	StartAtUnix    int64         `json:"start_at_unix"`
	EndAtUnix      int64         `json:"end_at_unix,omitempty"`
	CreatedAtUnix  int64         `json:"created_at_unix"`
}

// EventDetails is the closed set of structured fields a timeline event may
// carry. Every field identifies the affected entity or records decision
// context, so subscribers can invalidate exactly the read views the event
// touched.
type EventDetails struct {
	PlanID          string   `json:"plan_id,omitempty"`
	RunID           string   `json:"run_id,omitempty"`
	Mode            RunMode  `json:"mode,omitempty"`
	TrafficPercent  float64  `json:"traffic_percent,omitempty"`
	BreachedKeys    []string `json:"breached_keys,omitempty"`
	Source          string   `json:"source,omitempty"`
	HypothesesCount int      `json:"hypotheses_count,omitempty"`
	PlansCount      int      `json:"plans_count,omitempty"`
	Confidence      float64  `json:"confidence,omitempty"`
	Reason          string   `json:"reason,omitempty"`
}

// TimelineEvent is an immutable, ordered audit record of a lifecycle
// transition. Total order per intent is (intent_id, seq_no); seq_no comes
// from the intent's monotonic sequence counter because timestamps can collide.
type TimelineEvent struct {
	ID            string       `json:"id"`
	IntentID      string       `json:"intent_id"`
	SeqNo         int64        `json:"seq_no"`
	Type          EventType    `json:"event_type"`
	Actor         string       `json:"actor"`
	Details       EventDetails `json:"details"`
	CreatedAtUnix int64        `json:"created_at_unix"`
}

// MetricSnapshot is a point-in-time set of observed metric values keyed by
// metric name, delivered by the metric feed.
type MetricSnapshot struct {
	Values         map[string]float64 `json:"values"`
	ObservedAtUnix int64              `json:"observed_at_unix"`
}

// Verdict is the outcome of a guardrail evaluation.
type Verdict string

const (
	VerdictPass   Verdict = "Pass"
	VerdictBreach Verdict = "Breach"
)

// EvalResult is the result of evaluating a snapshot against thresholds.
type EvalResult struct {
	Verdict      Verdict  `json:"verdict"`
	BreachedKeys []string `json:"breached_keys,omitempty"`
}

// PlanDecision is reported by the plan manager when a plan reaches a decision
// point the intent lifecycle must react to.
type PlanDecision struct {
	IntentID       string
	PlanID         string
	PlanStatus     PlanStatus
	RunStatus      RunStatus
	TrafficPercent float64
	FinalStep      bool
}

// AlertType classifies the regression that raised an alert.
type AlertType string

const (
	AlertMetricDrop           AlertType = "MetricDrop"
	AlertMetricSpike          AlertType = "MetricSpike"
	AlertFunnelStepRegression AlertType = "FunnelStepRegression"
	AlertLatencyRegression    AlertType = "LatencyRegression"
	AlertErrorSpike           AlertType = "ErrorSpike"
)

// AlertSeverity grades an alert.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "Low"
	SeverityMedium   AlertSeverity = "Medium"
	SeverityHigh     AlertSeverity = "High"
	SeverityCritical AlertSeverity = "Critical"
)

// AlertStatus is the triage state of an alert.
type AlertStatus string

const (
	AlertOpen         AlertStatus = "Open"
	AlertAcknowledged AlertStatus = "Acknowledged"
	AlertResolved     AlertStatus = "Resolved"
)

// Alert is a detected metric regression that may seed an Intent.
type Alert struct {
	ID              string        `json:"id"`
	Type            AlertType     `json:"type"`
	MetricName      string        `json:"metric_name"`
	Severity        AlertSeverity `json:"severity"`
	BaselineWindow  string        `json:"baseline_window"`
	CurrentValue    float64       `json:"current_value"`
	BaselineValue   float64       `json:"baseline_value"`
	Delta           float64       `json:"delta"`
	SuspectedChange string        `json:"suspected_change,omitempty"`
	Status          AlertStatus   `json:"status"`
	DetectedAtUnix  int64         `json:"detected_at_unix"`
	CreatedAtUnix   int64         `json:"created_at_unix"`
}
