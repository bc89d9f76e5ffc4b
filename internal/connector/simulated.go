package connector

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/observeo/remedy-engine/internal/domain"
)

// SimulatedFlagService is an in-memory feature flag connector for local
// development and tests. Rollout percentages and applied steps are recorded
// so assertions can inspect them.
type SimulatedFlagService struct {
	mu       sync.Mutex
	rollouts map[string]float64
	applied  []string
	reverted []string

	// FailStep, when set, makes ApplyStep and RevertStep fail for a matching
	// step. Used to exercise retry and rollback-failure paths.
	FailStep func(step string) error
}

// NewSimulatedFlagService creates a flag connector with no rollouts set.
func NewSimulatedFlagService() *SimulatedFlagService {
	return &SimulatedFlagService{rollouts: make(map[string]float64)}
}

func (s *SimulatedFlagService) Name() string { return "flags" }

func (s *SimulatedFlagService) ApplyStep(_ context.Context, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailStep != nil {
		if err := s.FailStep(step); err != nil {
			return err
		}
	}
	s.applied = append(s.applied, step)
	return nil
}

func (s *SimulatedFlagService) SetRollout(_ context.Context, target string, percent float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollouts[target] = percent
	return nil
}

func (s *SimulatedFlagService) RevertStep(_ context.Context, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailStep != nil {
		if err := s.FailStep(step); err != nil {
			return err
		}
	}
	s.reverted = append(s.reverted, step)
	return nil
}

// Rollout returns the current rollout percentage for a target.
func (s *SimulatedFlagService) Rollout(target string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollouts[target]
}

// AppliedSteps returns a copy of the steps applied so far, in order.
func (s *SimulatedFlagService) AppliedSteps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.applied...)
}

// RevertedSteps returns a copy of the steps reverted so far, in order.
func (s *SimulatedFlagService) RevertedSteps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reverted...)
}

// SimulatedMetricFeed serves metric values from an in-memory map. Values can
// be changed at any time to model a regression appearing or clearing.
type SimulatedMetricFeed struct {
	mu     sync.Mutex
	values map[string]float64
	now    func() time.Time
}

// NewSimulatedMetricFeed creates a feed seeded with the given values.
func NewSimulatedMetricFeed(values map[string]float64) *SimulatedMetricFeed {
	seeded := make(map[string]float64, len(values))
	for k, v := range values {
		seeded[k] = v
	}
	return &SimulatedMetricFeed{values: seeded, now: time.Now}
}

// Set updates one metric value.
func (f *SimulatedMetricFeed) Set(metric string, value float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[metric] = value
}

// Delete removes a metric, which the evaluator treats as a breach.
func (f *SimulatedMetricFeed) Delete(metric string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, metric)
}

func (f *SimulatedMetricFeed) Snapshot(_ context.Context, metrics []string) (domain.MetricSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := domain.MetricSnapshot{
		Values:         make(map[string]float64, len(metrics)),
		ObservedAtUnix: f.now().Unix(),
	}
	for _, m := range metrics {
		if v, ok := f.values[m]; ok {
			snap.Values[m] = v
		}
	}
	return snap, nil
}

// SimulatedDiagnosisProvider produces a deterministic root-cause analysis
// from the intent's goal metric. It stands in for a real analysis backend in
// local development.
type SimulatedDiagnosisProvider struct {
	// Delay models provider latency; the engine's timeout applies to it.
	Delay time.Duration
}

func (p *SimulatedDiagnosisProvider) Diagnose(ctx context.Context, intent domain.Intent) (domain.Diagnosis, error) {
	if p.Delay > 0 {
		select {
		case <-ctx.Done():
			return domain.Diagnosis{}, ctx.Err()
		case <-time.After(p.Delay):
		}
	}

	metric := intent.GoalMetric
	hypotheses := []domain.Hypothesis{
		{
			Hypothesis: "Recent feature flag ramp coincides with the " + metric + " regression",
			Evidence:   "Flag gradual_onboarding_v2 reached 50% rollout two hours before the drop began",
			Confidence: 0.72,
		},
		{
			Hypothesis: "Checkout latency increase is suppressing " + metric,
			Evidence:   "p95 latency on /checkout rose 40ms over the same window",
			Confidence: 0.55,
		},
		{
			Hypothesis: "Payment provider error rate is filtering out completions",
			Evidence:   "Provider 5xx rate doubled against a flat traffic baseline",
			Confidence: 0.31,
		},
	}
	if strings.Contains(metric, "latency") {
		hypotheses[0], hypotheses[1] = hypotheses[1], hypotheses[0]
	}

	return domain.Diagnosis{
		ID:         uuid.NewString(),
		IntentID:   intent.ID,
		Hypotheses: hypotheses,
		SegmentsImpacted: []string{
			"mobile_web",
			"returning_users",
		},
		NextQuestions: []string{
			"Did the flag ramp change the onboarding funnel for returning users?",
			"Is the latency increase isolated to one payment provider?",
		},
		GeneratedAtUnix: time.Now().Unix(),
	}, nil
}
