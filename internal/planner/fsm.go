// Package planner builds candidate fix plans from a diagnosis and defines
// the plan state machine.
package planner

import (
	"github.com/observeo/remedy-engine/internal/domain"
)

// validTransitions defines the legal plan status transitions.
// Each key is a source status, and the value is the set of valid targets.
var validTransitions = map[domain.PlanStatus]map[domain.PlanStatus]bool{
	domain.PlanProposed: {
		domain.PlanSimulating: true,
		domain.PlanExecuting:  true, // direct canary without simulation
		domain.PlanRejected:   true,
	},
	domain.PlanSimulating: {
		domain.PlanApproved:  true,
		domain.PlanProposed:  true, // simulation failed, plan stays available
		domain.PlanExecuting: true, // canary while simulation evidence is fresh
		domain.PlanRejected:  true,
	},
	domain.PlanApproved: {
		domain.PlanExecuting: true,
		domain.PlanRejected:  true,
	},
	domain.PlanExecuting: {
		domain.PlanCompleted:  true,
		domain.PlanRolledBack: true,
	},
}

// IsValidTransition checks if a plan status transition is legal.
func IsValidTransition(from, to domain.PlanStatus) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// CanStartRun reports whether a run in the given mode may start from the
// plan's current status. Simulation only starts from Proposed; live modes
// start from Proposed, Simulating, or Approved.
func CanStartRun(status domain.PlanStatus, mode domain.RunMode) bool {
	if mode == domain.ModeSimulation {
		return status == domain.PlanProposed
	}
	return status == domain.PlanProposed ||
		status == domain.PlanSimulating ||
		status == domain.PlanApproved
}

// NextCandidate returns the lowest-risk plan still in Proposed status, or
// nil when no candidate remains. plans must be ordered by ascending risk,
// which is how the store lists them.
func NextCandidate(plans []domain.FixPlan) *domain.FixPlan {
	for i := range plans {
		if plans[i].Status == domain.PlanProposed {
			return &plans[i]
		}
	}
	return nil
}
