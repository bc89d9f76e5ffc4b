// Package lifecycle manages intents end to end: creation, diagnosis, plan
// generation, execution gating, pause/resume, and rollback. All state
// mutations go through a single transaction that also appends the matching
// timeline event.
package lifecycle

import (
	"github.com/observeo/remedy-engine/internal/domain"
)

// validTransitions defines the legal intent status transitions.
// Each key is a source status, and the value is the set of valid targets.
var validTransitions = map[domain.IntentStatus]map[domain.IntentStatus]bool{
	domain.IntentDraft: {
		domain.IntentProposed: true,
	},
	domain.IntentProposed: {
		domain.IntentSimulating: true,
		domain.IntentExecuting:  true,
		domain.IntentRolledBack: true,
	},
	domain.IntentSimulating: {
		domain.IntentProposed:       true, // simulation failed
		domain.IntentReadyToExecute: true,
		domain.IntentExecuting:      true,
		domain.IntentRolledBack:     true,
	},
	domain.IntentReadyToExecute: {
		domain.IntentSimulating: true, // simulate an alternative plan
		domain.IntentExecuting:  true,
		domain.IntentRolledBack: true,
	},
	domain.IntentExecuting: {
		domain.IntentPaused:     true,
		domain.IntentCompleted:  true,
		domain.IntentRolledBack: true,
	},
	domain.IntentPaused: {
		domain.IntentExecuting:  true, // resume
		domain.IntentRolledBack: true,
	},
}

// IsValidTransition checks if an intent status transition is legal.
func IsValidTransition(from, to domain.IntentStatus) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}
