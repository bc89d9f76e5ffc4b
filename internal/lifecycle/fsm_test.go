package lifecycle

import (
	"testing"

	"github.com/observeo/remedy-engine/internal/domain"
)

func TestIsValidTransition(t *testing.T) {
	cases := []struct {
		from, to domain.IntentStatus
		want     bool
	}{
		{domain.IntentDraft, domain.IntentProposed, true},
		{domain.IntentProposed, domain.IntentSimulating, true},
		{domain.IntentProposed, domain.IntentExecuting, true},
		{domain.IntentSimulating, domain.IntentReadyToExecute, true},
		{domain.IntentSimulating, domain.IntentProposed, true},
		{domain.IntentReadyToExecute, domain.IntentExecuting, true},
		{domain.IntentExecuting, domain.IntentPaused, true},
		{domain.IntentPaused, domain.IntentExecuting, true},
		{domain.IntentExecuting, domain.IntentCompleted, true},
		{domain.IntentExecuting, domain.IntentRolledBack, true},
		{domain.IntentDraft, domain.IntentExecuting, false},
		{domain.IntentDraft, domain.IntentCompleted, false},
		{domain.IntentCompleted, domain.IntentExecuting, false},
		{domain.IntentRolledBack, domain.IntentProposed, false},
		{domain.IntentPaused, domain.IntentCompleted, false},
	}
	for _, c := range cases {
		if got := IsValidTransition(c.from, c.to); got != c.want {
			t.Errorf("IsValidTransition(%q, %q) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, terminal := range []domain.IntentStatus{domain.IntentCompleted, domain.IntentRolledBack} {
		if targets, ok := validTransitions[terminal]; ok && len(targets) > 0 {
			t.Errorf("terminal status %q has exits: %v", terminal, targets)
		}
	}
}
