package lifecycle

import (
	"github.com/observeo/remedy-engine/internal/domain"
)

// AllowExecution decides whether a live (non-simulation) run may start under
// the intent's authority mode. Simulation runs are never gated here.
//
//   - RecommendOnly: the engine only proposes; live execution is refused for
//     every actor.
//   - RecommendThenExecute: a person must approve; the system actor alone
//     cannot start live execution.
//   - AutoExecute: any actor, including the system, may start execution.
func AllowExecution(mode domain.AuthorityMode, actor string) error {
	switch mode {
	case domain.RecommendOnly:
		return domain.NewPreconditionError("intent authority is recommend-only; live execution is disabled")
	case domain.RecommendThenExecute:
		if actor == domain.ActorSystem {
			return domain.NewPreconditionError("intent requires a user to approve execution")
		}
		return nil
	case domain.AutoExecute:
		return nil
	default:
		return domain.NewValidationError("unknown authority mode: " + string(mode))
	}
}
