package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed classification of engine errors. It decides both
// the caller-facing status and the retry policy: validation and precondition
// failures are never retried, conflicts may be retried after observing
// current state, provider failures follow the bounded-retry path, and
// rollback failures demand operator attention.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindPrecondition   ErrorKind = "precondition"
	KindConflict       ErrorKind = "conflict"
	KindNotFound       ErrorKind = "not_found"
	KindProvider       ErrorKind = "provider"
	KindRollbackFailed ErrorKind = "rollback_failed"
	KindInternal       ErrorKind = "internal"
)

// EngineError is the unified error type for the engine.
type EngineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is matches engine errors by kind, so sentinel comparisons like
// errors.Is(err, ErrActiveRunExists) work on wrapped errors of the same kind
// and message.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// NewValidationError creates a validation-kind error.
func NewValidationError(msg string) *EngineError {
	return &EngineError{Kind: KindValidation, Message: msg}
}

// NewPreconditionError creates a precondition-kind error.
func NewPreconditionError(msg string) *EngineError {
	return &EngineError{Kind: KindPrecondition, Message: msg}
}

// WrapProviderError wraps an external provider/connector failure.
func WrapProviderError(msg string, cause error) *EngineError {
	return &EngineError{Kind: KindProvider, Message: msg, Err: cause}
}

// WrapRollbackFailed wraps a failed rollback step. Never retried
// automatically: further automatic action could compound the damage.
func WrapRollbackFailed(msg string, cause error) *EngineError {
	return &EngineError{Kind: KindRollbackFailed, Message: msg, Err: cause}
}

// KindOf returns the error kind of err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindInternal
}

// IsConflict reports whether err is a conflict-kind engine error.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsValidation reports whether err is a validation-kind engine error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsPrecondition reports whether err is a precondition-kind engine error.
func IsPrecondition(err error) bool { return KindOf(err) == KindPrecondition }

// IsNotFound reports whether err is a not-found engine error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// ---- Lifecycle / state machine ----

var (
	ErrIntentNotFound    = &EngineError{Kind: KindNotFound, Message: "intent not found"}
	ErrIntentTerminal    = &EngineError{Kind: KindPrecondition, Message: "intent is in a terminal state"}
	ErrInvalidTransition = &EngineError{Kind: KindPrecondition, Message: "invalid status transition"}
	ErrNoDiagnosis       = &EngineError{Kind: KindPrecondition, Message: "intent has no diagnosis"}
	ErrNotExecuting      = &EngineError{Kind: KindPrecondition, Message: "intent is not executing"}
	ErrNotPaused         = &EngineError{Kind: KindPrecondition, Message: "intent is not paused"}
	ErrHorizonExceeded   = &EngineError{Kind: KindPrecondition, Message: "intent time horizon exceeded"}
)

// ---- Plans and runs ----

var (
	ErrPlanNotFound    = &EngineError{Kind: KindNotFound, Message: "fix plan not found"}
	ErrPlanTerminal    = &EngineError{Kind: KindPrecondition, Message: "fix plan is in a terminal state"}
	ErrRunNotFound     = &EngineError{Kind: KindNotFound, Message: "run not found"}
	ErrRunTerminal     = &EngineError{Kind: KindPrecondition, Message: "run is in a terminal state"}
	ErrActiveRunExists = &EngineError{Kind: KindConflict, Message: "fix plan already has a non-terminal run"}
	ErrNotFinalStep    = &EngineError{Kind: KindPrecondition, Message: "active run has not passed at full traffic"}
	ErrDuplicateIntent = &EngineError{Kind: KindConflict, Message: "intent already exists"}
	ErrNoCandidatePlan = &EngineError{Kind: KindNotFound, Message: "no candidate plan awaits simulation"}
)

// ---- Concurrency ----

var (
	ErrEntityBusy     = &EngineError{Kind: KindConflict, Message: "another operation is in flight for this entity"}
	ErrOptimisticLock = &EngineError{Kind: KindConflict, Message: "state was modified concurrently"}
)

// ---- Providers and connectors ----

var (
	ErrProviderTimeout      = &EngineError{Kind: KindProvider, Message: "provider call timed out"}
	ErrConnectorUnavailable = &EngineError{Kind: KindProvider, Message: "no connector registered for action"}
)

// ---- Alerts ----

var ErrAlertNotFound = &EngineError{Kind: KindNotFound, Message: "alert not found"}
