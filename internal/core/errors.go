package core

import (
	"errors"
	"fmt"
)

var (
	// ErrFunctionNotFound means the registry has no matching script, or the
	// script is not published when publication is required. Fatal, no retry.
	ErrFunctionNotFound = errors.New("function not found")

	// ErrExecutionTimeout marks a session that exhausted its wall-clock
	// budget. Reported inside the ExecutionResult, not as a Go error.
	ErrExecutionTimeout = errors.New("script execution timed out")

	// ErrInsufficientFunds is returned by SubtractCurrency when the balance
	// is lower than the requested amount. No mutation is performed.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrPlayerNotFound means the target player has no profile.
	ErrPlayerNotFound = errors.New("player not found")

	// ErrNoTargetPlayer means a bridge call had no explicit target and the
	// invocation carries no player identity (developer test call).
	ErrNoTargetPlayer = errors.New("no target player for bridge call")
)

// SetupError marks engine-level failures: the sandbox could not be allocated
// or the engine is miswired. Distinct from guest-code failures, which are
// always reported inside an ExecutionResult. Callers may retry with backoff.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string { return "engine setup: " + e.Err.Error() }

func (e *SetupError) Unwrap() error { return e.Err }

// Setupf wraps a formatted error as a SetupError.
func Setupf(format string, args ...any) error {
	return &SetupError{Err: fmt.Errorf(format, args...)}
}
