package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/wpforge-dev/wpforge/internal/providers"
	"github.com/wpforge-dev/wpforge/internal/tools"
)

type Phase string

const (
	PhaseSpecification Phase = "specification"
	PhaseGeneration    Phase = "generation"
	PhaseCompliance    Phase = "compliance"
	PhaseTesting       Phase = "testing"
	PhaseReporting     Phase = "reporting"
)

// Phases returns the pipeline order.
func Phases() []Phase {
	return []Phase{PhaseSpecification, PhaseGeneration, PhaseCompliance, PhaseTesting, PhaseReporting}
}

// ErrUserCancelled marks a run stopped through its context, typically Ctrl-C.
var ErrUserCancelled = errors.New("user cancelled run")

// asCancellation rewrites context.Canceled into ErrUserCancelled so the rest
// of the package deals in one sentinel for an interrupted run. A --timeout
// expiry (DeadlineExceeded) is a failure, not a cancellation, and passes
// through untouched.
func asCancellation(err error) error {
	if errors.Is(err, context.Canceled) {
		return ErrUserCancelled
	}
	return err
}

// checkCancelled is the gate the orchestrator consults between phases and
// before packaging.
func checkCancelled(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return asCancellation(ctx.Err())
}

// IsUserCancelled reports whether err means the user stopped the run.
func IsUserCancelled(err error) bool {
	return errors.Is(asCancellation(err), ErrUserCancelled)
}

// PhaseError is the terminal error of one phase, carrying how many attempts
// the orchestrator spent before giving up.
type PhaseError struct {
	Phase     Phase
	Attempts  int
	Retryable bool
	Err       error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s phase failed after %d attempt(s): %v", e.Phase, e.Attempts, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// retryable reports whether a fresh attempt could plausibly end differently.
// Cancellation, auth failures, unknown tools, and workspace escapes cannot;
// malformed output can, because a retry carries a stricter format reminder.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserCancelled) || errors.Is(err, context.Canceled) {
		return false
	}
	var authErr *providers.ProviderAuthError
	if errors.As(err, &authErr) {
		return false
	}
	if errors.Is(err, tools.ErrUnknownTool) || tools.IsKind(err, tools.KindPathEscape) {
		return false
	}
	return true
}
