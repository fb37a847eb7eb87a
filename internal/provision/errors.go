package provision

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStepFailed matches a RunError with at least one failed step.
var ErrStepFailed = errors.New("provisioning step failed")

// StepError wraps the failure of one step.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// RunError is returned by Provisioner.Run when at least one step failed or
// the run was interrupted.
type RunError struct {
	// Failed names the failed steps in execution order.
	Failed []string

	// First is the first step failure.
	First *StepError

	// Interrupted is the context error when the run was cancelled.
	Interrupted error
}

func (e *RunError) Error() string {
	var b strings.Builder
	if e.Interrupted != nil {
		fmt.Fprintf(&b, "provisioning interrupted (%v)", e.Interrupted)
		if len(e.Failed) > 0 {
			b.WriteString("; ")
		}
	}
	if len(e.Failed) > 0 {
		fmt.Fprintf(&b, "%d step(s) failed: %s", len(e.Failed), strings.Join(e.Failed, ", "))
	}
	if e.First != nil {
		fmt.Fprintf(&b, " (%s: %v)", e.First.Step, e.First.Err)
	}
	return b.String()
}

// Unwrap exposes ErrStepFailed, the first step failure and the context
// error to errors.Is and errors.As. An interruption before any step failed
// does not match ErrStepFailed.
func (e *RunError) Unwrap() []error {
	var errs []error
	if len(e.Failed) > 0 {
		errs = append(errs, ErrStepFailed)
	}
	if e.First != nil {
		errs = append(errs, e.First)
	}
	if e.Interrupted != nil {
		errs = append(errs, e.Interrupted)
	}
	return errs
}
