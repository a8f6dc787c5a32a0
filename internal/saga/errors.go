package saga

import (
	"errors"
	"fmt"

	"github.com/roach88/planbuilder/internal/remote"
)

// RunErrorCode categorizes run failures.
type RunErrorCode string

const (
	// ErrCodeStepFailed means a step's remote call returned an error.
	ErrCodeStepFailed RunErrorCode = "STEP_FAILED"

	// ErrCodeBuildFailed means a step could not build its request.
	ErrCodeBuildFailed RunErrorCode = "BUILD_FAILED"

	// ErrCodeStopped means the engine stopped before the run finished.
	ErrCodeStopped RunErrorCode = "ENGINE_STOPPED"
)

// RunError describes why a run aborted.
type RunError struct {
	Code  RunErrorCode
	Token string
	Step  string
	Op    remote.Op
	Err   error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	msg := fmt.Sprintf("%s (run=%s", e.Code, e.Token)
	if e.Step != "" {
		msg += ", step=" + e.Step
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error {
	return e.Err
}

// IsStepFailure reports whether err is a RunError for a failed remote call.
func IsStepFailure(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStepFailed
	}
	return false
}

// ErrEngineStopped is returned by Start once the engine has shut down.
var ErrEngineStopped = errors.New("saga engine stopped")

// ErrInvalidRun is wrapped by NewRun and NewCascadeDelete validation errors.
var ErrInvalidRun = errors.New("invalid saga run")
