package provision

import (
	"errors"
	"fmt"
)

// Error kinds. Each matches exactly one step and is detectable with errors.Is.
var (
	// ErrPermission means the process is not running with root privileges.
	ErrPermission = errors.New("permission error")
	// ErrDependencyInstall means apt-get could not install a package.
	ErrDependencyInstall = errors.New("dependency install error")
	// ErrToolchainInstall means the toolchain installer could not be fetched or failed.
	ErrToolchainInstall = errors.New("toolchain install error")
	// ErrVerification means the toolchain binary is not invocable after installation.
	ErrVerification = errors.New("verification error")
)

// StepError is the failure of a step, carrying its kind and the underlying cause.
type StepError struct {
	// Step is where the failure happened.
	Step Step
	// Kind is one of the Err* sentinels.
	Kind error
	// Err is the underlying cause and may be nil.
	Err error
}

// NewStepError builds a StepError.
func NewStepError(step Step, kind, cause error) *StepError {
	return &StepError{
		Step: step,
		Kind: kind,
		Err:  cause,
	}
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Step, e.Kind)
	}

	return fmt.Sprintf("%s: %v: %v", e.Step, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *StepError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// KindName returns the operator-facing name of the error kind of err,
// or an empty string when err is not a provisioning failure.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermission):
		return "PermissionError"
	case errors.Is(err, ErrDependencyInstall):
		return "DependencyInstallError"
	case errors.Is(err, ErrToolchainInstall):
		return "ToolchainInstallError"
	case errors.Is(err, ErrVerification):
		return "VerificationError"
	default:
		return ""
	}
}
