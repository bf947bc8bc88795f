package provision

import "time"

// Step identifies one stage of the provisioning sequence.
type Step string

// Steps in execution order.
const (
	StepPrivileges   Step = "check-privileges"
	StepDownloadTool Step = "ensure-download-tool"
	StepPackages     Step = "install-packages"
	StepToolchain    Step = "install-toolchain"
	StepReloadEnv    Step = "reload-environment"
	StepVerify       Step = "verify-toolchain"
)

// Steps returns the provisioning sequence in execution order.
func Steps() []Step {
	return []Step{
		StepPrivileges,
		StepDownloadTool,
		StepPackages,
		StepToolchain,
		StepReloadEnv,
		StepVerify,
	}
}

// Status is the outcome of a single step.
type Status string

const (
	// StatusSucceeded means the step did its work.
	StatusSucceeded Status = "succeeded"
	// StatusSkipped means there was nothing to do, e.g. curl already installed.
	StatusSkipped Status = "skipped"
	// StatusWarned means the step failed but the failure is not fatal.
	StatusWarned Status = "warned"
	// StatusFailed means the step failed and the run stops.
	StatusFailed Status = "failed"
)

// StepResult records what happened in one step.
type StepResult struct {
	// Step is the stage this result belongs to.
	Step Step
	// Status is the outcome.
	Status Status
	// Err is set for failed and warned steps.
	Err error
	// StartedAt is when the step began.
	StartedAt time.Time
	// Duration is how long the step took.
	Duration time.Duration
	// Detail is free-form output worth keeping, such as the toolchain version.
	Detail string
}

// Fatal reports whether the result stops the sequence.
func (r *StepResult) Fatal() bool {
	return r.Status == StatusFailed
}
