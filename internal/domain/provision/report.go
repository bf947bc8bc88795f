package provision

import (
	"slices"
	"time"
)

// Report is the outcome of one provisioning run.
type Report struct {
	// StartedAt is when the run began.
	StartedAt time.Time
	// FinishedAt is when the run ended.
	FinishedAt time.Time
	// Hostname is the machine that was provisioned.
	Hostname string
	// Succeeded is true when every step passed (warnings allowed).
	Succeeded bool
	// FailedStep is the step that stopped the run, if any.
	FailedStep Step
	// ErrorKind is the KindName of the failure, if any.
	ErrorKind string
	// Error is the failure message, if any.
	Error string
	// ToolchainVersion is the verified compiler version.
	ToolchainVersion string
	// Steps are the results in execution order. Steps never reached are absent.
	Steps []StepResult
}

// NewReport starts a report at the given time.
func NewReport(hostname string, startedAt time.Time) *Report {
	return &Report{
		StartedAt: startedAt,
		Hostname:  hostname,
		Steps:     make([]StepResult, 0, len(Steps())),
	}
}

// Record appends a step result and updates the failure fields for fatal results.
func (r *Report) Record(result StepResult) {
	r.Steps = append(r.Steps, result)

	if !result.Fatal() {
		return
	}

	r.FailedStep = result.Step
	r.ErrorKind = KindName(result.Err)

	if result.Err != nil {
		r.Error = result.Err.Error()
	}
}

// Finish closes the report and computes Succeeded.
func (r *Report) Finish(finishedAt time.Time) {
	r.FinishedAt = finishedAt
	r.Succeeded = r.FailedStep == "" && len(r.Steps) == len(Steps())
}

// Result returns the result of the given step and whether it was reached.
func (r *Report) Result(step Step) (StepResult, bool) {
	i := slices.IndexFunc(r.Steps, func(res StepResult) bool {
		return res.Step == step
	})
	if i < 0 {
		return StepResult{}, false
	}

	return r.Steps[i], true
}

// Clone returns a copy of the report to avoid leaking internal references.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}

	cloned := *r
	cloned.Steps = slices.Clone(r.Steps)

	return &cloned
}
