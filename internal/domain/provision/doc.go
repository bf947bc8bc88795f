// Package provision contains the core domain types of a provisioning run.
//
// It defines the ordered Steps, the StepResult produced by each of them,
// the error taxonomy surfaced to operators and the Report persisted after
// every run.
package provision
