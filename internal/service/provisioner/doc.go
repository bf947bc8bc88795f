// Package provisioner runs the fixed provisioning sequence: privilege check,
// download tool, system packages, toolchain installer, environment reload and
// verification.
//
// The machine is reached only through the Host interface, so the sequence is
// exercised with fakes in tests. Each step produces a StepResult and the
// sequence stops at the first fatal one; only the environment reload degrades
// to a warning.
package provisioner
