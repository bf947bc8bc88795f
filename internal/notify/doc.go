// Package notify prints the operator-facing lines of a run: the privilege
// instruction, warnings, the success banner and the final failure. Structured
// diagnostics go through package logger instead.
package notify
