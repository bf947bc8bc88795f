// Package integration holds end-to-end tests that start the real status
// server on loopback and drive the binaries' entry points.
package integration
