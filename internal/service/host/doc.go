// Package host implements the provisioner capabilities against the real
// operating system: privilege detection, PATH lookups, apt-get, the remote
// installer download and the shell environment reload.
//
// Every external command inherits the caller's context, so SIGINT/SIGTERM
// reach apt-get and the installer, but no timeouts are applied.
package host
