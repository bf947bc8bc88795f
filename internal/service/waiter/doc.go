// Package waiter blocks until the provision-status server reports a
// successful provisioning run. It lets container entrypoints and CI jobs wait
// for a host to be ready.
package waiter
