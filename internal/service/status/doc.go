// Package status runs the provision-status gRPC server, which re-reads the
// run report on an interval and publishes its outcome through the health
// service.
package status
