// Package status exposes the outcome of the latest provisioning run through
// the standard gRPC health service (grpc.health.v1.Health).
//
// The "provisioner" service is SERVING once a successful report exists and
// NOT_SERVING while no report exists or the last run failed.
package status
