package status

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	domain "github.com/oshokin/rust-provisioner/internal/domain/provision"
	repository "github.com/oshokin/rust-provisioner/internal/repository/report"
)

// ServiceName is the health service name that reports the provisioning outcome.
const ServiceName = "provisioner"

// Source provides the latest run report.
type Source interface {
	Load(ctx context.Context) (*domain.Report, error)
}

// Server publishes report outcomes as health statuses.
type Server struct {
	// health is the stock health service implementation.
	health *health.Server
	// source is where reports are read from on every refresh.
	source Source
}

// NewServer creates a Server reading reports from source. Until the first
// Refresh every service reports NOT_SERVING.
func NewServer(source Source) *Server {
	s := &Server{
		health: health.NewServer(),
		source: source,
	}

	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)

	return s
}

// Register attaches the health service to a gRPC server.
func (s *Server) Register(registrar grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(registrar, s.health)
}

// Refresh reloads the report and updates the published status.
// A missing report is not an error; it is published as NOT_SERVING.
func (s *Server) Refresh(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	report, err := s.source.Load(ctx)

	switch {
	case errors.Is(err, repository.ErrNotFound):
		report = nil
	case err != nil:
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("load report: %w", err)
	}

	servingStatus := StatusFor(report)
	s.setStatus(servingStatus)

	return servingStatus, nil
}

// Shutdown sets every service to NOT_SERVING and ignores later updates.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

// StatusFor maps a report to a health status.
func StatusFor(report *domain.Report) healthpb.HealthCheckResponse_ServingStatus {
	if report != nil && report.Succeeded {
		return healthpb.HealthCheckResponse_SERVING
	}

	return healthpb.HealthCheckResponse_NOT_SERVING
}

// setStatus publishes the status for the provisioner and the overall server.
func (s *Server) setStatus(servingStatus healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus(ServiceName, servingStatus)
	s.health.SetServingStatus("", servingStatus)
}
