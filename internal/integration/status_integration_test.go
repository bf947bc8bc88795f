package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "github.com/oshokin/rust-provisioner/internal/api/grpc/status"
	domain "github.com/oshokin/rust-provisioner/internal/domain/provision"
	repository "github.com/oshokin/rust-provisioner/internal/repository/report"
	"github.com/oshokin/rust-provisioner/internal/service/common"
	"github.com/oshokin/rust-provisioner/internal/service/status"
)

// refreshInterval keeps status changes visible quickly in tests.
const refreshInterval = 20 * time.Millisecond

// startStatus starts a status server on a free loopback port reading reportPath.
// Returns the bound address and a stop function that waits for shutdown.
func startStatus(t *testing.T, reportPath string) (addr string, stop func()) {
	t.Helper()

	// Create cancellable context for server lifecycle.
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	cfgPath := filepath.Join(t.TempDir(), "missing.yaml")

	go func() {
		options := &status.Options{
			ConfigPath:      cfgPath,
			ListenAddress:   "127.0.0.1:0",
			ReportFile:      reportPath,
			RefreshInterval: refreshInterval,
			Ready: func(address string) {
				ready <- address
			},
		}

		done <- status.Run(ctx, options)
	}()

	select {
	case addr = <-ready:
	case err := <-done:
		cancel()
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("status server did not start")
	}

	return addr, func() {
		cancel()
		require.NoError(t, <-done)
	}
}

// successfulReport returns a report with every step succeeded.
func successfulReport() *domain.Report {
	report := domain.NewReport("test-host", time.Now())
	for _, step := range domain.Steps() {
		report.Record(domain.StepResult{Step: step, Status: domain.StatusSucceeded})
	}

	report.ToolchainVersion = "rustc 1.90.0"
	report.Finish(time.Now())

	return report
}

// TestStatus_ReflectsReport starts the real server and follows report changes over gRPC.
func TestStatus_ReflectsReport(t *testing.T) {
	t.Parallel()

	reportPath := filepath.Join(t.TempDir(), "report.json")

	addr, stop := startStatus(t, reportPath)
	defer stop()

	ctx := context.Background()

	c, err := common.Dial(ctx, addr, common.WithCallTimeout(3*time.Second))
	require.NoError(t, err)

	defer func() {
		_ = c.Close()
	}()

	// No report yet.
	got, err := c.Check(ctx, api.ServiceName)
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, got)

	repo := repository.NewFileRepository(reportPath)

	// Failed run.
	failed := domain.NewReport("test-host", time.Now())
	failed.Record(domain.StepResult{
		Step:   domain.StepPrivileges,
		Status: domain.StatusFailed,
		Err:    domain.NewStepError(domain.StepPrivileges, domain.ErrPermission, nil),
	})
	failed.Finish(time.Now())
	require.NoError(t, repo.Save(ctx, failed))

	time.Sleep(5 * refreshInterval)

	got, err = c.Check(ctx, api.ServiceName)
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, got)

	// Successful run.
	require.NoError(t, repo.Save(ctx, successfulReport()))

	require.Eventually(t, func() bool {
		got, err := c.Check(ctx, api.ServiceName)

		return err == nil && got == healthpb.HealthCheckResponse_SERVING
	}, 3*time.Second, refreshInterval)

	// The overall server status follows the provisioner.
	got, err = c.Check(ctx, "")
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, got)
}

// TestStatus_UnknownService returns an error for services that are not registered.
func TestStatus_UnknownService(t *testing.T) {
	t.Parallel()

	addr, stop := startStatus(t, filepath.Join(t.TempDir(), "report.json"))
	defer stop()

	ctx := context.Background()

	c, err := common.Dial(ctx, addr)
	require.NoError(t, err)

	defer func() {
		_ = c.Close()
	}()

	_, err = c.Check(ctx, "cargo")
	require.Error(t, err)
}
