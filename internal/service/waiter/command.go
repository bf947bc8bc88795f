package waiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "github.com/oshokin/rust-provisioner/internal/api/grpc/status"
	"github.com/oshokin/rust-provisioner/internal/config"
	"github.com/oshokin/rust-provisioner/internal/logger"
	"github.com/oshokin/rust-provisioner/internal/service/common"
)

// Options controls the waiter polling behavior and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ConfigRequired makes a missing settings file an error instead of using defaults.
	ConfigRequired bool
	// ServerAddress provides an optional gRPC server address override.
	ServerAddress string
	// PollInterval defines the interval between status checks.
	PollInterval time.Duration
	// MaxWait bounds the total wait; zero waits until cancellation.
	MaxWait time.Duration
}

// DefaultPollInterval defines the polling interval for status checks.
const DefaultPollInterval = 5 * time.Second

// ErrWaitTimeout is returned when MaxWait elapses before provisioning succeeds.
var ErrWaitTimeout = errors.New("timed out waiting for provisioning")

// Run polls the status server until the provisioner service is SERVING.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "provision-wait")

	var (
		cfg *config.Config
		err error
	)

	if opts.ConfigRequired {
		cfg, err = config.Load(opts.ConfigPath)
	} else {
		cfg, err = config.LoadOptional(opts.ConfigPath)
	}

	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	// Determine server address: command line argument overrides config.
	serverAddress := cfg.StatusAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	// Ensure connection cleanup on function exit.
	defer func() {
		_ = client.Close()
	}()

	var deadline <-chan time.Time

	if opts.MaxWait > 0 {
		timer := time.NewTimer(opts.MaxWait)
		defer timer.Stop()

		deadline = timer.C
	}

	logger.InfoKV(ctx, "Waiting for provisioning", "server_address", serverAddress, "interval", pollInterval.String())

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if checkStatus(ctx, client) {
			logger.Info(ctx, "Provisioning succeeded")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%w after %s", ErrWaitTimeout, opts.MaxWait)
		case <-ticker.C:
		}
	}
}

// checkStatus reports whether the provisioner service is SERVING.
// Transport errors are logged and treated as not ready, since the server may still be starting.
func checkStatus(ctx context.Context, client *common.Client) bool {
	servingStatus, err := client.Check(ctx, api.ServiceName)
	if err != nil {
		logger.WarnKV(ctx, "Status check failed", "error", err)
		return false
	}

	logger.DebugKV(ctx, "Provisioning status", "status", servingStatus.String())

	return servingStatus == healthpb.HealthCheckResponse_SERVING
}
