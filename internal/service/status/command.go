package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	api "github.com/oshokin/rust-provisioner/internal/api/grpc/status"
	"github.com/oshokin/rust-provisioner/internal/config"
	"github.com/oshokin/rust-provisioner/internal/logger"
	repository "github.com/oshokin/rust-provisioner/internal/repository/report"
)

// Options controls the provision-status process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ConfigRequired makes a missing settings file an error instead of using defaults.
	ConfigRequired bool
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// ReportFile overrides the report location from the settings.
	ReportFile string
	// RefreshInterval is how often the report is re-read.
	RefreshInterval time.Duration
	// Ready, when set, receives the bound address once the server listens.
	Ready func(address string)
}

// DefaultRefreshInterval is how often the report file is re-read.
const DefaultRefreshInterval = 2 * time.Second

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// Run starts the gRPC server and blocks until context is canceled or server stops.
//
//nolint:funlen // Startup, serving and shutdown read best in one place.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "provision-status")

	var (
		settings *config.Config
		err      error
	)

	if opts.ConfigRequired {
		settings, err = config.Load(opts.ConfigPath)
	} else {
		settings, err = config.LoadOptional(opts.ConfigPath)
	}

	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// Use ReportFile from config unless overridden by command line option.
	reportFile := settings.ExpandedReportFile()
	if opts.ReportFile != "" {
		reportFile = opts.ReportFile
	}

	listenAddress, err := resolveListenAddress(settings.StatusAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	refreshInterval := opts.RefreshInterval
	if refreshInterval <= 0 {
		refreshInterval = DefaultRefreshInterval
	}

	statusServer := api.NewServer(repository.NewFileRepository(reportFile))

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	grpcServer := grpc.NewServer()
	statusServer.Register(grpcServer)

	logger.InfoKV(ctx, "Status server listening", "listen_address", lis.Addr().String(), "report_file", reportFile)

	if opts.Ready != nil {
		opts.Ready(lis.Addr().String())
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		refreshLoop(groupCtx, statusServer, refreshInterval)

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		statusServer.Shutdown()
		grpcServer.GracefulStop()

		return nil
	})

	if err = group.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "GRPC server stopped")

	return nil
}

// refreshLoop publishes the report outcome immediately and then on every tick.
func refreshLoop(ctx context.Context, statusServer *api.Server, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last string

	for {
		servingStatus, err := statusServer.Refresh(ctx)
		if err != nil {
			logger.WarnKV(ctx, "Unable to refresh status", "error", err)
		} else if servingStatus.String() != last {
			last = servingStatus.String()
			logger.InfoKV(ctx, "Provisioning status changed", "status", last)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// resolveListenAddress determines the listen address for the gRPC server.
// If override is provided, uses it directly. Otherwise the configured status
// address is used as is, so the default stays on loopback.
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	if _, _, err := net.SplitHostPort(configAddr); err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	return configAddr, nil
}
