package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/rust-provisioner/internal/config"
	"github.com/oshokin/rust-provisioner/internal/service/status"
	"github.com/oshokin/rust-provisioner/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// reportFile path where the provisioner saves its run report.
	reportFile string

	// rootCmd represents the base command for running the gRPC status server.
	rootCmd = &cobra.Command{
		Use:   "provision-status [listen-address]",
		Short: "Serve the outcome of the latest provisioning run over gRPC health checks.",
		Long: `Starts a gRPC server implementing grpc.health.v1.Health.

The "provisioner" service reports SERVING once the latest run report written
by rust-provisioner is successful, and NOT_SERVING otherwise. The report file
is re-read every few seconds. Listen address can be provided as argument to
override the status_addr setting (e.g., :50061, 0.0.0.0:50061).`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &status.Options{
				ConfigPath:     configPath,
				ConfigRequired: cmd.Flags().Changed("config"),
				ListenAddress:  listenAddress,
				ReportFile:     reportFile,
			}

			return status.Run(ctx, options)
		},
	}
)

// Execute runs the provision-status CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().
		StringVarP(&reportFile, "report-file", "r", "", "path to the run report (defaults to report_file setting)")
}
