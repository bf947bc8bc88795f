package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/rust-provisioner/internal/config"
	"github.com/oshokin/rust-provisioner/internal/service/waiter"
	"github.com/oshokin/rust-provisioner/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// maxWait bounds how long to wait for provisioning.
	maxWait time.Duration
	// interval is the delay between status checks.
	interval time.Duration

	// rootCmd represents the base command for waiting on provisioning.
	rootCmd = &cobra.Command{
		Use:   "provision-wait [server-address]",
		Short: "Wait until the provisioning run has succeeded.",
		Long: `Polls the provision-status server until the "provisioner" health service is SERVING.

Exits with status 0 once provisioning succeeded, and with status 1 when the
timeout elapses or the process is interrupted. Server address can be provided
as argument or loaded from configuration file.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use server address argument if provided, otherwise rely on config.
			var serverAddress string
			if len(args) > 0 {
				serverAddress = args[0]
			}

			options := &waiter.Options{
				ConfigPath:     configPath,
				ConfigRequired: cmd.Flags().Changed("config"),
				ServerAddress:  serverAddress,
				PollInterval:   interval,
				MaxWait:        maxWait,
			}

			return waiter.Run(ctx, options)
		},
	}
)

// Execute runs the provision-wait CLI and exits with non-zero status on error.
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
	rootCmd.Flags().DurationVarP(&maxWait, "timeout", "t", 0, "maximum time to wait, 0 waits forever")
	rootCmd.Flags().DurationVarP(&interval, "interval", "i", waiter.DefaultPollInterval, "delay between status checks")
}
