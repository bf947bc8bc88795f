package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/rust-provisioner/internal/config"
	"github.com/oshokin/rust-provisioner/internal/service/provisioner"
	"github.com/oshokin/rust-provisioner/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel overrides the level from the configuration file.
	logLevel string
	// savePath receives the effective settings when set on the plan command.
	savePath string

	// rootCmd represents the base command for provisioning the machine.
	rootCmd = &cobra.Command{
		Use:   "rust-provisioner",
		Short: "Install build dependencies and the Rust toolchain on a Debian-family host.",
		Long: `Provisions the local machine with the packages and the Rust toolchain needed to build the project.

Steps run in a fixed order and the first failure stops the run:
  1. require root privileges,
  2. install curl if it is missing,
  3. install the build dependencies with apt-get,
  4. download and run the rustup installer over HTTPS (TLS 1.2+),
  5. reload the environment from $HOME/.cargo/env (a failure is only a warning),
  6. check that rustc is on PATH and print its version.

Must be run as root, e.g. with sudo. No arguments are needed; a settings file
is read only when present. Exits with status 1 on any failure.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &provisioner.Options{
				ConfigPath:     configPath,
				ConfigRequired: cmd.Flags().Changed("config"),
				LogLevel:       logLevel,
				Stdout:         cmd.OutOrStdout(),
				Stderr:         cmd.ErrOrStderr(),
			}

			return provisioner.Run(ctx, options)
		},
	}

	// planCmd prints the steps without running them.
	planCmd = &cobra.Command{
		Use:   "plan",
		Short: "Print the provisioning steps and the effective settings.",
		Long: `Prints the ordered steps and the settings they would use, without touching the machine.

With --save the effective settings are also written as YAML, which is a
convenient starting point for a custom rust-provisioner.yaml.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				cfg *config.Config
				err error
			)

			if cmd.Flags().Changed("config") {
				cfg, err = config.Load(configPath)
			} else {
				cfg, err = config.LoadOptional(configPath)
			}

			if err != nil {
				return err
			}

			if savePath != "" {
				if err = config.Save(savePath, cfg); err != nil {
					return err
				}
			}

			return provisioner.DescribePlan(cmd.OutOrStdout(), cfg)
		},
	}
)

// Execute runs the rust-provisioner CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(planCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	planCmd.Flags().StringVar(&savePath, "save", "", "also write the effective settings to this file")
}
