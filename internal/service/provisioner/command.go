package provisioner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/oshokin/rust-provisioner/internal/config"
	domain "github.com/oshokin/rust-provisioner/internal/domain/provision"
	"github.com/oshokin/rust-provisioner/internal/logger"
	"github.com/oshokin/rust-provisioner/internal/notify"
	repository "github.com/oshokin/rust-provisioner/internal/repository/report"
	"github.com/oshokin/rust-provisioner/internal/service/host"
)

// Options are inputs accepted by the provisioner entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// ConfigRequired makes a missing settings file an error instead of using defaults.
	ConfigRequired bool
	// LogLevel overrides the level from the settings file.
	LogLevel string
	// MarkerPath overrides the run marker location.
	MarkerPath string
	// Stdout receives notices, the toolchain version and command output.
	Stdout io.Writer
	// Stderr receives command error output.
	Stderr io.Writer
}

// errUnknownLogLevel is returned for unsupported level names.
var errUnknownLogLevel = errors.New("unknown log level")

// Run loads the settings, provisions the machine and saves the run report.
// It is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "rust-provisioner")

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	if err = applyLogLevel(cfg, opts.LogLevel); err != nil {
		return err
	}

	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}

	system := host.New(host.Options{
		InstallerArgs:     cfg.InstallerArgs,
		InstallerChecksum: cfg.InstallerChecksum(),
		EnvFile:           cfg.ExpandedEnvFile(),
		BusyProcesses:     cfg.BusyProcessList(),
		Stdout:            out,
		Stderr:            opts.Stderr,
	})

	p := New(system, PlanFromConfig(cfg),
		WithLocker(NewMarkerLock(opts.MarkerPath)),
		WithOutput(out),
	)

	logger.InfoKV(ctx, "Provisioning started",
		"packages", cfg.Packages, "installer_url", cfg.InstallerURL, "toolchain", cfg.ToolchainBinary)

	report, err := p.Provision(ctx)

	if reportWorthSaving(err) {
		saveReport(ctx, cfg.ExpandedReportFile(), report)
	}

	if err != nil {
		if kind := domain.KindName(err); kind != "" {
			notify.Errorf(out, "Provisioning failed with %s: %v", kind, err)
		} else {
			notify.Errorf(out, "Provisioning failed: %v", err)
		}

		return err
	}

	logger.InfoKV(ctx, "Provisioning completed", "toolchain_version", report.ToolchainVersion)

	return nil
}

// PlanFromConfig extracts the provisioning plan from the settings.
func PlanFromConfig(cfg *config.Config) Plan {
	return Plan{
		DownloadTool:    cfg.DownloadTool,
		Packages:        cfg.PackageList(),
		InstallerURL:    cfg.InstallerURL,
		ToolchainBinary: cfg.ToolchainBinary,
	}
}

// loadConfig reads the settings according to the options.
func loadConfig(opts *Options) (*config.Config, error) {
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
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	return cfg, nil
}

// applyLogLevel sets the global level from the override or the settings.
func applyLogLevel(cfg *config.Config, override string) error {
	name := cfg.LogLevel
	if override != "" {
		name = override
	}

	level, ok := logger.ParseLogLevel(name)
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownLogLevel, name)
	}

	logger.SetLevel(level)

	return nil
}

// reportWorthSaving reports whether the run got far enough to replace the saved report.
// A failed privilege check leaves no trace on the machine, and a refused marker
// means the report belongs to the run holding it.
func reportWorthSaving(err error) bool {
	return !errors.Is(err, domain.ErrPermission) && !errors.Is(err, ErrRunMarker)
}

// saveReport persists the report, logging instead of failing the run on errors.
func saveReport(ctx context.Context, path string, report *domain.Report) {
	if report == nil {
		return
	}

	repo := repository.NewFileRepository(path)
	if err := repo.Save(ctx, report); err != nil {
		logger.WarnKV(ctx, "Unable to save run report", "path", path, "error", err)
		return
	}

	logger.DebugKV(ctx, "Run report saved", "path", path)
}
