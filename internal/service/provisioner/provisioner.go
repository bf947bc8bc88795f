package provisioner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	domain "github.com/oshokin/rust-provisioner/internal/domain/provision"
	"github.com/oshokin/rust-provisioner/internal/logger"
	"github.com/oshokin/rust-provisioner/internal/notify"
)

// Host is the set of capabilities the sequence needs from the machine.
type Host interface {
	HasPrivileges() bool
	CommandExists(name string) bool
	InstallPackages(ctx context.Context, names []string) error
	RunRemoteInstaller(ctx context.Context, url string) error
	ReloadEnvironment(ctx context.Context) error
	ResolveCommand(name string) (string, error)
	CommandVersion(ctx context.Context, path string) (string, error)
}

// ErrRunMarker is returned when the run marker could not be taken, usually
// because another provisioner holds it. Nothing on the machine was changed and
// the report of the other run must be left alone.
var ErrRunMarker = errors.New("run marker not acquired")

// Locker guards against concurrent runs on the same machine.
type Locker interface {
	Lock() (unlock func(), err error)
}

// Plan is what a run installs.
type Plan struct {
	// DownloadTool is installed when missing from PATH.
	DownloadTool string
	// Packages are installed in one package-manager call.
	Packages []string
	// InstallerURL is the toolchain installer script.
	InstallerURL string
	// ToolchainBinary must be invocable at the end of the run.
	ToolchainBinary string
}

// Provisioner executes a Plan against a Host.
type Provisioner struct {
	// host performs every side effect.
	host Host
	// plan is fixed for the lifetime of the provisioner.
	plan Plan
	// locker is optional and taken after the privilege check.
	locker Locker
	// out receives operator-facing notices and the toolchain version.
	out io.Writer
	// hostname is written to the report.
	hostname string
	// now is the clock used for the report.
	now func() time.Time
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithLocker sets the guard against concurrent runs.
func WithLocker(locker Locker) Option {
	return func(p *Provisioner) {
		p.locker = locker
	}
}

// WithOutput sets where notices and the toolchain version are printed.
func WithOutput(out io.Writer) Option {
	return func(p *Provisioner) {
		if out != nil {
			p.out = out
		}
	}
}

// WithClock sets the clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Provisioner) {
		if now != nil {
			p.now = now
		}
	}
}

// WithHostname overrides the hostname written to reports.
func WithHostname(hostname string) Option {
	return func(p *Provisioner) {
		p.hostname = hostname
	}
}

// errNotRoot is the cause of a failed privilege check.
var errNotRoot = errors.New("effective user is not root")

// privilegeInstruction is shown when the privilege check fails.
const privilegeInstruction = "This program must be run as root. Please re-run it with sudo: sudo %s"

// New creates a Provisioner for the given host and plan.
func New(host Host, plan Plan, opts ...Option) *Provisioner {
	hostname, _ := os.Hostname()

	p := &Provisioner{
		host: host,
		plan: Plan{
			DownloadTool:    plan.DownloadTool,
			Packages:        slices.Clone(plan.Packages),
			InstallerURL:    plan.InstallerURL,
			ToolchainBinary: plan.ToolchainBinary,
		},
		out:      os.Stdout,
		hostname: hostname,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// stepFunc runs one step and describes its outcome.
type stepFunc func(ctx context.Context) domain.StepResult

// Provision runs the sequence and returns the report of what happened.
// The returned error is the fatal StepError, if any, and matches one of the
// domain Err* kinds with errors.Is.
func (p *Provisioner) Provision(ctx context.Context) (*domain.Report, error) {
	report := domain.NewReport(p.hostname, p.now())

	defer func() {
		report.Finish(p.now())
	}()

	result := p.timed(ctx, domain.StepPrivileges, p.checkPrivileges)
	report.Record(result)

	if result.Fatal() {
		return report, result.Err
	}

	if p.locker != nil {
		unlock, err := p.locker.Lock()
		if err != nil {
			report.Error = err.Error()

			return report, fmt.Errorf("%w: %w", ErrRunMarker, err)
		}

		defer unlock()
	}

	remaining := []struct {
		step  domain.Step
		title string
		run   stepFunc
	}{
		{domain.StepDownloadTool, "Checking for " + p.plan.DownloadTool, p.ensureDownloadTool},
		{domain.StepPackages, "Installing build dependencies", p.installPackages},
		{domain.StepToolchain, "Installing the Rust toolchain", p.installToolchain},
		{domain.StepReloadEnv, "Reloading the environment", p.reloadEnvironment},
		{domain.StepVerify, "Verifying " + p.plan.ToolchainBinary, p.verify},
	}

	for _, s := range remaining {
		notify.Activityf(p.out, "%s", s.title)

		result = p.timed(ctx, s.step, s.run)
		report.Record(result)

		if result.Fatal() {
			return report, result.Err
		}

		if result.Step == domain.StepVerify {
			report.ToolchainVersion = result.Detail
		}
	}

	return report, nil
}

// timed runs fn with a step-scoped logger and stamps the result.
func (p *Provisioner) timed(ctx context.Context, step domain.Step, fn stepFunc) domain.StepResult {
	ctx = logger.WithKV(ctx, "step", string(step))
	startedAt := p.now()

	logger.Debug(ctx, "Step started")

	result := fn(ctx)
	result.Step = step
	result.StartedAt = startedAt
	result.Duration = p.now().Sub(startedAt)

	switch result.Status {
	case domain.StatusFailed:
		logger.ErrorKV(ctx, "Step failed", "error", result.Err)
	case domain.StatusWarned:
		logger.WarnKV(ctx, "Step failed, continuing", "error", result.Err)
	case domain.StatusSkipped:
		logger.InfoKV(ctx, "Step skipped", "detail", result.Detail)
	case domain.StatusSucceeded:
		logger.InfoKV(ctx, "Step completed", "duration", result.Duration.String())
	}

	return result
}

func (p *Provisioner) checkPrivileges(_ context.Context) domain.StepResult {
	if p.host.HasPrivileges() {
		return succeeded("")
	}

	notify.Errorf(p.out, privilegeInstruction, commandName())

	return failed(domain.StepPrivileges, domain.ErrPermission, errNotRoot)
}

func (p *Provisioner) ensureDownloadTool(ctx context.Context) domain.StepResult {
	if p.host.CommandExists(p.plan.DownloadTool) {
		return domain.StepResult{
			Status: domain.StatusSkipped,
			Detail: p.plan.DownloadTool + " is already installed",
		}
	}

	logger.InfoKV(ctx, "Download tool not found, installing", "package", p.plan.DownloadTool)

	if err := p.host.InstallPackages(ctx, []string{p.plan.DownloadTool}); err != nil {
		return failed(domain.StepDownloadTool, domain.ErrDependencyInstall, err)
	}

	return succeeded("")
}

// installPackages treats the combined install as one pass/fail unit, even
// though the package manager may have applied part of the list before failing.
func (p *Provisioner) installPackages(ctx context.Context) domain.StepResult {
	logger.InfoKV(ctx, "Installing packages", "packages", p.plan.Packages)

	if err := p.host.InstallPackages(ctx, slices.Clone(p.plan.Packages)); err != nil {
		return failed(domain.StepPackages, domain.ErrDependencyInstall, err)
	}

	return succeeded("")
}

func (p *Provisioner) installToolchain(ctx context.Context) domain.StepResult {
	logger.InfoKV(ctx, "Running toolchain installer", "url", p.plan.InstallerURL)

	if err := p.host.RunRemoteInstaller(ctx, p.plan.InstallerURL); err != nil {
		return failed(domain.StepToolchain, domain.ErrToolchainInstall, err)
	}

	return succeeded("")
}

func (p *Provisioner) reloadEnvironment(ctx context.Context) domain.StepResult {
	if err := p.host.ReloadEnvironment(ctx); err != nil {
		notify.Warningf(p.out, "Could not reload the environment: %v", err)

		return domain.StepResult{
			Status: domain.StatusWarned,
			Err:    err,
		}
	}

	return succeeded("")
}

func (p *Provisioner) verify(ctx context.Context) domain.StepResult {
	path, err := p.host.ResolveCommand(p.plan.ToolchainBinary)
	if err != nil {
		notify.Errorf(p.out, "%s is not available on PATH, open a new shell and check the installation", p.plan.ToolchainBinary)

		return failed(domain.StepVerify, domain.ErrVerification, err)
	}

	version, err := p.host.CommandVersion(ctx, path)
	if err != nil {
		return failed(domain.StepVerify, domain.ErrVerification, err)
	}

	_, _ = fmt.Fprintln(p.out, version)
	notify.Successf(p.out, "Rust installed successfully")

	return succeeded(version)
}

func succeeded(detail string) domain.StepResult {
	return domain.StepResult{
		Status: domain.StatusSucceeded,
		Detail: detail,
	}
}

func failed(step domain.Step, kind, cause error) domain.StepResult {
	return domain.StepResult{
		Status: domain.StatusFailed,
		Err:    domain.NewStepError(step, kind, cause),
	}
}

// defaultCommandName is shown in the privilege instruction when os.Args is empty.
const defaultCommandName = "rust-provisioner"

func commandName() string {
	if len(os.Args) == 0 || os.Args[0] == "" {
		return defaultCommandName
	}

	return os.Args[0]
}
