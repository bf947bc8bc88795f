package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/oshokin/rust-provisioner/internal/config"
)

const (
	// defaultPackageManager is the apt front-end used for installs.
	defaultPackageManager = "apt-get"
	// defaultShell runs the installer script and sources the environment file.
	defaultShell = "sh"
)

var (
	// errEmptyVersion is returned when a binary prints nothing for --version.
	errEmptyVersion = errors.New("empty version output")
	// errNoPackages is returned when InstallPackages is called with an empty list.
	errNoPackages = errors.New("no packages to install")
)

// Options configure a System. Zero values select the production defaults.
type Options struct {
	// PackageManager is the apt-get compatible binary.
	PackageManager string
	// Shell is the POSIX shell used for the installer and the environment file.
	Shell string
	// InstallerArgs are appended when executing the installer script.
	InstallerArgs []string
	// InstallerChecksum is an optional SHA-256 digest of the installer script.
	InstallerChecksum []byte
	// StagingDir is where the installer script is written. A temporary directory is used when empty.
	StagingDir string
	// EnvFile is the shell file sourced by ReloadEnvironment.
	EnvFile string
	// BusyProcesses are process names that hold the dpkg lock while running.
	// Nil selects config.DefaultBusyProcesses, an empty slice disables the check.
	BusyProcesses []string
	// HTTPClient is the base client for the installer download.
	HTTPClient *http.Client
	// Stdout and Stderr receive the output of apt-get and the installer.
	Stdout io.Writer
	Stderr io.Writer
}

// System runs the provisioning capabilities on the local machine.
type System struct {
	opts   Options
	client *http.Client
}

// New creates a System, applying defaults for unset options.
func New(opts Options) *System {
	if opts.PackageManager == "" {
		opts.PackageManager = defaultPackageManager
	}

	if opts.Shell == "" {
		opts.Shell = defaultShell
	}

	if opts.BusyProcesses == nil {
		opts.BusyProcesses = config.DefaultBusyProcesses()
	}

	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	return &System{
		opts:   opts,
		client: secureClient(opts.HTTPClient),
	}
}

// HasPrivileges reports whether the effective user is root.
func (s *System) HasPrivileges() bool {
	return os.Geteuid() == 0
}

// CommandExists reports whether name resolves to an executable on PATH.
func (s *System) CommandExists(name string) bool {
	_, err := exec.LookPath(name)

	return err == nil
}

// ResolveCommand returns the absolute path of name on the current PATH.
func (s *System) ResolveCommand(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", name, err)
	}

	return path, nil
}

// CommandVersion runs `path --version` and returns its trimmed output.
func (s *System) CommandVersion(ctx context.Context, path string) (string, error) {
	output, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", path, err)
	}

	version := strings.TrimSpace(string(output))
	if version == "" {
		return "", fmt.Errorf("%s: %w", path, errEmptyVersion)
	}

	return version, nil
}

// run executes a command streaming its output to the configured writers.
func (s *System) run(ctx context.Context, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = s.opts.Stdout
	cmd.Stderr = s.opts.Stderr

	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}

	return nil
}
