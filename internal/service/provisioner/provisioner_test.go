package provisioner

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/rust-provisioner/internal/domain/provision"
)

// fakeHost records capability calls and returns configured results.
type fakeHost struct {
	root           bool
	existing       []string
	resolvable     []string
	installErrs    []error
	installerErr   error
	reloadErr      error
	versionErr     error
	version        string
	reloadMakesBin bool

	// partiallyApplied simulates apt-get unpacking part of a list before failing.
	partiallyApplied []string

	calls        []string
	installCalls [][]string
	installed    []string
}

func (f *fakeHost) HasPrivileges() bool {
	f.calls = append(f.calls, "hasPrivileges")

	return f.root
}

func (f *fakeHost) CommandExists(name string) bool {
	f.calls = append(f.calls, "commandExists:"+name)

	return slices.Contains(f.existing, name)
}

func (f *fakeHost) InstallPackages(_ context.Context, names []string) error {
	f.calls = append(f.calls, "installPackages")
	f.installCalls = append(f.installCalls, slices.Clone(names))

	var err error
	if i := len(f.installCalls) - 1; i < len(f.installErrs) {
		err = f.installErrs[i]
	}

	if err != nil {
		f.installed = append(f.installed, f.partiallyApplied...)

		return err
	}

	f.installed = append(f.installed, names...)

	return nil
}

func (f *fakeHost) RunRemoteInstaller(_ context.Context, url string) error {
	f.calls = append(f.calls, "runRemoteInstaller:"+url)

	return f.installerErr
}

func (f *fakeHost) ReloadEnvironment(_ context.Context) error {
	f.calls = append(f.calls, "reloadEnvironment")

	if f.reloadErr == nil && f.reloadMakesBin {
		f.resolvable = append(f.resolvable, "rustc")
	}

	return f.reloadErr
}

func (f *fakeHost) ResolveCommand(name string) (string, error) {
	f.calls = append(f.calls, "resolveCommand:"+name)

	if !slices.Contains(f.resolvable, name) {
		return "", errors.New(name + ": executable file not found in $PATH")
	}

	return "/root/.cargo/bin/" + name, nil
}

func (f *fakeHost) CommandVersion(_ context.Context, path string) (string, error) {
	f.calls = append(f.calls, "commandVersion:"+path)

	return f.version, f.versionErr
}

// countCalls returns how many recorded calls equal name.
func (f *fakeHost) countCalls(name string) int {
	count := 0

	for _, call := range f.calls {
		if call == name {
			count++
		}
	}

	return count
}

// testPlan mirrors the default rustup plan with a shorter package list.
func testPlan() Plan {
	return Plan{
		DownloadTool:    "curl",
		Packages:        []string{"build-essential", "pkg-config", "libssl-dev"},
		InstallerURL:    "https://sh.rustup.rs",
		ToolchainBinary: "rustc",
	}
}

// successfulHost is root, lacks curl and ends up with rustc after the reload.
func successfulHost() *fakeHost {
	return &fakeHost{
		root:           true,
		reloadMakesBin: true,
		version:        "rustc 1.90.0 (1159e78c4 2025-09-14)",
	}
}

// TestProvision_Success runs the full sequence end to end.
func TestProvision_Success(t *testing.T) {
	t.Parallel()

	host := successfulHost()

	var out bytes.Buffer

	report, err := New(host, testPlan(), WithOutput(&out), WithHostname("builder")).Provision(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{
		"hasPrivileges",
		"commandExists:curl",
		"installPackages",
		"installPackages",
		"runRemoteInstaller:https://sh.rustup.rs",
		"reloadEnvironment",
		"resolveCommand:rustc",
		"commandVersion:/root/.cargo/bin/rustc",
	}, host.calls)
	require.Equal(t, [][]string{{"curl"}, testPlan().Packages}, host.installCalls)

	require.True(t, report.Succeeded)
	require.Equal(t, "builder", report.Hostname)
	require.Equal(t, "rustc 1.90.0 (1159e78c4 2025-09-14)", report.ToolchainVersion)
	require.Len(t, report.Steps, len(domain.Steps()))
	require.Contains(t, out.String(), "rustc 1.90.0 (1159e78c4 2025-09-14)\n")
	require.Contains(t, out.String(), "Rust installed successfully")
	require.Contains(t, out.String(), "Installing the Rust toolchain")
}

// TestProvision_NotRoot stops before any package-manager invocation.
func TestProvision_NotRoot(t *testing.T) {
	t.Parallel()

	host := successfulHost()
	host.root = false
	locker := &fakeLocker{}

	var out bytes.Buffer

	report, err := New(host, testPlan(), WithOutput(&out), WithLocker(locker)).Provision(context.Background())
	require.ErrorIs(t, err, domain.ErrPermission)

	require.Equal(t, []string{"hasPrivileges"}, host.calls)
	require.Contains(t, out.String(), "must be run as root")
	require.Contains(t, out.String(), "sudo")
	require.NotContains(t, out.String(), "Installing build dependencies")
	require.False(t, report.Succeeded)
	require.Equal(t, domain.StepPrivileges, report.FailedStep)
	require.Equal(t, "PermissionError", report.ErrorKind)
	require.Zero(t, locker.locked)
}

// TestProvision_DownloadToolPresent performs no install for the tool when it is on PATH.
func TestProvision_DownloadToolPresent(t *testing.T) {
	t.Parallel()

	host := successfulHost()
	host.existing = []string{"curl"}

	report, err := New(host, testPlan(), WithOutput(&bytes.Buffer{})).Provision(context.Background())
	require.NoError(t, err)

	require.Equal(t, [][]string{testPlan().Packages}, host.installCalls)

	result, reached := report.Result(domain.StepDownloadTool)
	require.True(t, reached)
	require.Equal(t, domain.StatusSkipped, result.Status)
}

// TestProvision_InstallFailures stops at the first package-manager failure.
func TestProvision_InstallFailures(t *testing.T) {
	t.Parallel()

	failure := errors.New("apt-get install -y curl: exit status 100")

	cases := []struct {
		name        string
		installErrs []error
		wantStep    domain.Step
		wantCalls   int
	}{
		{
			name:        "download tool",
			installErrs: []error{failure},
			wantStep:    domain.StepDownloadTool,
			wantCalls:   1,
		},
		{
			name:        "package set",
			installErrs: []error{nil, failure},
			wantStep:    domain.StepPackages,
			wantCalls:   2,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			host := successfulHost()
			host.installErrs = tc.installErrs

			report, err := New(host, testPlan(), WithOutput(&bytes.Buffer{})).Provision(context.Background())
			require.ErrorIs(t, err, domain.ErrDependencyInstall)
			require.ErrorIs(t, err, failure)

			require.Len(t, host.installCalls, tc.wantCalls)
			require.Zero(t, host.countCalls("runRemoteInstaller:https://sh.rustup.rs"))
			require.Zero(t, host.countCalls("reloadEnvironment"))
			require.Equal(t, tc.wantStep, report.FailedStep)
			require.Equal(t, "DependencyInstallError", report.ErrorKind)
		})
	}
}

// TestProvision_PartialInstallIsFailure treats a failing combined install as failed
// even when the fake package manager applied part of the list.
func TestProvision_PartialInstallIsFailure(t *testing.T) {
	t.Parallel()

	host := successfulHost()
	host.existing = []string{"curl"}
	host.installErrs = []error{errors.New("dpkg: error processing package libssl-dev")}
	host.partiallyApplied = []string{"build-essential", "pkg-config"}

	report, err := New(host, testPlan(), WithOutput(&bytes.Buffer{})).Provision(context.Background())
	require.ErrorIs(t, err, domain.ErrDependencyInstall)

	require.Equal(t, []string{"build-essential", "pkg-config"}, host.installed)
	require.Equal(t, domain.StepPackages, report.FailedStep)
	require.Zero(t, host.countCalls("runRemoteInstaller:https://sh.rustup.rs"))
}

// TestProvision_ToolchainFailure skips the reload and verification when the installer fails.
func TestProvision_ToolchainFailure(t *testing.T) {
	t.Parallel()

	host := successfulHost()
	host.installerErr = errors.New("sh toolchain-installer.sh -y: exit status 1")

	report, err := New(host, testPlan(), WithOutput(&bytes.Buffer{})).Provision(context.Background())
	require.ErrorIs(t, err, domain.ErrToolchainInstall)

	require.Zero(t, host.countCalls("reloadEnvironment"))
	require.Zero(t, host.countCalls("resolveCommand:rustc"))
	require.Equal(t, "ToolchainInstallError", report.ErrorKind)
}

// TestProvision_ReloadFailureIsWarning still succeeds when rustc is already resolvable.
func TestProvision_ReloadFailureIsWarning(t *testing.T) {
	t.Parallel()

	host := successfulHost()
	host.reloadMakesBin = false
	host.reloadErr = errors.New("environment file: no such file or directory")
	host.resolvable = []string{"rustc"}

	var out bytes.Buffer

	report, err := New(host, testPlan(), WithOutput(&out)).Provision(context.Background())
	require.NoError(t, err)

	require.True(t, report.Succeeded)

	result, reached := report.Result(domain.StepReloadEnv)
	require.True(t, reached)
	require.Equal(t, domain.StatusWarned, result.Status)
	require.Contains(t, out.String(), "Could not reload the environment")
}

// TestProvision_VerificationFailure fails even though every earlier step succeeded.
func TestProvision_VerificationFailure(t *testing.T) {
	t.Parallel()

	t.Run("not resolvable", func(t *testing.T) {
		t.Parallel()

		host := successfulHost()
		host.reloadMakesBin = false

		report, err := New(host, testPlan(), WithOutput(&bytes.Buffer{})).Provision(context.Background())
		require.ErrorIs(t, err, domain.ErrVerification)
		require.Equal(t, domain.StepVerify, report.FailedStep)
		require.Zero(t, host.countCalls("commandVersion:/root/.cargo/bin/rustc"))
	})

	t.Run("not invocable", func(t *testing.T) {
		t.Parallel()

		host := successfulHost()
		host.versionErr = errors.New("exit status 1")

		report, err := New(host, testPlan(), WithOutput(&bytes.Buffer{})).Provision(context.Background())
		require.ErrorIs(t, err, domain.ErrVerification)
		require.Equal(t, "VerificationError", report.ErrorKind)
		require.Empty(t, report.ToolchainVersion)
	})
}

// fakeLocker counts Lock calls and optionally fails.
type fakeLocker struct {
	err      error
	locked   int
	unlocked int
}

func (l *fakeLocker) Lock() (func(), error) {
	l.locked++

	if l.err != nil {
		return nil, l.err
	}

	return func() {
		l.unlocked++
	}, nil
}

// TestProvision_Locker takes the marker after the privilege check and releases it.
func TestProvision_Locker(t *testing.T) {
	t.Parallel()

	locker := &fakeLocker{}

	_, err := New(successfulHost(), testPlan(), WithOutput(&bytes.Buffer{}), WithLocker(locker)).
		Provision(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, locker.locked)
	require.Equal(t, 1, locker.unlocked)

	busy := &fakeLocker{err: errAlreadyRunning}
	host := successfulHost()

	report, err := New(host, testPlan(), WithOutput(&bytes.Buffer{}), WithLocker(busy)).
		Provision(context.Background())
	require.ErrorIs(t, err, errAlreadyRunning)
	require.ErrorIs(t, err, ErrRunMarker)
	require.Empty(t, host.installCalls)
	require.False(t, report.Succeeded)
	require.NotEmpty(t, report.Error)
}

// TestNew_CopiesPlan ensures later changes to the caller's slice do not leak in.
func TestNew_CopiesPlan(t *testing.T) {
	t.Parallel()

	plan := testPlan()
	host := successfulHost()
	host.existing = []string{"curl"}
	p := New(host, plan, WithOutput(&bytes.Buffer{}))

	plan.Packages[0] = "changed"

	_, err := p.Provision(context.Background())
	require.NoError(t, err)
	require.Equal(t, "build-essential", host.installCalls[0][0])
}
