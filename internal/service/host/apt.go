package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/mitchellh/go-ps"
)

// errPackageManagerBusy is returned when another process holds the dpkg lock.
var errPackageManagerBusy = errors.New("package manager is busy")

// noninteractiveEnv keeps debconf from prompting during installs.
var noninteractiveEnv = []string{"DEBIAN_FRONTEND=noninteractive"} //nolint:gochecknoglobals // Constant slice.

// InstallPackages refreshes the package index and installs names in one apt-get call.
// The call is all-or-nothing from the caller's view: apt-get may have unpacked
// some packages before failing, and that partial state is not inspected.
func (s *System) InstallPackages(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return errNoPackages
	}

	busy, err := s.busyPackageManagers()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	if len(busy) > 0 {
		return fmt.Errorf("%w: %s running", errPackageManagerBusy, strings.Join(busy, ", "))
	}

	if err = s.run(ctx, noninteractiveEnv, s.opts.PackageManager, "update"); err != nil {
		return err
	}

	args := append([]string{"install", "-y"}, names...)

	return s.run(ctx, noninteractiveEnv, s.opts.PackageManager, args...)
}

// busyPackageManagers returns the names of running processes that would block apt-get.
func (s *System) busyPackageManagers() ([]string, error) {
	processList, err := ps.Processes()
	if err != nil {
		return nil, err
	}

	thisProcessID := os.Getpid()

	var busy []string

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		name := process.Executable()
		if slices.Contains(s.opts.BusyProcesses, name) && !slices.Contains(busy, name) {
			busy = append(busy, name)
		}
	}

	slices.Sort(busy)

	return busy, nil
}
