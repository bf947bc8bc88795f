package provisioner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"
)

// MarkerFilename marks that a provisioner is running right now to avoid parallel execution.
const MarkerFilename = "rust-provisioner.marker"

// MarkerLifetime bounds how long a marker stays valid. Past it the marker is
// stale even if its PID is alive again, since the PID may have been reused.
const MarkerLifetime = 12 * time.Hour

// markerFileMode is the permission of the marker file.
const markerFileMode = 0o600

// errAlreadyRunning is returned when the marker belongs to a live process.
var errAlreadyRunning = errors.New("another provisioner is already running")

// MarkerLock is a Locker backed by a PID file.
// A marker left behind by a process that no longer exists, or older than
// MarkerLifetime, is treated as stale and replaced.
type MarkerLock struct {
	path string
}

// NewMarkerLock creates a lock at path, or in the temporary directory when path is empty.
func NewMarkerLock(path string) *MarkerLock {
	if path == "" {
		path = filepath.Join(os.TempDir(), MarkerFilename)
	}

	return &MarkerLock{
		path: filepath.Clean(path),
	}
}

// Path returns the marker location.
func (m *MarkerLock) Path() string {
	return m.path
}

// Lock writes the marker with the current PID and returns a function removing it.
func (m *MarkerLock) Lock() (func(), error) {
	if err := m.create(); err != nil {
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create marker: %w", err)
		}

		if !m.stale() {
			return nil, fmt.Errorf("%w: marker %s", errAlreadyRunning, m.path)
		}

		if err = os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale marker: %w", err)
		}

		if err = m.create(); err != nil {
			return nil, fmt.Errorf("create marker: %w", err)
		}
	}

	return func() {
		_ = os.Remove(m.path)
	}, nil
}

// create writes the marker only if it does not exist yet.
func (m *MarkerLock) create() error {
	file, err := os.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, markerFileMode)
	if err != nil {
		return err
	}

	_, err = file.WriteString(strconv.Itoa(os.Getpid()))
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}

	return err
}

// stale reports whether the existing marker may be replaced.
func (m *MarkerLock) stale() bool {
	info, err := os.Stat(m.path)
	if err != nil {
		return true
	}

	if time.Since(info.ModTime()) > MarkerLifetime {
		return true
	}

	return !m.ownerAlive()
}

// ownerAlive reports whether the PID recorded in the marker is a running process.
// Unreadable markers are considered stale.
func (m *MarkerLock) ownerAlive() bool {
	contents, err := os.ReadFile(m.path)
	if err != nil {
		return false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil || pid <= 0 {
		return false
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		// Unable to tell; assume the owner is still there.
		return true
	}

	return process != nil
}
