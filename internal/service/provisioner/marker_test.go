package provisioner

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestMarkerLock_LockUnlock creates and removes the marker.
func TestMarkerLock_LockUnlock(t *testing.T) {
	t.Parallel()

	lock := NewMarkerLock(filepath.Join(t.TempDir(), MarkerFilename))

	unlock, err := lock.Lock()
	require.NoError(t, err)

	contents, err := os.ReadFile(lock.Path())
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(contents))

	// This process is alive, so a second lock fails.
	_, err = lock.Lock()
	require.ErrorIs(t, err, errAlreadyRunning)

	unlock()
	require.NoFileExists(t, lock.Path())
}

// TestMarkerLock_Stale replaces a marker whose owner has exited.
func TestMarkerLock_Stale(t *testing.T) {
	t.Parallel()

	finished := exec.Command("true")
	require.NoError(t, finished.Run())

	path := filepath.Join(t.TempDir(), MarkerFilename)
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(finished.ProcessState.Pid())), markerFileMode))

	unlock, err := NewMarkerLock(path).Lock()
	require.NoError(t, err)

	defer unlock()

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(contents))
}

// TestMarkerLock_Expired replaces a marker older than its lifetime even when its PID is alive.
func TestMarkerLock_Expired(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), MarkerFilename)
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), markerFileMode))

	expired := time.Now().Add(-MarkerLifetime - time.Hour)
	require.NoError(t, os.Chtimes(path, expired, expired))

	unlock, err := NewMarkerLock(path).Lock()
	require.NoError(t, err)

	defer unlock()

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(contents))
}

// TestMarkerLock_Recent keeps a fresh marker of a live process.
func TestMarkerLock_Recent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), MarkerFilename)
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), markerFileMode))

	_, err := NewMarkerLock(path).Lock()
	require.ErrorIs(t, err, errAlreadyRunning)
}

// TestMarkerLock_Garbage replaces an unreadable marker.
func TestMarkerLock_Garbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), MarkerFilename)
	require.NoError(t, os.WriteFile(path, []byte("not a pid"), markerFileMode))

	unlock, err := NewMarkerLock(path).Lock()
	require.NoError(t, err)

	unlock()
}

// TestNewMarkerLock_DefaultPath places the marker in the temporary directory.
func TestNewMarkerLock_DefaultPath(t *testing.T) {
	t.Parallel()

	require.Equal(t, filepath.Join(os.TempDir(), MarkerFilename), NewMarkerLock("").Path())
}
