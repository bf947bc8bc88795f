package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var (
	// errEnvFileNotSet is returned when the environment file path expands to nothing.
	errEnvFileNotSet = errors.New("environment file is not set")
	// errEmptyPath is returned when sourcing the file leaves PATH empty.
	errEmptyPath = errors.New("PATH is empty after sourcing")
)

// sourceScript sources the file passed as $1 and prints the resulting PATH.
// Whatever the file itself prints goes to stderr so stdout carries only PATH.
const sourceScript = `. "$1" >&2 && printf '%s' "$PATH"`

// ReloadEnvironment sources the configured environment file in a shell and
// imports the resulting PATH into this process, so later lookups see the
// directories the installer added.
func (s *System) ReloadEnvironment(ctx context.Context) error {
	envFile := s.opts.EnvFile
	if envFile == "" {
		return errEnvFileNotSet
	}

	envFile = filepath.Clean(envFile)

	if _, err := os.Stat(envFile); err != nil {
		return fmt.Errorf("environment file: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.opts.Shell, "-c", sourceScript, s.opts.Shell, envFile)
	cmd.Stderr = s.opts.Stderr

	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("source %s: %w", envFile, err)
	}

	path := strings.TrimSpace(string(output))
	if path == "" {
		return fmt.Errorf("%s: %w", envFile, errEmptyPath)
	}

	if err = os.Setenv("PATH", path); err != nil {
		return fmt.Errorf("set PATH: %w", err)
	}

	return nil
}
