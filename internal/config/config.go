package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the provisioning plan and the settings shared by the binaries.
// Every field is optional; Validate fills in defaults.
type Config struct {
	// Packages is the ordered list installed in a single apt-get invocation.
	Packages []string `yaml:"packages"`
	// DownloadTool is the HTTP client installed when missing from PATH.
	DownloadTool string `yaml:"download_tool"`
	// InstallerURL is the HTTPS location of the toolchain installer script.
	InstallerURL string `yaml:"installer_url"`
	// InstallerArgs are passed to the installer script.
	InstallerArgs []string `yaml:"installer_args"`
	// InstallerSHA256 is an optional hex digest the downloaded script must match.
	InstallerSHA256 string `yaml:"installer_sha256"`
	// EnvFile is the shell file written by the installer that extends PATH.
	EnvFile string `yaml:"env_file"`
	// ToolchainBinary is the command resolved and queried for its version at the end.
	ToolchainBinary string `yaml:"toolchain_binary"`
	// ReportFile is the path to the JSON report of the latest run.
	ReportFile string `yaml:"report_file"`
	// StatusAddress is the gRPC address of the provision-status server.
	StatusAddress string `yaml:"status_addr"`
	// BusyProcesses are process names that make the install steps fail fast
	// instead of waiting on the dpkg lock. An empty list disables the check.
	BusyProcesses []string `yaml:"busy_processes"`
	// Timeout is the duration for status RPC calls.
	Timeout time.Duration `yaml:"timeout"`
	// LogLevel is the minimum level of log messages.
	LogLevel string `yaml:"log_level"`
}

const (
	// DefaultConfigFilename is the default filename for provisioner settings.
	DefaultConfigFilename = "rust-provisioner.yaml"

	// DefaultReportFilename is the default filename for the latest run report.
	DefaultReportFilename = "rust-provisioner-report.json"

	// DefaultDownloadTool is installed when it cannot be found on PATH.
	DefaultDownloadTool = "curl"

	// DefaultInstallerURL is the rustup installer endpoint.
	DefaultInstallerURL = "https://sh.rustup.rs"

	// DefaultEnvFile is written by rustup and prepends ~/.cargo/bin to PATH.
	DefaultEnvFile = "$HOME/.cargo/env"

	// DefaultToolchainBinary is the compiler checked by the verification step.
	DefaultToolchainBinary = "rustc"

	// DefaultStatusAddress is where provision-status listens by default.
	DefaultStatusAddress = "127.0.0.1:50061"

	// DefaultLogLevel is used when no level is configured.
	DefaultLogLevel = "info"

	// DefaultTimeout is the default duration for status RPC calls.
	DefaultTimeout = 5 * time.Second

	// DefaultFilePermissions is the default file permission for config and report files.
	DefaultFilePermissions = 0o600
)

// DefaultPackages returns the build dependencies installed by default:
// the C toolchain, pkg-config, OpenSSL headers, the PC/SC smart card stack
// and the font/keyboard libraries needed by native GUI crates.
func DefaultPackages() []string {
	return []string{
		"build-essential",
		"pkg-config",
		"libssl-dev",
		"libpcsclite-dev",
		"pcscd",
		"libfontconfig1-dev",
		"libxkbcommon-dev",
	}
}

// DefaultBusyProcesses returns the package manager front-ends that hold the dpkg lock
// for as long as they run. The unattended-upgrades daemons are left out: their
// shutdown helper runs permanently on Ubuntu under the same truncated name and
// holds no lock.
func DefaultBusyProcesses() []string {
	return []string{"apt", "apt-get", "aptitude", "dpkg"}
}

// DefaultInstallerArgs returns the flags that make rustup run non-interactively.
func DefaultInstallerArgs() []string {
	return []string{"-y"}
}

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInstallerNotHTTPS is returned when the installer would be fetched over plain HTTP.
	errInstallerNotHTTPS = errors.New("installer URL must use https")
	// errEmptyPackageName is returned for blank entries in the package list.
	errEmptyPackageName = errors.New("package name must not be empty")
	// errBadChecksum is returned when the installer checksum is not a SHA-256 hex digest.
	errBadChecksum = errors.New("installer checksum must be a hex encoded SHA-256 digest")
	// errBadPackageName is returned for package names apt-get would parse as options.
	errBadPackageName = errors.New("package name must not start with '-'")
)

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := new(Config)

	// Defaults always validate.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOptional behaves like Load but returns defaults when the file does not exist.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	return cfg, err
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills in defaults and checks the provided settings for formatting errors.
//
//nolint:cyclop // A flat list of defaults reads better than helpers.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if len(settings.Packages) == 0 {
		settings.Packages = DefaultPackages()
	}

	for _, name := range settings.Packages {
		if strings.TrimSpace(name) == "" {
			return errEmptyPackageName
		}

		if strings.HasPrefix(name, "-") {
			return fmt.Errorf("%q: %w", name, errBadPackageName)
		}
	}

	if settings.DownloadTool == "" {
		settings.DownloadTool = DefaultDownloadTool
	}

	if settings.InstallerURL == "" {
		settings.InstallerURL = DefaultInstallerURL
	}

	installerURL, err := url.ParseRequestURI(settings.InstallerURL)
	if err != nil {
		return fmt.Errorf("invalid installer URL: %w", err)
	}

	if installerURL.Scheme != "https" {
		return fmt.Errorf("%s: %w", settings.InstallerURL, errInstallerNotHTTPS)
	}

	if settings.InstallerArgs == nil {
		settings.InstallerArgs = DefaultInstallerArgs()
	}

	if err = validateChecksum(settings.InstallerSHA256); err != nil {
		return err
	}

	if settings.BusyProcesses == nil {
		settings.BusyProcesses = DefaultBusyProcesses()
	}

	if settings.EnvFile == "" {
		settings.EnvFile = DefaultEnvFile
	}

	if settings.ToolchainBinary == "" {
		settings.ToolchainBinary = DefaultToolchainBinary
	}

	if settings.ReportFile == "" {
		settings.ReportFile = DefaultReportFilename
	}

	if settings.StatusAddress == "" {
		settings.StatusAddress = DefaultStatusAddress
	}

	if _, _, err = net.SplitHostPort(settings.StatusAddress); err != nil {
		return fmt.Errorf("invalid status address: %w", err)
	}

	// Set default timeout if not specified
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.LogLevel == "" {
		settings.LogLevel = DefaultLogLevel
	}

	return nil
}

// ExpandedEnvFile returns EnvFile with $HOME and other variables substituted.
// An empty result means the variables it depends on are not set.
func (c *Config) ExpandedEnvFile() string {
	return os.ExpandEnv(c.EnvFile)
}

// ExpandedReportFile returns ReportFile with environment variables substituted.
func (c *Config) ExpandedReportFile() string {
	return filepath.Clean(os.ExpandEnv(c.ReportFile))
}

// InstallerChecksum returns the decoded installer digest, or nil when none is configured.
func (c *Config) InstallerChecksum() []byte {
	if c.InstallerSHA256 == "" {
		return nil
	}

	// Validate has already checked the encoding.
	checksum, _ := hex.DecodeString(strings.ToLower(c.InstallerSHA256))

	return checksum
}

// BusyProcessList returns a copy of the busy process names.
// The result is never nil, so an emptied list keeps the check disabled.
func (c *Config) BusyProcessList() []string {
	if c.BusyProcesses == nil {
		return []string{}
	}

	return slices.Clone(c.BusyProcesses)
}

// PackageList returns a copy of the package list.
func (c *Config) PackageList() []string {
	return slices.Clone(c.Packages)
}

// sha256Size is the length of a SHA-256 digest in bytes.
const sha256Size = 32

func validateChecksum(value string) error {
	if value == "" {
		return nil
	}

	decoded, err := hex.DecodeString(strings.ToLower(value))
	if err != nil || len(decoded) != sha256Size {
		return errBadChecksum
	}

	return nil
}
