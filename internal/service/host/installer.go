package host

import (
	"context"
	"crypto"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/rust-provisioner/internal/version"

	// Ensure SHA256 available for installer verification.
	_ "crypto/sha256"
)

const (
	// installerFilename is the staged name of the downloaded script.
	installerFilename = "toolchain-installer.sh"
	// installerFileMode is the mode of the staged script.
	installerFileMode os.FileMode = 0o700
	// maxRedirects bounds the redirect chain of the installer download.
	maxRedirects = 10
	// installerChecksumFunction is the digest checked against the configured checksum.
	installerChecksumFunction = crypto.SHA256
)

var (
	// errBadHTTPStatus is returned for non-200 installer responses.
	errBadHTTPStatus = errors.New("unexpected http status")
	// errNotHTTPS is returned when the installer download would leave HTTPS.
	errNotHTTPS = errors.New("non-https URL refused")
	// errTooManyRedirects is returned when the redirect chain is too long.
	errTooManyRedirects = errors.New("too many redirects")
)

// RunRemoteInstaller downloads the script at rawURL over HTTPS (TLS 1.2+),
// stages it on disk, optionally verifying its checksum, and executes it with
// the configured installer arguments. Output is streamed to the configured writers.
func (s *System) RunRemoteInstaller(ctx context.Context, rawURL string) error {
	stagingDir := s.opts.StagingDir
	if stagingDir == "" {
		temporaryDirectory, err := os.MkdirTemp("", "rust-provisioner-")
		if err != nil {
			return fmt.Errorf("create staging directory: %w", err)
		}

		defer func() {
			_ = os.RemoveAll(temporaryDirectory)
		}()

		stagingDir = temporaryDirectory
	}

	scriptPath, err := s.stageInstaller(ctx, rawURL, stagingDir)
	if err != nil {
		return err
	}

	args := append([]string{scriptPath}, s.opts.InstallerArgs...)

	return s.run(ctx, nil, s.opts.Shell, args...)
}

// stageInstaller downloads the installer and writes it into dir.
func (s *System) stageInstaller(ctx context.Context, rawURL, dir string) (string, error) {
	response, err := s.download(ctx, rawURL)
	if response != nil {
		defer func() {
			_ = response.Body.Close()
		}()
	}

	if err != nil {
		return "", err
	}

	target := filepath.Clean(filepath.Join(dir, installerFilename))

	// go-update swaps an existing file, so the target has to exist first.
	if _, err = os.Stat(target); errors.Is(err, os.ErrNotExist) {
		var placeholder *os.File

		placeholder, err = os.OpenFile(target, os.O_CREATE|os.O_WRONLY, installerFileMode)
		if err != nil {
			return "", fmt.Errorf("create installer file: %w", err)
		}

		_ = placeholder.Close()
	}

	options := goupdate.Options{
		TargetPath: target,
		TargetMode: installerFileMode,
		Checksum:   s.opts.InstallerChecksum,
		Hash:       installerChecksumFunction,
	}

	if err = goupdate.Apply(response.Body, options); err != nil {
		return "", fmt.Errorf("stage installer: %w", err)
	}

	return target, nil
}

// download fetches rawURL with the hardened client.
func (s *System) download(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	if err = checkHTTPS(req.URL); err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", version.UserAgent())

	response, err := s.client.Do(req)
	if err != nil {
		return response, fmt.Errorf("download installer: %w", err)
	}

	if response.StatusCode != http.StatusOK {
		return response, fmt.Errorf("%s, %s: %w", rawURL, response.Status, errBadHTTPStatus)
	}

	return response, nil
}

// secureClient derives a client from base that only speaks TLS 1.2+ and only follows HTTPS redirects.
func secureClient(base *http.Client) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}

	client := *base

	var transport *http.Transport

	switch rt := base.Transport.(type) {
	case nil:
		transport = http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // Documented type.
	case *http.Transport:
		transport = rt.Clone()
	}

	if transport != nil {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = new(tls.Config)
		}

		if transport.TLSClientConfig.MinVersion < tls.VersionTLS12 {
			transport.TLSClientConfig.MinVersion = tls.VersionTLS12
		}

		client.Transport = transport
	}

	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return errTooManyRedirects
		}

		return checkHTTPS(req.URL)
	}

	return &client
}

func checkHTTPS(u *url.URL) error {
	if u.Scheme != "https" {
		return fmt.Errorf("%s: %w", u.Redacted(), errNotHTTPS)
	}

	return nil
}
