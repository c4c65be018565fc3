package ca

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adamscao/ovpnbot/internal/runner"
	"github.com/adamscao/ovpnbot/pkg/certutil"
	"github.com/spf13/afero"
)

const (
	easyRSABinary = "easyrsa"
	pkiDir        = "pki"
)

// Options configures the easy-rsa adapter
type Options struct {
	// Dir is the easy-rsa directory containing the easyrsa script and pki/.
	Dir string
	// ValidityDays is passed as --days to easyrsa.
	ValidityDays int
	// Timeout bounds the whole issuance, permission fixup included. Zero disables it.
	Timeout time.Duration
	// FixPermissions enables chmod/chown of pki/ before each issuance.
	FixPermissions bool
	// DirMode is the octal mode given to chmod -R, e.g. "755".
	DirMode string
	// Owner is the user:group given to chown -R, e.g. "root:root".
	Owner string
}

// Authority issues client certificates by running easy-rsa.
// The issued certificate store under pki/ is the source of truth for which
// users exist.
type Authority struct {
	fs     afero.Fs
	runner runner.Runner
	opts   Options
}

// NewAuthority creates a new easy-rsa adapter
func NewAuthority(fs afero.Fs, r runner.Runner, opts Options) *Authority {
	return &Authority{
		fs:     fs,
		runner: r,
		opts:   opts,
	}
}

// Dir returns the easy-rsa directory
func (a *Authority) Dir() string {
	return a.opts.Dir
}

// Available reports whether the easyrsa executable is present
func (a *Authority) Available() bool {
	ok, err := afero.Exists(a.fs, filepath.Join(a.opts.Dir, easyRSABinary))
	return err == nil && ok
}

// IssuedCertPath returns the path of the issued certificate for username
func (a *Authority) IssuedCertPath(username string) string {
	return filepath.Join(a.opts.Dir, pkiDir, "issued", username+".crt")
}

// InlinePath returns the path of the inline credential file for username
func (a *Authority) InlinePath(username string) string {
	return filepath.Join(a.opts.Dir, pkiDir, "inline", "private", username+".inline")
}

// Exists reports whether a certificate was already issued for username
func (a *Authority) Exists(username string) (bool, error) {
	ok, err := afero.Exists(a.fs, a.IssuedCertPath(username))
	if err != nil {
		return false, fmt.Errorf("failed to check certificate store: %w", err)
	}
	return ok, nil
}

// IssueCertificate mints a client certificate and key without passphrase for
// username. The permission fixup, when enabled, runs first and fails with
// ErrPermissionFixup; the easyrsa invocation fails with ErrIssueFailed.
func (a *Authority) IssueCertificate(ctx context.Context, username string) error {
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	if a.opts.FixPermissions {
		if err := a.FixPermissions(ctx); err != nil {
			return err
		}
	}

	args := []string{
		"--batch",
		"--days=" + strconv.Itoa(a.opts.ValidityDays),
		"build-client-full",
		username,
		"nopass",
	}

	return a.run(ctx, ErrIssueFailed, "./"+easyRSABinary, args...)
}

// FixPermissions applies the configured mode and owner to pki/ recursively
func (a *Authority) FixPermissions(ctx context.Context) error {
	if err := a.run(ctx, ErrPermissionFixup, "chmod", "-R", a.opts.DirMode, pkiDir+"/"); err != nil {
		return err
	}
	return a.run(ctx, ErrPermissionFixup, "chown", "-R", a.opts.Owner, pkiDir+"/")
}

// CertificateInfo returns a summary of the certificate issued for username
func (a *Authority) CertificateInfo(username string) (*certutil.Summary, error) {
	data, err := afero.ReadFile(a.fs, a.IssuedCertPath(username))
	if err != nil {
		ok, existsErr := afero.Exists(a.fs, a.IssuedCertPath(username))
		if existsErr == nil && !ok {
			return nil, fmt.Errorf("%w: %s", ErrCertificateNotFound, username)
		}
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}

	return certutil.Summarize(data)
}

// run executes a command inside the easy-rsa directory and converts failures
// into a *CommandError of the given kind.
func (a *Authority) run(ctx context.Context, kind error, name string, args ...string) error {
	command := strings.TrimSpace(name + " " + strings.Join(args, " "))

	res, err := a.runner.Run(ctx, a.opts.Dir, name, args...)
	if err != nil {
		return &CommandError{Kind: kind, Command: command, ExitCode: -1, Err: err}
	}

	if !res.Success() {
		return &CommandError{Kind: kind, Command: command, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}

	return nil
}
