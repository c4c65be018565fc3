package ca

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotAvailable means the easyrsa executable is missing from the CA directory.
	ErrNotAvailable = errors.New("easy-rsa not found on host")

	// ErrPermissionFixup means chmod/chown of the pki directory failed.
	ErrPermissionFixup = errors.New("failed to fix pki permissions")

	// ErrIssueFailed means easyrsa build-client-full did not succeed.
	ErrIssueFailed = errors.New("certificate issuance failed")

	// ErrCertificateNotFound means no issued certificate exists for a username.
	ErrCertificateNotFound = errors.New("certificate not found")
)

// CommandError carries the diagnostics of a failed CA-side command.
// Stderr is kept verbatim.
type CommandError struct {
	Kind     error
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Command, e.Err)
	}

	msg := fmt.Sprintf("%v: %s exited with status %d", e.Kind, e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Unwrap exposes both the error kind and the underlying cause.
func (e *CommandError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Diagnostic returns the text to show to an operator: the tool's stderr if
// any, otherwise the error message.
func (e *CommandError) Diagnostic() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return e.Error()
}
