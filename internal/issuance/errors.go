package issuance

import (
	"errors"
	"fmt"
)

// Kind classifies a CreateUser failure
type Kind string

// Failure kinds
const (
	KindInvalidUsername           Kind = "invalid_username"
	KindCANotAvailable            Kind = "ca_not_available"
	KindUserAlreadyExists         Kind = "user_exists"
	KindCertificateIssuanceFailed Kind = "certificate_issuance_failed"
	KindConfigAssemblyFailed      Kind = "config_assembly_failed"
)

// Pipeline stages
const (
	StageValidation   = "validation"
	StagePrerequisite = "prerequisite"
	StageUniqueness   = "uniqueness"
	StagePermissions  = "permissions"
	StageCertificate  = "certificate"
	StageAssembly     = "assembly"
)

// Sentinels matched by *Error through errors.Is
var (
	ErrInvalidUsername           = errors.New("invalid username")
	ErrCANotAvailable            = errors.New("certificate authority not available")
	ErrUserAlreadyExists         = errors.New("user already exists")
	ErrCertificateIssuanceFailed = errors.New("certificate issuance failed")
	ErrConfigAssemblyFailed      = errors.New("config assembly failed")

	// ErrPartialIssuance matches failures that left a certificate issued
	// without a client config. Such users need manual reconciliation.
	ErrPartialIssuance = errors.New("certificate issued but client config missing")
)

var kindSentinels = map[Kind]error{
	KindInvalidUsername:           ErrInvalidUsername,
	KindCANotAvailable:            ErrCANotAvailable,
	KindUserAlreadyExists:         ErrUserAlreadyExists,
	KindCertificateIssuanceFailed: ErrCertificateIssuanceFailed,
	KindConfigAssemblyFailed:      ErrConfigAssemblyFailed,
}

// Error is returned by CreateUser for every failure.
// Detail carries the diagnostic text to show to the operator verbatim
// (tool stderr or the underlying error message).
type Error struct {
	Kind     Kind
	Username string
	Stage    string
	Partial  bool
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("create user %q: %s at stage %s", e.Username, kindSentinels[e.Kind], e.Stage)
	if e.Partial {
		msg += " (" + ErrPartialIssuance.Error() + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error kind and, for partial issuances,
// ErrPartialIssuance.
func (e *Error) Is(target error) bool {
	if target == ErrPartialIssuance {
		return e.Partial
	}
	return kindSentinels[e.Kind] == target
}

// AsError returns the *Error in err's chain, if any
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
