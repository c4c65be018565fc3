package auth

import (
	"errors"
)

var (
	ErrTokenRequired = errors.New("admin token required")
	ErrInvalidToken  = errors.New("invalid admin token")
	ErrTOTPRequired  = errors.New("TOTP code required")
	ErrInvalidTOTP   = errors.New("invalid TOTP code")
)

// AdminCredentials holds the configured admin API secrets. Exactly one of
// Token and TokenHash is normally set; TOTPSecret enables a second factor.
type AdminCredentials struct {
	Token      string
	TokenHash  string
	TOTPSecret string
}

// AdminVerifier checks admin API credentials
type AdminVerifier struct {
	tokenDigest string
	tokenHash   string
	totpSecret  string
}

// NewAdminVerifier creates a verifier for creds
func NewAdminVerifier(creds AdminCredentials) *AdminVerifier {
	v := &AdminVerifier{
		tokenHash:  creds.TokenHash,
		totpSecret: creds.TOTPSecret,
	}
	if creds.Token != "" {
		v.tokenDigest = HashToken(creds.Token)
	}
	return v
}

// RequiresTOTP reports whether a second factor is configured
func (v *AdminVerifier) RequiresTOTP() bool {
	return v.totpSecret != ""
}

// Verify checks the presented token and, when configured, the TOTP code
func (v *AdminVerifier) Verify(token, code string) error {
	if token == "" {
		return ErrTokenRequired
	}

	ok := false
	if v.tokenDigest != "" && VerifyToken(token, v.tokenDigest) {
		ok = true
	}
	if !ok && v.tokenHash != "" && VerifySecret(token, v.tokenHash) {
		ok = true
	}
	if !ok {
		return ErrInvalidToken
	}

	if !v.RequiresTOTP() {
		return nil
	}
	if code == "" {
		return ErrTOTPRequired
	}

	valid, err := ValidateTOTP(v.totpSecret, code)
	if err != nil || !valid {
		return ErrInvalidTOTP
	}

	return nil
}
