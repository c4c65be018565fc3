package certutil

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// ErrNoCertificate is returned when the input holds no PEM CERTIFICATE block
var ErrNoCertificate = errors.New("no PEM certificate found")

// Summary describes an issued client certificate
type Summary struct {
	Subject     string    `json:"subject"`
	Issuer      string    `json:"issuer"`
	Serial      string    `json:"serial"`
	NotBefore   time.Time `json:"not_before"`
	NotAfter    time.Time `json:"not_after"`
	Fingerprint string    `json:"fingerprint"`
}

// ParseCertificate returns the first CERTIFICATE block of pemData.
// Text preceding the block (easy-rsa writes an openssl dump there) is skipped.
func ParseCertificate(pemData []byte) (*x509.Certificate, error) {
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, ErrNoCertificate
		}
		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		return cert, nil
	}
}

// GetFingerprint calculates the SHA256 fingerprint of a PEM certificate
func GetFingerprint(pemData []byte) (string, error) {
	cert, err := ParseCertificate(pemData)
	if err != nil {
		return "", err
	}
	return fingerprint(cert), nil
}

// Summarize extracts the displayable fields of a PEM certificate
func Summarize(pemData []byte) (*Summary, error) {
	cert, err := ParseCertificate(pemData)
	if err != nil {
		return nil, err
	}

	return &Summary{
		Subject:     cert.Subject.String(),
		Issuer:      cert.Issuer.String(),
		Serial:      formatSerial(cert.SerialNumber),
		NotBefore:   cert.NotBefore,
		NotAfter:    cert.NotAfter,
		Fingerprint: fingerprint(cert),
	}, nil
}

// FingerprintMatches checks if two PEM certificates have the same fingerprint
func FingerprintMatches(cert1, cert2 []byte) (bool, error) {
	fp1, err := GetFingerprint(cert1)
	if err != nil {
		return false, err
	}

	fp2, err := GetFingerprint(cert2)
	if err != nil {
		return false, err
	}

	return fp1 == fp2, nil
}

func fingerprint(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.Raw)
	return fmt.Sprintf("SHA256:%s", base64.RawStdEncoding.EncodeToString(hash[:]))
}

func formatSerial(n *big.Int) string {
	if n == nil {
		return ""
	}
	return fmt.Sprintf("%X", n)
}
