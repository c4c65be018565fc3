package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// AdminTokenPrefix marks generated admin tokens so they are recognisable in
// config files and secret scanners.
const AdminTokenPrefix = "ovb_"

// adminTokenBytes of entropy, hex encoded after the prefix
const adminTokenBytes = 24

// GenerateAdminToken returns a random admin API token, e.g. "ovb_3f9a..."
func GenerateAdminToken() (string, error) {
	buf := make([]byte, adminTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate admin token: %w", err)
	}
	return AdminTokenPrefix + hex.EncodeToString(buf), nil
}

// HashToken digests a plaintext admin token so the verifier never keeps or
// compares the token itself.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// VerifyToken reports whether token matches digest in constant time
func VerifyToken(token, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(digest)) == 1
}
