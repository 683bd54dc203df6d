package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// GenerateSecureToken returns n random bytes, URL-safe base64 encoded. It backs
// CSRF tokens and CSP nonces.
func GenerateSecureToken(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("token length must be positive, got %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
