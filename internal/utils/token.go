package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// SessionTokenBytes is the amount of randomness in a session token.
const SessionTokenBytes = 32

// ErrMalformedToken is returned when a token does not decode to the expected size.
var ErrMalformedToken = errors.New("malformed token")

// GenerateSessionToken returns a random token encoded as unpadded base64url.
func GenerateSessionToken() (string, error) {
	raw := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// ValidateSessionToken checks the token shape without touching storage.
func ValidateSessionToken(token string) error {
	if base64.RawURLEncoding.EncodedLen(SessionTokenBytes) != len(token) {
		return ErrMalformedToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != SessionTokenBytes {
		return ErrMalformedToken
	}
	return nil
}

// HashSessionToken derives the storage key for a token.
func HashSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
