package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
)

// RefreshTokenBytes is the entropy of an opaque refresh token (512 bits).
const RefreshTokenBytes = 64

// NewSessionID returns a random UUIDv4 session identifier.
func NewSessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewTokenID returns a random UUIDv4 suitable for a JWT jti.
func NewTokenID() (string, error) {
	return NewSessionID()
}

// NewRefreshTokenValue returns RefreshTokenBytes of CSPRNG output, base64url
// encoded without padding.
func NewRefreshTokenValue() (string, error) {
	var raw [RefreshTokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashRefreshToken returns the hex SHA-256 of a refresh token value. Only the
// hash is ever persisted.
func HashRefreshToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// ValidRefreshTokenFormat reports whether value decodes to exactly
// RefreshTokenBytes. It lets callers reject garbage before touching storage.
func ValidRefreshTokenFormat(value string) error {
	if len(value) != base64.RawURLEncoding.EncodedLen(RefreshTokenBytes) {
		return errors.New("invalid refresh token size")
	}
	if _, err := base64.RawURLEncoding.DecodeString(value); err != nil {
		return err
	}
	return nil
}
