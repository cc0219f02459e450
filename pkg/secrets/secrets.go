// Package secrets generates and checks door terminal keys.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	dErrors "ghostpass/pkg/domain-errors"
)

// KeyPrefix marks terminal keys so they are recognisable in config and leak scanners.
const KeyPrefix = "gpk_"

// GenerateKey creates a random terminal key.
func GenerateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate key")
	}
	return KeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash returns the bcrypt hash stored in the station key file.
func Hash(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", dErrors.New(dErrors.CodeValidation, "key cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeValidation, "key is too long")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not hash key")
	}
	return string(hashed), nil
}

// Verify checks a presented key against its stored hash.
func Verify(key, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid key")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not verify key")
	}
	return nil
}
