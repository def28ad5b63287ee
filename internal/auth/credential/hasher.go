// Package credential derives and verifies the salted password and PIN hashes
// stored on user records. Hashing is PBKDF2-SHA512 with deliberately high
// iteration counts; verification uses constant-time comparison.
package credential

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltBytes is the size of a freshly generated salt.
	SaltBytes = 32

	passwordIterations = 100_000
	passwordKeyLen     = 64

	// PIN space is tiny; the PIN is a second factor behind the password-stage
	// rate limiter, so a lower iteration count is acceptable.
	pinIterations = 50_000
	pinKeyLen     = 32
)

var (
	ErrEmptySecret = errors.New("credential: empty password or pin")
	ErrEmptySalt   = errors.New("credential: empty salt")
)

// GenerateSalt returns a new cryptographically random salt, hex encoded.
func GenerateSalt() (string, error) {
	buf := make([]byte, SaltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashPassword derives the password hash. If salt is empty a new salt is
// generated; the salt actually used is returned alongside the hash. The
// derivation is deterministic for a given password+salt pair.
func HashPassword(password, salt string) (hash, usedSalt string, err error) {
	if password == "" {
		return "", "", ErrEmptySecret
	}
	if salt == "" {
		salt, err = GenerateSalt()
		if err != nil {
			return "", "", err
		}
	}
	key := pbkdf2.Key([]byte(password), []byte(salt), passwordIterations, passwordKeyLen, sha512.New)
	return hex.EncodeToString(key), salt, nil
}

// VerifyPassword recomputes the hash and compares in constant time.
func VerifyPassword(password, hash, salt string) bool {
	if password == "" || hash == "" || salt == "" {
		return false
	}
	candidate, _, err := HashPassword(password, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(hash)) == 1
}

// HashPin derives the PIN hash under the user's existing salt. Unlike
// HashPassword it never generates a salt: the PIN always shares the salt
// derived for the password.
func HashPin(pin, salt string) (string, error) {
	if pin == "" {
		return "", ErrEmptySecret
	}
	if salt == "" {
		return "", ErrEmptySalt
	}
	key := pbkdf2.Key([]byte(pin), []byte(salt), pinIterations, pinKeyLen, sha512.New)
	return hex.EncodeToString(key), nil
}

// VerifyPin recomputes the PIN hash and compares in constant time.
func VerifyPin(pin, hash, salt string) bool {
	if pin == "" || hash == "" || salt == "" {
		return false
	}
	candidate, err := HashPin(pin, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(hash)) == 1
}
