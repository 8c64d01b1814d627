package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Verifier compares a supplied secret against a stored credential. The
// validator's state machine is hashing-agnostic; installing a different
// Verifier changes the comparison without touching the flow.
type Verifier interface {
	Verify(secret, stored string) error
}

var errMismatch = errors.New("auth: password mismatch")

// HashPassword hashes a plaintext password with bcrypt for storage.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// BcryptVerifier verifies bcrypt hashes.
type BcryptVerifier struct{}

func (BcryptVerifier) Verify(secret, stored string) error {
	if stored == "" {
		return errMismatch
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(secret)); err != nil {
		return errMismatch
	}
	return nil
}

// Argon2Verifier verifies encoded argon2id hashes of the form
// $argon2id$v=19$m=65536,t=2,p=1$<salt>$<hash>.
type Argon2Verifier struct{}

func (Argon2Verifier) Verify(secret, stored string) error {
	parts := strings.Split(stored, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return errMismatch
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return errMismatch
	}
	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return errMismatch
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return errMismatch
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return errMismatch
	}
	got := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, uint32(len(want)))
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return errMismatch
	}
	return nil
}

// LegacyVerifier compares plaintext secrets in constant time. It exists for
// records imported from the predecessor system that stored secrets verbatim;
// new records are bcrypt hashed on write.
type LegacyVerifier struct{}

func (LegacyVerifier) Verify(secret, stored string) error {
	// Digest both sides first so neither length nor prefix leaks timing.
	a := sha256.Sum256([]byte(secret))
	b := sha256.Sum256([]byte(stored))
	if subtle.ConstantTimeCompare(a[:], b[:]) != 1 {
		return errMismatch
	}
	return nil
}

// AutoVerifier dispatches on the stored value's format so mixed credential
// generations can coexist in one table.
type AutoVerifier struct{}

func (AutoVerifier) Verify(secret, stored string) error {
	switch {
	case strings.HasPrefix(stored, "$argon2id$"):
		return Argon2Verifier{}.Verify(secret, stored)
	case strings.HasPrefix(stored, "$2a$"), strings.HasPrefix(stored, "$2b$"), strings.HasPrefix(stored, "$2y$"):
		return BcryptVerifier{}.Verify(secret, stored)
	default:
		return LegacyVerifier{}.Verify(secret, stored)
	}
}
