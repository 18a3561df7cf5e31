package identity

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the default cost parameter for bcrypt hashing.
const DefaultBcryptCost = 10

// ErrInvalidCredentials is returned when a credential comparison fails.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrCredentialTooShort is returned when a credential is too short.
var ErrCredentialTooShort = errors.New("credential must be at least 8 characters")

// ErrCredentialTooLong is returned when a credential is too long.
// bcrypt has a maximum input length of 72 bytes.
var ErrCredentialTooLong = errors.New("credential must be at most 72 characters")

// MinCredentialLength is the minimum required credential length.
const MinCredentialLength = 8

// MaxCredentialLength is the maximum allowed credential length.
const MaxCredentialLength = 72

// CredentialHasher turns a plaintext credential into the form stored on a
// User when HashOnSet is true, and verifies a plaintext credential against
// that stored form at lookup time. A user's HashOnSet flag records which
// comparison C2 must use for that user — plain equality for unhashed
// credentials, Verify for hashed ones.
type CredentialHasher interface {
	Hash(plaintext string) (string, error)
	Verify(stored, plaintext string) bool
}

// BcryptHasher is the default CredentialHasher.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a BcryptHasher using DefaultBcryptCost.
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{Cost: DefaultBcryptCost}
}

// Hash bcrypt-hashes plaintext after validating its length.
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	if err := ValidateCredential(plaintext); err != nil {
		return "", err
	}
	cost := h.Cost
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether plaintext matches a bcrypt hash previously
// produced by Hash.
func (h *BcryptHasher) Verify(stored, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plaintext)) == nil
}

// ValidateCredential checks that a plaintext credential meets the length
// requirements enforced before hashing.
func ValidateCredential(plaintext string) error {
	if len(plaintext) < MinCredentialLength {
		return ErrCredentialTooShort
	}
	if len(plaintext) > MaxCredentialLength {
		return ErrCredentialTooLong
	}
	return nil
}
