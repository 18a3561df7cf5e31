package identity

import (
	"strings"
	"testing"
)

func TestBcryptHasherHash(t *testing.T) {
	h := NewBcryptHasher()

	hash, err := h.Hash("test-credential-123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2a$") && !strings.HasPrefix(hash, "$2b$") {
		t.Fatalf("Hash() = %q, want bcrypt format", hash)
	}
}

func TestBcryptHasherRejectsShortCredential(t *testing.T) {
	h := NewBcryptHasher()

	if _, err := h.Hash("short"); err != ErrCredentialTooShort {
		t.Fatalf("Hash() error = %v, want ErrCredentialTooShort", err)
	}
}

func TestBcryptHasherRejectsLongCredential(t *testing.T) {
	h := NewBcryptHasher()

	if _, err := h.Hash(strings.Repeat("a", 73)); err != ErrCredentialTooLong {
		t.Fatalf("Hash() error = %v, want ErrCredentialTooLong", err)
	}
}

func TestValidateCredential(t *testing.T) {
	if err := ValidateCredential("12345678"); err != nil {
		t.Fatalf("ValidateCredential() error = %v, want nil", err)
	}
}

func TestBcryptHasherVerifyRoundTrips(t *testing.T) {
	h := NewBcryptHasher()

	hash, err := h.Hash("correct-horse-battery")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !h.Verify(hash, "correct-horse-battery") {
		t.Error("Verify() = false for the correct plaintext, want true")
	}
	if h.Verify(hash, "wrong-password") {
		t.Error("Verify() = true for the wrong plaintext, want false")
	}
}
