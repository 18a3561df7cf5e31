package identity

import (
	"sync"
	"testing"
)

func TestUserCacheAddAndLookup(t *testing.T) {
	c := NewUserCache()

	u := &User{ID: 1, Username: "jdoe", Credential: "secret"}
	if err := c.Add(u); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	id, ok := c.Lookup("jdoe", "secret")
	if !ok || id != 1 {
		t.Fatalf("Lookup() = (%d, %v), want (1, true)", id, ok)
	}
}

func TestUserCacheLookupWrongCredentialFails(t *testing.T) {
	c := NewUserCache()
	_ = c.Add(&User{ID: 1, Username: "jdoe", Credential: "secret"})

	if id, ok := c.Lookup("jdoe", "wrong"); ok || id != -1 {
		t.Fatalf("Lookup() = (%d, %v), want (-1, false)", id, ok)
	}
}

func TestUserCacheAddDuplicateUsername(t *testing.T) {
	c := NewUserCache()
	_ = c.Add(&User{ID: 1, Username: "jdoe", Credential: "secret"})

	err := c.Add(&User{ID: 2, Username: "jdoe", Credential: "other"})
	if err != ErrDuplicateUser {
		t.Fatalf("Add() error = %v, want ErrDuplicateUser", err)
	}
}

func TestUserCacheCheck(t *testing.T) {
	c := NewUserCache()
	_ = c.Add(&User{ID: 1, Username: "jdoe", Credential: "secret"})

	if !c.Check("jdoe", "secret") {
		t.Fatal("Check() = false, want true")
	}
	if c.Check("jdoe", "wrong") {
		t.Fatal("Check() = true, want false")
	}
}

func TestUserCacheLookupVerifiesHashedCredential(t *testing.T) {
	h := NewBcryptHasher()
	c := NewUserCacheWithHasher(h)

	hash, err := h.Hash("correct-horse-battery")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if err := c.Add(&User{ID: 1, Username: "jdoe", Credential: hash, HashOnSet: true}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if id, ok := c.Lookup("jdoe", "correct-horse-battery"); !ok || id != 1 {
		t.Fatalf("Lookup() = (%d, %v), want (1, true)", id, ok)
	}
	if _, ok := c.Lookup("jdoe", "wrong-password"); ok {
		t.Fatal("Lookup() = true for the wrong plaintext against a hashed credential, want false")
	}
}

func TestUserCacheWithoutHasherNeverMatchesHashedUser(t *testing.T) {
	c := NewUserCache()
	hash, _ := NewBcryptHasher().Hash("correct-horse-battery")
	_ = c.Add(&User{ID: 1, Username: "jdoe", Credential: hash, HashOnSet: true})

	if _, ok := c.Lookup("jdoe", "correct-horse-battery"); ok {
		t.Fatal("Lookup() matched a hashed user with no hasher wired, want false")
	}
}

func TestUserCacheConcurrentAdds(t *testing.T) {
	c := NewUserCache()
	a := NewIDAllocator()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := a.Next()
			_ = c.Add(&User{ID: id, Username: string(rune('a' + i)), Credential: "secret"})
		}(i)
	}
	wg.Wait()

	if got := c.Len(); got != 50 {
		t.Fatalf("Len() = %d, want 50", got)
	}
}
