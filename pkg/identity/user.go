package identity

import (
	"fmt"
	"sync"
)

// User is a database user record (C1). Credential is compared by plain
// equality in the cache (§4.2) unless HashOnSet is true, in which case it
// holds a hash and the cache verifies it through a CredentialHasher
// instead.
type User struct {
	ID         int64
	Username   string
	Credential string
	Email      string
	HashOnSet  bool
}

// Validate checks that the user has the minimum fields required to be
// inserted into the cache.
func (u *User) Validate() error {
	if u.Username == "" {
		return fmt.Errorf("username is required")
	}
	if u.Credential == "" {
		return fmt.Errorf("credential is required")
	}
	return nil
}

// IDAllocator hands out strictly increasing positive user ids (§4.1).
type IDAllocator struct {
	mu   sync.Mutex
	next int64
}

// NewIDAllocator creates an allocator whose first Next() call returns 1.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{next: 1}
}

// Next returns the next id and advances the counter.
func (a *IDAllocator) Next() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	a.next++
	return id
}
