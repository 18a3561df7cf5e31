package identity

import (
	"errors"
	"sync"
)

// ErrUserNotFound is returned when a lookup or check matches no user.
var ErrUserNotFound = errors.New("user not found")

// ErrDuplicateUser is returned by Add when the username is already cached.
var ErrDuplicateUser = errors.New("user already exists")

// UserCache is the in-memory user cache (C2). Lookups scan the cache in
// insertion order and compare credentials by plain equality, per §4.2 —
// there is no indexing at this layer. A user whose HashOnSet flag is set
// carries a hash instead of a plaintext credential; verifying it then goes
// through the cache's hasher rather than plain equality.
type UserCache struct {
	mu     sync.Mutex
	users  []*User
	hasher CredentialHasher // nil: no HashOnSet user can ever match
}

// NewUserCache creates an empty cache that only ever compares credentials
// by plain equality; any user added with HashOnSet true can never be
// looked up successfully.
func NewUserCache() *UserCache {
	return &UserCache{}
}

// NewUserCacheWithHasher creates an empty cache that verifies HashOnSet
// users' credentials through hasher, and unhashed users' by plain equality.
func NewUserCacheWithHasher(hasher CredentialHasher) *UserCache {
	return &UserCache{hasher: hasher}
}

// Add inserts a user into the cache (addUserToCache). Returns
// ErrDuplicateUser if the username is already present.
func (c *UserCache) Add(u *User) error {
	if err := u.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.users {
		if existing.Username == u.Username {
			return ErrDuplicateUser
		}
	}
	c.users = append(c.users, u)
	return nil
}

// Lookup returns the id of the user matching username and credential
// (getUserIdFromCache). ok is false, and id is -1, if no user matches.
func (c *UserCache) Lookup(username, credential string) (id int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, u := range c.users {
		if u.Username != username {
			continue
		}
		if u.HashOnSet {
			if c.hasher != nil && c.hasher.Verify(u.Credential, credential) {
				return u.ID, true
			}
			continue
		}
		if u.Credential == credential {
			return u.ID, true
		}
	}
	return -1, false
}

// Check reports whether username/credential matches a cached user
// (checkUser).
func (c *UserCache) Check(username, credential string) bool {
	_, ok := c.Lookup(username, credential)
	return ok
}

// Get returns the cached user with the given id, if present.
func (c *UserCache) Get(id int64) (*User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, u := range c.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

// Len returns the number of cached users. Primarily for tests.
func (c *UserCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.users)
}
