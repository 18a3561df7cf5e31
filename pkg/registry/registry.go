// Package registry implements the session registry and external dispatch
// API (C8/C9): the single point external callers (CLI, RPC handlers,
// tests) go through to start sessions and submit work to them.
package registry

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/tupledb/tupledb/internal/logger"
	"github.com/tupledb/tupledb/pkg/bufpool"
	"github.com/tupledb/tupledb/pkg/identity"
	"github.com/tupledb/tupledb/pkg/session"
)

// ErrNoSessionForCredentials is returned when a dispatch call's
// (sessionName, sessionCred) pair matches no registered, authenticated
// session (spec.md §4.6's checkUserProcess contract).
var ErrNoSessionForCredentials = errors.New("no session for credentials")

// TransactionAllocator hands out strictly increasing transaction ids,
// independent of identity.IDAllocator's user ids.
type TransactionAllocator struct {
	mu   sync.Mutex
	next int64
}

// NewTransactionAllocator creates an allocator whose first Next() returns 1.
func NewTransactionAllocator() *TransactionAllocator {
	return &TransactionAllocator{next: 1}
}

// Next returns the next transaction id and advances the counter
// (getTransactionAndIncrement).
func (a *TransactionAllocator) Next() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	a.next++
	return id
}

// Registry is the session registry (C8). It holds references to sessions,
// it does not own their lifecycle beyond Start/Stop.
//
// The registry is an ordered, push-only sequence of session references
// (spec.md §5): startSession appends, waitForAllProcessesToFinish drains.
// Entries are never reused or removed individually.
//
// Lock ordering: Registry.mu is always acquired before a Session's own
// internal mutex is touched (via Session methods). Dispatch methods below
// scan the registry under Registry.mu, release it, and only then call into
// the session — they never call into a session while holding Registry.mu.
type Registry struct {
	mu       sync.RWMutex
	sessions []*session.Session

	txns       *TransactionAllocator
	ids        *identity.IDAllocator
	users      *identity.UserCache
	pool       *bufpool.Pool
	hasher     identity.CredentialHasher
	encoder    session.Encoder
	tablePath  string
	sessionTTL int64 // seconds, see Config
	queueDepth int
}

// Config configures a Registry.
type Config struct {
	TablePath         string
	SessionTTLSeconds int64
	QueueDepth        int
}

// New constructs a Registry with its owned allocators and user cache,
// around the caller-supplied buffer pool. This is the Runtime aggregate referenced in SPEC_FULL.md's
// REDESIGN FLAGS: a single explicit value, not package globals.
func New(cfg Config, pool *bufpool.Pool, hasher identity.CredentialHasher, encoder session.Encoder) *Registry {
	users := identity.NewUserCache()
	if hasher != nil {
		users = identity.NewUserCacheWithHasher(hasher)
	}
	return &Registry{
		txns:       NewTransactionAllocator(),
		ids:        identity.NewIDAllocator(),
		users:      users,
		pool:       pool,
		hasher:     hasher,
		encoder:    encoder,
		tablePath:  cfg.TablePath,
		sessionTTL: cfg.SessionTTLSeconds,
		queueDepth: cfg.QueueDepth,
	}
}

// SignUp creates a C1 user record and inserts it into the cache,
// optionally hashing the credential first (supplemented feature — see
// SPEC_FULL.md §6).
func (r *Registry) SignUp(username, credential, email string, hashOnSet bool) (*identity.User, error) {
	stored := credential
	if hashOnSet {
		hashed, err := r.hasher.Hash(credential)
		if err != nil {
			return nil, err
		}
		stored = hashed
	}

	u := &identity.User{
		ID:         r.ids.Next(),
		Username:   username,
		Credential: stored,
		Email:      email,
		HashOnSet:  hashOnSet,
	}
	if err := r.users.Add(u); err != nil {
		return nil, err
	}
	return u, nil
}

// StartSession authenticates username/credential, allocates a transaction
// id, and starts a new Session worker. Per O2, the session is always
// registered, even when authentication fails; callers must check the
// returned userID (-1 means unauthenticated) before trusting dispatch
// calls against it to do anything. The returned txnID is a diagnostic
// handle, not a dispatch key — dispatch calls (AddBUser/AddTuple/AddTable/
// CheckUserProcess) address a session by the (username, credential) pair
// it was started with, per spec.md §4.6.
func (r *Registry) StartSession(ctx context.Context, username, credential string) (txnID int64, userID int64, err error) {
	txnID = r.txns.Next()

	s := session.New(
		sessionIDFromTxn(txnID),
		session.Config{
			TransactionID: txnID,
			TablePath:     r.tablePath,
			TTL:           ttlDuration(r.sessionTTL),
			QueueCapacity: r.queueDepth,
		},
		session.Sinks{
			Pool:        r.pool,
			UserCache:   r.users,
			IDAllocator: r.ids,
			Hasher:      r.hasher,
			Encoder:     r.encoder,
		},
	)

	startErr := s.Start(ctx, username, credential)

	r.mu.Lock()
	r.sessions = append(r.sessions, s)
	r.mu.Unlock()

	if startErr != nil {
		logger.Warn("startSession authentication failed", "username", username, logger.TransactionID(txnID))
		return txnID, -1, startErr
	}
	return txnID, s.UserID(), nil
}

// findSession scans the registry under its mutex for an authenticated
// session whose bound credentials match (username, credential) —
// checkUserProcess's underlying scan, spec.md §4.6. Sessions with userID -1
// are skipped; returns the first remaining match in registration order.
func (r *Registry) findSession(username, credential string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.UserID() != -1 && s.Matches(username, credential) {
			return s, true
		}
	}
	return nil, false
}

// dispatch resolves (sessionName, sessionCred) to an authenticated,
// submittable session, or ErrNoSessionForCredentials explaining why not —
// either no session was ever started with that pair, or it was started but
// never authenticated (O2's "registered but inert" case).
func (r *Registry) dispatch(sessionName, sessionCred string) (*session.Session, error) {
	s, ok := r.findSession(sessionName, sessionCred)
	if !ok || s.UserID() == -1 {
		return nil, ErrNoSessionForCredentials
	}
	return s, nil
}

// AddBUser scans the registry for the session matching (sessionName,
// sessionCred) and submits an addUser task to it (spec.md §4.6's
// addBuser(newName, newCred, newEmail, useHash, sessionName, sessionCred)).
func (r *Registry) AddBUser(sessionName, sessionCred, newUsername, newCredential, newEmail string, useHash bool) error {
	s, err := r.dispatch(sessionName, sessionCred)
	if err != nil {
		logger.Warn("addBuser: no session for credentials", "session_name", sessionName)
		return err
	}
	return s.Submit(session.NewAddUserTask(newUsername, newCredential, newEmail, useHash))
}

// AddTuple scans the registry for the session matching (sessionName,
// sessionCred) and submits an addTuple task to it.
func (r *Registry) AddTuple(sessionName, sessionCred string, tableID int32, values []any, nullBitmap []bool) error {
	s, err := r.dispatch(sessionName, sessionCred)
	if err != nil {
		logger.Warn("addTuple: no session for credentials", "session_name", sessionName)
		return err
	}
	return s.Submit(session.NewAddTupleTask(tableID, values, nullBitmap))
}

// AddTable scans the registry for the session matching (sessionName,
// sessionCred) and submits an addTableHeader task to it.
func (r *Registry) AddTable(sessionName, sessionCred string, header *bufpool.TableHeader) error {
	s, err := r.dispatch(sessionName, sessionCred)
	if err != nil {
		logger.Warn("addTable: no session for credentials", "session_name", sessionName)
		return err
	}
	return s.Submit(session.NewAddTableHeaderTask(header))
}

// CheckUserProcess reports whether the registry currently contains at
// least one authenticated session whose bound credentials match (name,
// cred). Sessions registered with userID -1 (O2) never count.
func (r *Registry) CheckUserProcess(name, cred string) bool {
	_, err := r.dispatch(name, cred)
	return err == nil
}

// WaitForAllProcessesToFinish clears the registry, then stops every session
// that was registered and waits for their worker goroutines to exit.
func (r *Registry) WaitForAllProcessesToFinish() {
	r.mu.Lock()
	sessions := make([]*session.Session, len(r.sessions))
	copy(sessions, r.sessions)
	r.sessions = nil
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			s.Stop()
		}(s)
	}
	wg.Wait()
}

func sessionIDFromTxn(txnID int64) string {
	return "session-" + strconv.FormatInt(txnID, 10)
}

func ttlDuration(seconds int64) time.Duration {
	if seconds <= 0 {
		seconds = 300
	}
	return time.Duration(seconds) * time.Second
}
