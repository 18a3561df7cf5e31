// Package session implements the per-client session worker (C6/C7): a
// private, serially-drained task queue backed by one goroutine, with a
// single absolute TTL deadline computed at Start and never extended.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tupledb/tupledb/internal/logger"
	"github.com/tupledb/tupledb/pkg/bufpool"
	"github.com/tupledb/tupledb/pkg/identity"
)

// ErrSessionStopped is returned by Submit once the session has stopped.
// O1: the spec's design notes prefer an explicit error over a silent drop.
var ErrSessionStopped = errors.New("session stopped")

// ErrQueueFull is returned by Submit when the session's bounded queue is
// at capacity.
var ErrQueueFull = errors.New("session queue full")

// Encoder turns task payloads into the opaque bytes a Buffer carries.
// The wire format itself is out of scope; Encoder only needs to round-trip
// for this engine's own write-back path.
type Encoder interface {
	EncodeTuple(t *TupleData) ([]byte, error)
}

// Sinks bundles the collaborators a Session dispatches into while
// processing tasks.
type Sinks struct {
	Pool        *bufpool.Pool
	UserCache   *identity.UserCache
	IDAllocator *identity.IDAllocator
	Hasher      identity.CredentialHasher // nil means store credentials unhashed
	Encoder     Encoder
}

// Session is one authenticated client's private task queue (C7).
type Session struct {
	ID            string
	TransactionID int64
	TablePath     string
	TTL           time.Duration
	QueueCapacity int

	sinks Sinks

	// username/credential are the plaintext pair this session was started
	// with, bound for its lifetime regardless of whether Start actually
	// authenticated (O2). The registry's dispatch scan matches against
	// these, not against the user cache, per spec.md §4.6.
	username   string
	credential string

	userID atomic.Int64 // -1 until Start succeeds

	mu       sync.Mutex
	queue    []*Task
	stopping bool

	wake    chan struct{}
	stopCh  chan struct{}
	stopped chan struct{}
	once    sync.Once

	nextBlock map[int32]int32
}

// Config configures a new Session.
type Config struct {
	TransactionID int64
	TablePath     string
	TTL           time.Duration
	QueueCapacity int
}

// New constructs a Session. It does not start the worker goroutine; call
// Start to authenticate and begin processing.
func New(id string, cfg Config, sinks Sinks) *Session {
	qc := cfg.QueueCapacity
	if qc <= 0 {
		qc = 256
	}
	s := &Session{
		ID:            id,
		TransactionID: cfg.TransactionID,
		TablePath:     cfg.TablePath,
		TTL:           cfg.TTL,
		QueueCapacity: qc,
		sinks:         sinks,
		wake:          make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
		nextBlock:     make(map[int32]int32),
	}
	s.userID.Store(-1)
	return s
}

// UserID returns the authenticated user id, or -1 if Start has not
// succeeded (O2: a session may be registered and still have userID -1).
func (s *Session) UserID() int64 {
	return s.userID.Load()
}

// Matches reports whether this session was started with the given
// username/credential pair (checkUserProcess's underlying comparison,
// spec.md §4.6). It compares the plaintext pair bound at Start, not the
// user cache, so it works the same whether or not authentication succeeded.
func (s *Session) Matches(username, credential string) bool {
	return s.username == username && s.credential == credential
}

// Start authenticates username/credential against the user cache and, on
// success, launches the worker goroutine with an absolute deadline of
// now+TTL. Per §4.6/O2, the session is usable for registration regardless
// of whether authentication succeeds; callers must still check UserID().
func (s *Session) Start(ctx context.Context, username, credential string) error {
	s.username = username
	s.credential = credential

	deadline := time.Now().Add(s.TTL)

	uid, ok := s.sinks.UserCache.Lookup(username, credential)
	if !ok {
		logger.Warn("session authentication failed", "session_id", s.ID, "username", username)
		go s.runLoop(ctx, deadline)
		return identity.ErrInvalidCredentials
	}

	s.userID.Store(uid)
	go s.runLoop(ctx, deadline)
	return nil
}

// Submit enqueues a task for processing (non-blocking). Returns
// ErrSessionStopped if the session has already been told to stop, or
// ErrQueueFull if the bounded queue is at capacity.
func (s *Session) Submit(t *Task) error {
	t.CallerAddress = newCallerAddress()

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return ErrSessionStopped
	}
	if len(s.queue) >= s.QueueCapacity {
		s.mu.Unlock()
		return ErrQueueFull
	}
	s.queue = append(s.queue, t)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Stop signals the worker to finish the tasks already queued and exit. It
// blocks until the worker goroutine has returned.
func (s *Session) Stop() {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()
		close(s.stopCh)
	})
	<-s.stopped
}

// markStopping flags the session as no longer accepting Submit calls. Unlike
// Stop, it does not close stopCh or block on s.stopped — it only covers the
// runLoop exit paths (TTL deadline, ctx cancellation) that end the worker
// without going through Stop, so Submit still reports ErrSessionStopped
// instead of silently enqueuing work nothing will ever drain.
func (s *Session) markStopping() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
}

func (s *Session) dequeue() (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	t := s.queue[0]
	s.queue = s.queue[1:]
	return t, true
}

// runLoop is the session worker (C7). It drains the queue until stopped
// or the absolute deadline passes; a TTL expiry does not cut off tasks
// already queued, but no new wake-ups extend the deadline itself.
func (s *Session) runLoop(ctx context.Context, deadline time.Time) {
	defer close(s.stopped)

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		for {
			t, ok := s.dequeue()
			if !ok {
				break
			}
			s.process(ctx, t)
		}

		select {
		case <-s.wake:
		case <-s.stopCh:
			s.drain(ctx)
			return
		case <-timer.C:
			s.markStopping()
			s.drain(ctx)
			return
		case <-ctx.Done():
			s.markStopping()
			return
		}
	}
}

func (s *Session) drain(ctx context.Context) {
	for {
		t, ok := s.dequeue()
		if !ok {
			return
		}
		s.process(ctx, t)
	}
}

func (s *Session) process(ctx context.Context, t *Task) {
	switch t.Kind {
	case kindAddUser:
		s.handleAddUser(t)
	case kindAddTuple:
		s.handleAddTuple(ctx, t)
	case kindAddTableHeader:
		s.handleAddTableHeader(t)
	default:
		logger.Error("unreachable task kind", "session_id", s.ID, "kind", t.Kind)
	}
}

func (s *Session) handleAddUser(t *Task) {
	credential := t.AddUser.Credential
	hashed := false

	if t.AddUser.UseHash {
		if s.sinks.Hasher == nil {
			logger.Warn("addUser requested useHash but no hasher is wired, storing plaintext",
				"session_id", s.ID, "username", t.AddUser.Username)
		} else {
			h, err := s.sinks.Hasher.Hash(credential)
			if err != nil {
				logger.Error("credential hashing failed", "session_id", s.ID, "error", err)
				return
			}
			credential = h
			hashed = true
		}
	}

	u := &identity.User{
		ID:         s.sinks.IDAllocator.Next(),
		Username:   t.AddUser.Username,
		Credential: credential,
		Email:      t.AddUser.Email,
		HashOnSet:  hashed,
	}
	if err := s.sinks.UserCache.Add(u); err != nil {
		logger.Error("addUserToCache failed", "session_id", s.ID, "username", u.Username, "error", err)
	}
}

func (s *Session) handleAddTuple(_ context.Context, t *Task) {
	data, err := s.sinks.Encoder.EncodeTuple(t.Tuple)
	if err != nil {
		logger.Error("addTupleToBuffer encode failed", "session_id", s.ID, "error", err)
		return
	}

	blockNumber := s.nextBlock[t.Tuple.TableID]
	s.nextBlock[t.Tuple.TableID] = blockNumber + 1

	buf := bufpool.NewDataBuffer(t.Tuple.TableID, blockNumber, data, true)
	s.sinks.Pool.CacheHint(buf)
}

func (s *Session) handleAddTableHeader(t *Task) {
	buf := bufpool.NewHeaderBuffer(t.TableHeader.TableID, t.TableHeader, true)
	s.sinks.Pool.CacheHint(buf)
}
