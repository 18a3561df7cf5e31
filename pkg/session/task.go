package session

import "github.com/tupledb/tupledb/pkg/bufpool"

// Kind identifies which variant of Task is populated. Its values are
// unexported; the constructors below set Kind together with the matching
// payload, so a Task built through them is always one of exactly the three
// closed variants (C6).
type Kind int

const (
	kindAddUser Kind = iota + 1
	kindAddTuple
	kindAddTableHeader
)

// TupleData is the payload of an addTuple task. Values/NullBitmap are
// opaque to the session layer; the row wire format is out of scope.
type TupleData struct {
	TableID    int32
	Values     []any
	NullBitmap []bool
}

// AddUserPayload is the payload of an addUser task.
type AddUserPayload struct {
	Username   string
	Credential string
	Email      string
	// UseHash carries the caller's per-call hash-on-set hint (spec.md §3 /
	// §4.6's addBuser(..., useHash, ...)), rather than hashing being a
	// fixed property of the session's wiring.
	UseHash bool
}

// Task is a unit of work submitted to a Session (C6). Exactly one of the
// payload fields is populated, matching Kind.
type Task struct {
	Kind Kind

	AddUser     *AddUserPayload
	Tuple       *TupleData
	TableHeader *bufpool.TableHeader

	// CallerAddress is a diagnostic correlation id stamped by
	// Session.Submit, not interpreted by the session itself.
	CallerAddress string
}

// NewAddUserTask constructs a Task carrying an addUser request. useHash
// drives whether the session hashes the credential before storing it.
func NewAddUserTask(username, credential, email string, useHash bool) *Task {
	return &Task{Kind: kindAddUser, AddUser: &AddUserPayload{
		Username: username, Credential: credential, Email: email, UseHash: useHash,
	}}
}

// NewAddTupleTask constructs a Task carrying an addTuple request.
func NewAddTupleTask(tableID int32, values []any, nullBitmap []bool) *Task {
	return &Task{Kind: kindAddTuple, Tuple: &TupleData{
		TableID: tableID, Values: values, NullBitmap: nullBitmap,
	}}
}

// NewAddTableHeaderTask constructs a Task carrying an addTable request.
func NewAddTableHeaderTask(header *bufpool.TableHeader) *Task {
	return &Task{Kind: kindAddTableHeader, TableHeader: header}
}
