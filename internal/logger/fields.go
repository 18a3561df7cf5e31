package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the session, buffer
// pool, and registry layers.
const (
	KeySessionID      = "session_id"
	KeyUsername       = "username"
	KeyUserID         = "user_id"
	KeyTaskKind       = "task_kind"
	KeyCallerAddress  = "caller_address"
	KeyTableID        = "table_id"
	KeyBlockNumber    = "block_number"
	KeyTransactionID  = "transaction_id"
	KeyDurationMs     = "duration_ms"
	KeyError          = "error"
	KeyCacheHit       = "cache_hit"
	KeyCacheCapacity  = "cache_capacity"
	KeyEvicted        = "evicted"
)

// SessionID returns a slog.Attr for a session identifier.
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// Username returns a slog.Attr for a username.
func Username(name string) slog.Attr {
	return slog.String(KeyUsername, name)
}

// UserID returns a slog.Attr for a user id.
func UserID(id int64) slog.Attr {
	return slog.Int64(KeyUserID, id)
}

// TaskKind returns a slog.Attr for a task kind.
func TaskKind(kind string) slog.Attr {
	return slog.String(KeyTaskKind, kind)
}

// CallerAddress returns a slog.Attr for the diagnostic correlation id
// stamped on a task.
func CallerAddress(addr string) slog.Attr {
	return slog.String(KeyCallerAddress, addr)
}

// TableID returns a slog.Attr for a table identifier.
func TableID(id int32) slog.Attr {
	return slog.Int(KeyTableID, int(id))
}

// BlockNumber returns a slog.Attr for a block number within a table.
func BlockNumber(n int32) slog.Attr {
	return slog.Int(KeyBlockNumber, int(n))
}

// TransactionID returns a slog.Attr for a transaction identifier.
func TransactionID(id int64) slog.Attr {
	return slog.Int64(KeyTransactionID, id)
}

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// CacheHit returns a slog.Attr for a cache hit indicator.
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// CacheCapacity returns a slog.Attr for the pool's fixed capacity.
func CacheCapacity(capacity int) slog.Attr {
	return slog.Int(KeyCacheCapacity, capacity)
}

// Evicted returns a slog.Attr for the number of slots evicted.
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}
