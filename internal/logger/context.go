package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context threaded through a
// session's task processing.
type LogContext struct {
	SessionID     string
	Username      string
	UserID        int64
	TaskKind      string
	CallerAddress string
	StartTime     time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a session.
func NewLogContext(sessionID string) *LogContext {
	return &LogContext{
		SessionID: sessionID,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithTask returns a copy with the task kind and caller address set.
func (lc *LogContext) WithTask(kind, callerAddress string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TaskKind = kind
		clone.CallerAddress = callerAddress
	}
	return clone
}

// WithUser returns a copy with username/userID set.
func (lc *LogContext) WithUser(username string, userID int64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Username = username
		clone.UserID = userID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
