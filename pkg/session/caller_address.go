package session

import "github.com/google/uuid"

// newCallerAddress returns a fresh diagnostic correlation id for a task.
// The id is stored on the Task only; the session's own log lines do not
// include it.
func newCallerAddress() string {
	return uuid.NewString()
}
