package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no session matches the lookup.
	ErrNotFound = errors.New("session not found")

	// ErrNoCurrentSession is returned when no non-terminal session exists.
	ErrNoCurrentSession = errors.New("no active session")

	// ErrSessionExists is returned when creating a session while another
	// non-terminal session is still running.
	ErrSessionExists = errors.New("another session is still in progress")

	// ErrPhaseConflict is returned when a guarded phase update found the
	// session in a different phase than expected. The caller lost a race
	// with another transition and should re-read and reconcile.
	ErrPhaseConflict = errors.New("session phase changed concurrently")
)

// CreateSessionRequest carries everything needed to create a new session.
type CreateSessionRequest struct {
	QuestionSetID uuid.UUID
	TimeLimitSec  int
}

// RevealDeadline is the durable auto-reveal schedule of one active
// question: question_started_at + time_limit_sec, derived entirely from
// stored state.
type RevealDeadline struct {
	SessionID  uuid.UUID
	QuestionID uuid.UUID
	Deadline   time.Time
}
